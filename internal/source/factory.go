package source

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/config"
	"github.com/JakeFAU/quantumboom/internal/digest"
	"github.com/JakeFAU/quantumboom/internal/source/arxiv"
	"github.com/JakeFAU/quantumboom/internal/source/news"
	"github.com/JakeFAU/quantumboom/internal/source/tabular"
)

// Build constructs one Spec per configured source, sharing fetcher.
func Build(cfgs []config.SourceConfig, fetcher digest.Fetcher, logger *zap.Logger) ([]Spec, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	specs := make([]Spec, 0, len(cfgs))
	for _, sc := range cfgs {
		src, err := newAdapter(sc, fetcher, logger.With(zap.String("source", sc.ID)))
		if err != nil {
			return nil, err
		}
		specs = append(specs, Spec{
			Source:  src,
			Kind:    sc.Kind,
			Label:   sc.Label,
			Timeout: sc.Timeout(),
		})
	}
	return specs, nil
}

func newAdapter(sc config.SourceConfig, fetcher digest.Fetcher, logger *zap.Logger) (digest.Source, error) {
	switch sc.Type {
	case config.SourceTypeCSV:
		return tabular.New(tabular.Config{ID: sc.ID, URL: sc.URL, MaxItems: sc.MaxItems}, fetcher, logger), nil
	case config.SourceTypeArxiv:
		return arxiv.New(arxiv.Config{
			ID:       sc.ID,
			URL:      sc.URL,
			Query:    sc.Query,
			Mode:     sc.Mode,
			MaxItems: sc.MaxItems,
		}, fetcher, logger), nil
	case config.SourceTypeRSS:
		return news.New(news.Config{
			ID:             sc.ID,
			URL:            sc.URL,
			MaxItems:       sc.MaxItems,
			ExtractContent: sc.ExtractContent,
		}, fetcher, logger), nil
	default:
		return nil, fmt.Errorf("source %s: unsupported type %q", sc.ID, sc.Type)
	}
}
