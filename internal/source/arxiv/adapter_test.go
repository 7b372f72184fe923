package arxiv

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <title type="html">ArXiv Query: search_query=ti:"quantum computing"</title>
  <id>http://arxiv.org/api/abc</id>
  <updated>2026-10-18T00:00:00-04:00</updated>
  <opensearch:totalResults>2</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/abs/2410.01234v1</id>
    <updated>2026-10-17T17:59:58Z</updated>
    <published>2026-10-16T17:59:58Z</published>
    <title>Fault-Tolerant Quantum
      Computing with Cat Qubits</title>
    <summary>  We show   a threshold
      for cat qubits.
    </summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <link href="http://arxiv.org/abs/2410.01234v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2410.01234v1" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2410.05678v2</id>
    <updated>2026-10-15T10:00:00Z</updated>
    <title></title>
    <summary>No title here.</summary>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2410.09999v1</id>
    <updated>2026-10-14T10:00:00Z</updated>
    <title>Variational Algorithms Revisited</title>
    <summary>VQE on NISQ hardware.</summary>
    <link href="http://arxiv.org/abs/2410.09999v1" rel="alternate" type="text/html"/>
  </entry>
</feed>`

const emptyFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
  <id>http://arxiv.org/api/empty</id>
  <updated>2026-10-18T00:00:00-04:00</updated>
</feed>`

const errorFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
  <id>http://arxiv.org/api/err</id>
  <updated>2026-10-18T00:00:00-04:00</updated>
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format_for_1234</id>
    <title>Error</title>
    <summary>incorrect id format for 1234</summary>
  </entry>
</feed>`

const listingHTML = `<html><body>
<dl id="articles">
  <dt>
    <a name="item1">[1]</a>
    <a href="/abs/2410.11111" title="Abstract" id="2410.11111">arXiv:2410.11111</a>
    [<a href="/pdf/2410.11111" title="Download PDF">pdf</a>]
  </dt>
  <dd>
    <div class="meta">
      <div class="list-title mathjax"><span class="descriptor">Title:</span> Entanglement Distillation at Scale</div>
      <div class="list-authors"><a href="#">Grace Hopper</a>, <a href="#">Claude Shannon</a></div>
      <p class="mathjax">We distill Bell pairs.</p>
    </div>
  </dd>
  <dt><a href="/abs/2410.22222" title="Abstract">arXiv:2410.22222</a></dt>
  <dd><div class="meta"><div class="list-title mathjax"></div></div></dd>
  <dt><a href="/abs/2410.33333" title="Abstract">arXiv:2410.33333</a></dt>
  <dd>
    <div class="meta">
      <div class="list-title mathjax">Title: Photonic Boson Sampling</div>
      <p class="mathjax">Abstract: Sampling photons.</p>
    </div>
  </dd>
</dl>
</body></html>`

type fakeFetcher struct {
	body []byte
	got  digest.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req digest.FetchRequest) (digest.FetchResponse, error) {
	f.got = req
	return digest.FetchResponse{URL: req.URL, StatusCode: 200, Body: f.body}, nil
}

func TestBuildQueryURL(t *testing.T) {
	t.Parallel()

	raw, err := BuildQueryURL("https://export.arxiv.org/api/query", `ti:"quantum computing"`, 8)
	require.NoError(t, err)
	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, `ti:"quantum computing"`, q.Get("search_query"))
	assert.Equal(t, "8", q.Get("max_results"))
	assert.Equal(t, "lastUpdatedDate", q.Get("sortBy"))
	assert.Equal(t, "descending", q.Get("sortOrder"))

	_, err = BuildQueryURL("https://export.arxiv.org/api/query", "", 8)
	require.Error(t, err)
}

func TestParseFeed(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	items, err := ParseFeed([]byte(atomFeed), "technology", 10, zap.New(core))
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "technology", first.SourceID)
	assert.Equal(t, "Fault-Tolerant Quantum Computing with Cat Qubits", first.Title)
	assert.Equal(t, "We show a threshold for cat qubits.", first.RawText)
	assert.Equal(t, "Ada Lovelace, Alan Turing", first.Authors)
	assert.Equal(t, "http://arxiv.org/pdf/2410.01234v1", first.URL)
	assert.Equal(t, "2410.01234v1", first.Identifier)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, "2026-10-16", first.PublishedAt.Format("2006-01-02"))

	second := items[1]
	assert.Equal(t, "http://arxiv.org/pdf/2410.09999v1", second.URL)
	assert.Equal(t, "2410.09999v1", second.Identifier)
	require.NotNil(t, second.PublishedAt)
	assert.Equal(t, "2026-10-14", second.PublishedAt.Format("2006-01-02"))

	assert.Equal(t, 1, logs.FilterMessage("Skipping arxiv entry without title").Len())
}

func TestParseFeedClips(t *testing.T) {
	t.Parallel()

	items, err := ParseFeed([]byte(atomFeed), "technology", 1, nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestParseFeedEmpty(t *testing.T) {
	t.Parallel()

	items, err := ParseFeed([]byte(emptyFeed), "technology", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = ParseFeed([]byte("  \n"), "technology", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestParseFeedErrors(t *testing.T) {
	t.Parallel()

	_, err := ParseFeed([]byte(errorFeed), "technology", 10, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incorrect id format")

	_, err = ParseFeed([]byte("this is not xml"), "technology", 10, nil)
	require.Error(t, err)
}

func TestParseListing(t *testing.T) {
	t.Parallel()

	items, err := ParseListing([]byte(listingHTML), "listing", 10, nil)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Entanglement Distillation at Scale", items[0].Title)
	assert.Equal(t, "https://arxiv.org/pdf/2410.11111", items[0].URL)
	assert.Equal(t, "2410.11111", items[0].Identifier)
	assert.Equal(t, "Grace Hopper, Claude Shannon", items[0].Authors)
	assert.Equal(t, "We distill Bell pairs.", items[0].RawText)

	assert.Equal(t, "Photonic Boson Sampling", items[1].Title)
	assert.Equal(t, "https://arxiv.org/abs/2410.33333", items[1].URL)
	assert.Equal(t, "Sampling photons.", items[1].RawText)

	clipped, err := ParseListing([]byte(listingHTML), "listing", 1, nil)
	require.NoError(t, err)
	assert.Len(t, clipped, 1)
}

func TestAdapterFetchModes(t *testing.T) {
	t.Parallel()

	api := &fakeFetcher{body: []byte(atomFeed)}
	adapter := New(Config{ID: "technology", URL: "https://export.arxiv.org/api/query", Query: "all:qubit", MaxItems: 5}, api, nil)
	assert.Equal(t, digest.KindPapers, adapter.Kind())
	items, err := adapter.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Contains(t, api.got.URL, "search_query=all%3Aqubit")

	listing := &fakeFetcher{body: []byte(listingHTML)}
	adapter = New(Config{ID: "new", URL: "https://arxiv.org/list/quant-ph/new", Mode: ModeListing, MaxItems: 5}, listing, nil)
	items, err = adapter.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "https://arxiv.org/list/quant-ph/new", listing.got.URL)

	adapter = New(Config{ID: "bad", Mode: "rss"}, listing, nil)
	_, err = adapter.Fetch(context.Background())
	require.Error(t, err)
}
