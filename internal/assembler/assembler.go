package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/quantumboom/internal/digest"
)

// Deploy bundle file names.
const (
	IndexFile     = "index.html"
	RedirectsFile = "_redirects"
	RobotsFile    = "robots.txt"

	redirectsBody = "/*    /index.html   200\n"
	robotsBody    = "User-agent: *\nAllow: /\n"

	stampLayout = "20060102_150405"
	htmlType    = "text/html; charset=utf-8"
)

// Config places the artifacts.
type Config struct {
	OutputDir     string
	DeployDirName string
	ReleasesDir   string
	BackupPrefix  string
	SiteTitle     string
}

// Assembler writes digests to an afero filesystem.
type Assembler struct {
	fs      afero.Fs
	cfg     Config
	hasher  digest.Hasher
	archive digest.BlobStore
	logger  *zap.Logger
}

// New builds an Assembler. archive may be nil.
func New(fs afero.Fs, cfg Config, hasher digest.Hasher, archive digest.BlobStore, logger *zap.Logger) *Assembler {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DeployDirName == "" {
		cfg.DeployDirName = "deploy"
	}
	if cfg.ReleasesDir == "" {
		cfg.ReleasesDir = "releases"
	}
	if cfg.BackupPrefix == "" {
		cfg.BackupPrefix = "digest_backup_"
	}
	if cfg.SiteTitle == "" {
		cfg.SiteTitle = "QuantumBoom"
	}
	return &Assembler{fs: fs, cfg: cfg, hasher: hasher, archive: archive, logger: logger}
}

// Assemble builds the digest for inputs, stamps it no earlier than one second
// after the newest artifact on disk, and writes it.
func (a *Assembler) Assemble(ctx context.Context, runID string, now time.Time, inputs []SectionInput) (digest.Digest, digest.RenderedOutput, error) {
	generatedAt, err := a.NextTimestamp(now)
	if err != nil {
		return digest.Digest{}, digest.RenderedOutput{}, err
	}
	d := BuildDigest(runID, generatedAt, inputs)
	out, err := a.Write(ctx, d)
	return d, out, err
}

// NextTimestamp returns now truncated to the second, bumped past the newest
// backup or release stamp when the clock would repeat or go backwards.
func (a *Assembler) NextTimestamp(now time.Time) (time.Time, error) {
	now = now.UTC().Truncate(time.Second)
	newest, err := a.newestStamp()
	if err != nil {
		return time.Time{}, err
	}
	if !newest.IsZero() && !now.After(newest) {
		return newest.Add(time.Second), nil
	}
	return now, nil
}

func (a *Assembler) newestStamp() (time.Time, error) {
	var newest time.Time
	consider := func(dir string, name func(os.FileInfo) (string, bool)) error {
		entries, err := afero.ReadDir(a.fs, dir)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return errorf("scan", "list %s: %w", dir, err)
		}
		for _, e := range entries {
			stamp, ok := name(e)
			if !ok {
				continue
			}
			t, err := time.ParseInLocation(stampLayout, stamp, time.UTC)
			if err == nil && t.After(newest) {
				newest = t
			}
		}
		return nil
	}
	backups := func(e os.FileInfo) (string, bool) {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, a.cfg.BackupPrefix) || !strings.HasSuffix(n, ".html") {
			return "", false
		}
		return strings.TrimSuffix(strings.TrimPrefix(n, a.cfg.BackupPrefix), ".html"), true
	}
	releases := func(e os.FileInfo) (string, bool) {
		return e.Name(), e.IsDir()
	}
	if err := consider(a.cfg.OutputDir, backups); err != nil {
		return time.Time{}, err
	}
	if err := consider(a.releasesRoot(), releases); err != nil {
		return time.Time{}, err
	}
	return newest, nil
}

func (a *Assembler) releasesRoot() string {
	return filepath.Join(a.cfg.OutputDir, a.cfg.ReleasesDir)
}

// DeployDir is the stable path of the current deployment.
func (a *Assembler) DeployDir() string {
	return filepath.Join(a.cfg.OutputDir, a.cfg.DeployDirName)
}

// Write renders d and writes the backup, a new release and the deploy dir.
// Any failure is a *digest.RenderError.
func (a *Assembler) Write(ctx context.Context, d digest.Digest) (digest.RenderedOutput, error) {
	fingerprint, err := Fingerprint(d, a.hasher)
	if err != nil {
		return digest.RenderedOutput{}, err
	}
	page, err := Render(d, a.cfg.SiteTitle, fingerprint)
	if err != nil {
		return digest.RenderedOutput{}, err
	}

	stamp := d.GeneratedAt.UTC().Format(stampLayout)
	if err := a.fs.MkdirAll(a.cfg.OutputDir, 0o750); err != nil {
		return digest.RenderedOutput{}, errorf("output dir", "create %s: %w", a.cfg.OutputDir, err)
	}

	backupPath := filepath.Join(a.cfg.OutputDir, a.cfg.BackupPrefix+stamp+".html")
	if err := writeFileAtomic(a.fs, backupPath, page); err != nil {
		return digest.RenderedOutput{}, &digest.RenderError{Op: "write backup", Err: err}
	}

	bundle := map[string][]byte{
		IndexFile:     page,
		RedirectsFile: []byte(redirectsBody),
		RobotsFile:    []byte(robotsBody),
	}
	releaseDir := filepath.Join(a.releasesRoot(), stamp)
	if err := a.writeRelease(releaseDir, bundle); err != nil {
		return digest.RenderedOutput{}, &digest.RenderError{Op: "write release", Err: err}
	}
	deployDir := a.DeployDir()
	if err := a.swapDeploy(releaseDir, deployDir, stamp, bundle); err != nil {
		return digest.RenderedOutput{}, &digest.RenderError{Op: "swap deploy", Err: err}
	}

	out := digest.RenderedOutput{
		BackupPath:  backupPath,
		ReleaseDir:  releaseDir,
		DeployDir:   deployDir,
		Fingerprint: fingerprint,
		Bytes:       len(page),
	}
	if a.archive != nil {
		uri, err := a.archive.PutObject(ctx, filepath.Base(backupPath), htmlType, bytes.NewReader(page))
		if err != nil {
			a.logger.Warn("Archive upload failed", zap.String("backup", backupPath), zap.Error(err))
		} else {
			out.ArchiveURI = uri
		}
	}

	a.logger.Info("digest written",
		zap.String("run_id", d.RunID),
		zap.String("backup", backupPath),
		zap.String("deploy_dir", deployDir),
		zap.String("fingerprint", fingerprint),
		zap.Int("bytes", len(page)),
		zap.Int("sections", len(d.Sections)),
	)
	return out, nil
}

// writeRelease fills a fresh release directory. Nothing points at it until
// the deploy swap.
func (a *Assembler) writeRelease(dir string, bundle map[string][]byte) error {
	if err := a.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear %s: %w", dir, err)
	}
	if err := a.fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for name, data := range bundle {
		if err := writeFileAtomic(a.fs, filepath.Join(dir, name), data); err != nil {
			return err
		}
	}
	return nil
}

// swapDeploy points deployDir at releaseDir. On filesystems with symlinks a
// new link is renamed over the old one; elsewhere the bundle files are
// replaced one by one and stale files are pruned.
func (a *Assembler) swapDeploy(releaseDir, deployDir, stamp string, bundle map[string][]byte) error {
	if linker, ok := a.fs.(afero.Linker); ok {
		target, err := filepath.Rel(filepath.Dir(deployDir), releaseDir)
		if err != nil {
			return fmt.Errorf("relative release path: %w", err)
		}
		next := deployDir + ".next"
		_ = a.fs.Remove(next)
		err = linker.SymlinkIfPossible(target, next)
		if err == nil {
			if err := a.moveLegacyDir(deployDir, stamp); err != nil {
				return err
			}
			if err := a.fs.Rename(next, deployDir); err != nil {
				return fmt.Errorf("swap %s: %w", deployDir, err)
			}
			return nil
		}
		if !errors.Is(err, afero.ErrNoSymlink) {
			return fmt.Errorf("link %s: %w", next, err)
		}
	}
	return a.replaceInPlace(deployDir, bundle)
}

// moveLegacyDir removes a plain deploy directory left by an older layout so
// the symlink can take its place.
func (a *Assembler) moveLegacyDir(deployDir, stamp string) error {
	lstater, ok := a.fs.(afero.Lstater)
	if !ok {
		return nil
	}
	info, _, err := lstater.LstatIfPossible(deployDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", deployDir, err)
	}
	if info.Mode()&os.ModeSymlink != 0 || !info.IsDir() {
		return nil
	}
	old := deployDir + ".old-" + stamp
	if err := a.fs.Rename(deployDir, old); err != nil {
		return fmt.Errorf("move legacy deploy dir: %w", err)
	}
	if err := a.fs.RemoveAll(old); err != nil {
		a.logger.Warn("Could not remove legacy deploy dir", zap.String("path", old), zap.Error(err))
	}
	return nil
}

func (a *Assembler) replaceInPlace(deployDir string, bundle map[string][]byte) error {
	if err := a.fs.MkdirAll(deployDir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", deployDir, err)
	}
	for name, data := range bundle {
		if err := writeFileAtomic(a.fs, filepath.Join(deployDir, name), data); err != nil {
			return err
		}
	}
	entries, err := afero.ReadDir(a.fs, deployDir)
	if err != nil {
		return fmt.Errorf("list %s: %w", deployDir, err)
	}
	for _, e := range entries {
		if _, keep := bundle[e.Name()]; keep {
			continue
		}
		if err := a.fs.RemoveAll(filepath.Join(deployDir, e.Name())); err != nil {
			return fmt.Errorf("prune %s: %w", e.Name(), err)
		}
	}
	return nil
}

func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	tmp := path + ".tmp"
	// #nosec G306 -- published web content is world-readable.
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
