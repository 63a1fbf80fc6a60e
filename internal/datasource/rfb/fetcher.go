package rfb

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher downloads every archive of a release, verifies it and extracts
// its members into ExtractDir.
type Fetcher struct {
	Client  Getter
	BaseURL string
	// ArchiveDir receives the .zip files, one subdirectory per release.
	ArchiveDir string
	ExtractDir string
	// Workers bounds concurrent downloads; values below 1 mean 1.
	Workers int
	Log     *zap.Logger
}

// Archive is the outcome for one .zip of a release.
type Archive struct {
	URL     string
	Path    string
	Written int64
	Skipped bool
	Files   []string
}

// Report summarizes a Fetch.
type Report struct {
	Release  string
	Archives []Archive
}

// Files returns every extracted path, sorted.
func (r Report) Files() []string {
	var out []string
	for _, a := range r.Archives {
		out = append(out, a.Files...)
	}
	sort.Strings(out)
	return out
}

func (f *Fetcher) logger() *zap.Logger {
	if f.Log == nil {
		return zap.NewNop()
	}
	return f.Log
}

// Latest returns the newest release listed at BaseURL.
func (f *Fetcher) Latest(ctx context.Context) (string, error) {
	return LatestRelease(ctx, f.Client, f.BaseURL)
}

// Fetch downloads, verifies and extracts every archive of release. The
// first failure cancels the remaining downloads.
func (f *Fetcher) Fetch(ctx context.Context, release string) (Report, error) {
	log := f.logger().With(zap.String("release", release))
	rep := Report{Release: release}

	urls, err := Archives(ctx, f.Client, ReleaseURL(f.BaseURL, release))
	if err != nil {
		return rep, err
	}
	if len(urls) == 0 {
		return rep, fmt.Errorf("rfb: release %s lists no archives", release)
	}
	log.Info("archives listed", zap.Int("count", len(urls)))

	workers := f.Workers
	if workers < 1 {
		workers = 1
	}
	dir := filepath.Join(f.ArchiveDir, release)

	results := make([]Archive, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			a, err := f.one(gctx, u, dir)
			if err != nil {
				return err
			}
			results[i] = a
			log.Info("archive ready",
				zap.String("archive", filepath.Base(a.Path)),
				zap.Int64("written", a.Written),
				zap.Bool("skipped", a.Skipped),
				zap.Int("files", len(a.Files)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	rep.Archives = results
	return rep, nil
}

func (f *Fetcher) one(ctx context.Context, rawURL, dir string) (Archive, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Archive{}, fmt.Errorf("rfb: parse %s: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	dest := filepath.Join(dir, name)

	dl, err := f.Client.Download(ctx, rawURL, dest)
	if err != nil {
		return Archive{}, fmt.Errorf("rfb: download %s: %w", name, err)
	}
	if err := VerifyZip(dest); err != nil {
		return Archive{}, err
	}
	files, err := Extract(dest, f.ExtractDir)
	if err != nil {
		return Archive{}, err
	}
	return Archive{URL: rawURL, Path: dest, Written: dl.Written, Skipped: dl.Skipped, Files: files}, nil
}
