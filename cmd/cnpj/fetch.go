package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/internal/config"
	"github.com/danalec/CNPJ-Receita-Federal/internal/datasource/httpds"
	"github.com/danalec/CNPJ-Receita-Federal/internal/datasource/rfb"
	"github.com/danalec/CNPJ-Receita-Federal/internal/lock"
	"github.com/danalec/CNPJ-Receita-Federal/internal/runstate"
)

const (
	stageFetch = "fetch"
	// metaRelease holds the last release fetched to completion.
	metaRelease = "fetched_release"
)

func newFetchClient(d config.Download) rfb.Getter {
	return httpds.NewClient(httpds.Config{
		Timeout:            d.Timeout,
		MaxRetries:         d.Retries,
		InsecureSkipVerify: d.InsecureSkipVerify,
		UserAgent:          d.UserAgent,
		BytesPerSec:        d.BytesPerSec,
	})
}

// fetch downloads and extracts a release into source.dir. A release that
// was already fetched is skipped unless force is set. It returns the release
// and whether anything was fetched.
func fetch(ctx context.Context, cfg config.Config, log *zap.Logger, force bool) (string, bool, error) {
	for _, p := range []string{cfg.State.LockPath, cfg.State.LedgerPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return "", false, fmt.Errorf("state dir: %w", err)
		}
	}
	lk, err := lock.Acquire(cfg.State.LockPath)
	if err != nil {
		return "", false, err
	}
	defer func() {
		if err := lk.Release(); err != nil {
			log.Warn("release lock", zap.Error(err))
		}
	}()
	ledger, err := runstate.Open(ctx, cfg.State.LedgerPath)
	if err != nil {
		return "", false, err
	}
	defer ledger.Close()

	f := &rfb.Fetcher{
		Client:     newFetchClient(cfg.Download),
		BaseURL:    cfg.Download.BaseURL,
		ArchiveDir: cfg.Download.Dir,
		ExtractDir: cfg.Source.Dir,
		Workers:    cfg.Download.Workers,
		Log:        log,
	}

	release := cfg.Download.Release
	if release == "" {
		if release, err = f.Latest(ctx); err != nil {
			return "", false, err
		}
	}
	log = log.With(zap.String("release", release))

	if !force {
		last, ok, err := ledger.Meta(ctx, metaRelease)
		if err != nil {
			return release, false, err
		}
		if ok && last == release {
			log.Info("release already fetched, skipping")
			return release, false, nil
		}
	}

	err = ledger.Track(ctx, newRunID(), stageFetch, func(ctx context.Context) error {
		rep, err := f.Fetch(ctx, release)
		if err != nil {
			return err
		}
		log.Info("release extracted", zap.Int("archives", len(rep.Archives)), zap.Int("files", len(rep.Files())))
		return ledger.SetMeta(ctx, metaRelease, release)
	})
	if err != nil {
		return release, false, err
	}
	return release, true, nil
}
