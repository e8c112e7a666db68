// Command montage serves the portrait editor.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/shahcompbio/montage-sub000/pkg/backend"
	"github.com/shahcompbio/montage-sub000/pkg/config"
	"github.com/shahcompbio/montage-sub000/pkg/consistency"
	"github.com/shahcompbio/montage-sub000/pkg/editor"
	"github.com/shahcompbio/montage-sub000/pkg/fieldconfig"
	"github.com/shahcompbio/montage-sub000/pkg/logging"
	"github.com/shahcompbio/montage-sub000/pkg/portrait"
	"github.com/shahcompbio/montage-sub000/pkg/pubsub"
	"github.com/shahcompbio/montage-sub000/pkg/watcher"
	"github.com/shahcompbio/montage-sub000/pkg/web"
)

func main() {
	flags := pflag.NewFlagSet("montage", pflag.ExitOnError)
	config.Flags(flags)
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := setupLogging(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Fatal("montage failed", "error", err)
	}
}

func setupLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Verbosity)
	if err != nil {
		return err
	}
	level = logging.VerboseLevel(level, cfg.VerboseCnt)
	if cfg.JSONLogs {
		logging.SetJSONOutput(level)
	} else {
		logging.SetLevel(level)
	}
	return nil
}

func loadCatalog(path string) (*fieldconfig.Catalog, error) {
	if path == "" {
		return fieldconfig.Default()
	}
	return fieldconfig.Load(path)
}

func run(ctx context.Context, cfg *config.Config) error {
	cat, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return err
	}

	genes := backend.NewGeneIndex(nil)
	if cfg.GeneIndex != "" {
		if genes, err = backend.LoadGeneIndex(cfg.GeneIndex); err != nil {
			return err
		}
		logging.Info("loaded gene index", "path", cfg.GeneIndex, "genes", genes.Len())
	}

	var store *portrait.Store
	if cfg.DB != "" {
		if store, err = portrait.Open(cfg.DB); err != nil {
			return err
		}
		defer store.Close()
		logging.Info("portrait storage enabled", "db", cfg.DB)
	}

	pub := pubsub.NewSSEPublisher()
	pub.ConfigureDefaults()
	defer pub.Close()

	ed := editor.New(cat,
		editor.WithPublisher(pub),
		editor.WithEngineOptions(
			consistency.WithTimeout(cfg.PostProcessTimeout),
			consistency.WithPostProcessor(consistency.GeneLookupName,
				consistency.GeneLookup(genes, "chrom_number", "start", "end")),
		),
	)

	if cfg.Watch && cfg.Catalog != "" {
		reload := func(ctx context.Context, path string) error {
			cat, err := fieldconfig.Load(path)
			if err != nil {
				return err
			}
			return ed.ReloadCatalog(ctx, cat)
		}
		if err := watcher.Run(ctx, cfg.Catalog, 200*time.Millisecond, 2*time.Second, reload); err != nil {
			return err
		}
	}

	server := web.NewServer(ed, pub, store)
	errc := make(chan error, 1)
	go func() {
		errc <- server.Start(cfg.Port)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// closing the publisher ends open event streams so Shutdown can finish
	pub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
