package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rmax-ai/ontoma/pkg/api"
	"github.com/rmax-ai/ontoma/pkg/logging"
	"github.com/rmax-ai/ontoma/pkg/resolver"
	"github.com/rmax-ai/ontoma/pkg/store"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "ontoma-d: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New(cfg.LogLevel, os.Stdout)
	log := logging.Component(logger, "ontoma-d")
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("daemon_failed")
	}
	log.Info("shutdown_complete")
}

func run(cfg Config, log *logrus.Entry) error {
	log.WithFields(logrus.Fields{"addr": cfg.Addr, "mode": cfg.Mode}).Info("system_started")

	// Handle SIGINT/SIGTERM for graceful shutdown, including during loading.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comps, err := loadIndexes(ctx, cfg, log)
	if err != nil {
		return err
	}

	closeCache, err := wireServices(cfg, &comps, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeCache(); err != nil {
			log.WithError(err).Error("failed_to_close_cache")
		}
	}()

	opts, err := resolverOptions(cfg, log)
	if err != nil {
		return err
	}
	res, err := resolver.New(comps, opts)
	if err != nil {
		return err
	}

	var st api.StoreInterface
	if cfg.DBPath != "off" {
		s, err := store.NewStore(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to init store: %w", err)
		}
		defer func() {
			if err := s.Close(); err != nil {
				log.WithError(err).Error("failed_to_close_store")
			} else {
				log.Info("store_closed")
			}
		}()
		st = s
		log.WithField("path", cfg.DBPath).Info("store_initialized")
	}

	srv := api.NewServer(res, st, cfg.Addr, log.Logger)
	if cfg.TLSCert != "" {
		srv.SetTLS(cfg.TLSCert, cfg.TLSKey)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("shutdown_initiated")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
