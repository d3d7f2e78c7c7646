package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/ethpandaops/fuzzsync/pkg/deployment"
	"github.com/ethpandaops/fuzzsync/pkg/filestore"
	"github.com/ethpandaops/fuzzsync/pkg/journal"
	"github.com/ethpandaops/fuzzsync/pkg/workspace"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// errTransferFailed is returned in strict mode when any operation failed.
var errTransferFailed = errors.New("one or more transfers failed")

// app bundles what every transfer command needs.
type app struct {
	cfg        *config.Config
	ws         *workspace.Workspace
	deployment deployment.Deployment
	journal    journal.Store
}

// loadConfig loads and validates the configuration. The config file's log
// level applies unless --log-level was given explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if !cmd.Flags().Changed("log-level") {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}

		log.SetLevel(level)
	}

	return cfg, nil
}

// newApp loads the configuration and selects the deployment.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg: cfg,
		ws:  workspace.New(cfg.Workspace),
	}

	store, err := filestore.New(log, &cfg.Filestore)
	if err != nil {
		return nil, fmt.Errorf("creating filestore: %w", err)
	}

	deps := deployment.Dependencies{Store: store}

	if cfg.Journal.Enabled {
		a.journal = journal.NewStore(log, &cfg.Journal, os.Getenv("GITHUB_RUN_ID"))

		if err := a.journal.Start(ctx); err != nil {
			return nil, fmt.Errorf("starting journal: %w", err)
		}

		deps.Observer = a.journal
	}

	a.deployment, err = deployment.Select(log, cfg, a.ws, deps)
	if err != nil {
		a.Close()

		return nil, fmt.Errorf("selecting deployment: %w", err)
	}

	log.WithFields(logrus.Fields{
		"workspace": a.ws.Root(),
		"project":   cfg.ProjectName,
		"sanitizer": cfg.Sanitizer,
	}).Debug("Workspace ready")

	return a, nil
}

// Close releases the journal, if any.
func (a *app) Close() {
	if a.journal == nil {
		return
	}

	if err := a.journal.Stop(); err != nil {
		log.WithError(err).Warn("Failed to close journal")
	}
}

// check returns errTransferFailed in strict mode when any result failed.
func check(results ...deployment.Result) error {
	var failed int

	for _, res := range results {
		if !res.OK() {
			failed++
		}
	}

	if failed == 0 || !strict {
		return nil
	}

	return fmt.Errorf("%w: %d of %d", errTransferFailed, failed, len(results))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}

		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// runWithApp wraps a transfer command body with setup and teardown.
func runWithApp(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		return fn(ctx, a)
	}
}
