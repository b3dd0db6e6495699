package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/screa/king-claimer/internal/config"
	"github.com/screa/king-claimer/internal/crypto"
	"github.com/screa/king-claimer/internal/input"
	"github.com/screa/king-claimer/internal/logger"
	"github.com/screa/king-claimer/pkg/api"
	"github.com/screa/king-claimer/pkg/claimer"
	"github.com/screa/king-claimer/pkg/planner"
	"github.com/screa/king-claimer/pkg/report"
	"github.com/screa/king-claimer/pkg/transport"
	"github.com/screa/king-claimer/pkg/types"
	"github.com/screa/king-claimer/pkg/worker"
)

// App wires one batch run: load inputs, assign proxies, run workflows and
// write the report.
type App struct {
	config  *config.Config
	logger  *logger.Logger
	claimer *claimer.Claimer
}

// New builds the full pipeline from cfg. Extra worker options are passed
// to every workflow.
func New(cfg *config.Config, log *logger.Logger, opts ...worker.Option) *App {
	if log == nil {
		log = logger.Nop()
	}
	signer := crypto.NewSigner()
	tr := transport.New(transport.Options{
		Retries: cfg.Retries,
		Backoff: cfg.RetryBackoff,
		Timeout: cfg.RequestTimeout,
	}, log)
	client := api.NewClient(tr, signer, api.Options{
		BaseURL:                cfg.BaseURL,
		ZeroOnFailedAllocation: cfg.ZeroOnFailedAllocation,
	}, log)
	workflow := worker.NewWorkflow(cfg, client, signer, log, opts...)

	return &App{
		config:  cfg,
		logger:  log,
		claimer: claimer.NewClaimer(cfg, workflow, log),
	}
}

// Run executes the batch and writes the report. Configuration problems are
// returned before any request is made.
func (a *App) Run(ctx context.Context) ([]types.ItemResult, error) {
	items, err := input.LoadWorkItems(a.config.KeysFile)
	if err != nil {
		return nil, err
	}
	proxies, err := input.LoadProxies(a.config.ProxiesFile)
	if err != nil {
		return nil, err
	}
	a.logger.Info("inputs loaded", zap.Int("keys", len(items)), zap.Int("proxies", len(proxies)))

	assignments, err := planner.Assign(items, proxies, a.config.AccountsPerProxy)
	if err != nil {
		return nil, err
	}

	results, err := a.claimer.Run(ctx, assignments)
	if err != nil {
		return nil, err
	}

	if err := report.WriteXLSX(a.config.Output, results); err != nil {
		return results, fmt.Errorf("write report: %w", err)
	}
	a.logger.Info("results saved", zap.String("output", a.config.Output))
	return results, nil
}

// Stop stops dispatching new items; the report is still written
func (a *App) Stop() {
	a.claimer.Stop()
}
