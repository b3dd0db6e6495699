package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/screa/king-claimer/internal/app"
	"github.com/screa/king-claimer/internal/config"
	logpkg "github.com/screa/king-claimer/internal/logger"
	"github.com/screa/king-claimer/pkg/types"
)

var (
	cfg        = config.NewConfig()
	configFile string
	logger     *logpkg.Logger
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "king-claimer",
		Short: "Batch KING allocation checker and claim network selector",
		Long: `Checks the KING token allocation of every private key in a file and,
for accounts with an allocation, selects the claim network. Requests are
spread over a pool of HTTP proxies and the results are written to an xlsx
report in the same order as the keys.`,
		SilenceUsage: true,
		RunE:         runClaimer,
	}

	f := rootCmd.Flags()
	f.StringVarP(&configFile, "config", "c", "", "YAML config file (flags override its values)")
	f.StringVarP(&cfg.KeysFile, "keys", "k", cfg.KeysFile, "File with one private key per line")
	f.StringVarP(&cfg.ProxiesFile, "proxies", "p", cfg.ProxiesFile, "File with one proxy (user:pass@host:port) per line")
	f.StringVarP(&cfg.Output, "output", "o", cfg.Output, "Report file (xlsx)")
	f.IntVarP(&cfg.MaxThreads, "threads", "w", cfg.MaxThreads, "Number of accounts processed concurrently")
	f.IntVarP(&cfg.AccountsPerProxy, "accounts-per-proxy", "a", cfg.AccountsPerProxy, "Accounts sharing one proxy")
	f.BoolVar(&cfg.RandomOrder, "random-order", cfg.RandomOrder, "Process accounts in random order")
	f.Float64Var(&cfg.DelayMin, "delay-min", cfg.DelayMin, "Minimum pause after each account (seconds)")
	f.Float64Var(&cfg.DelayMax, "delay-max", cfg.DelayMax, "Maximum pause after each account (seconds)")
	f.BoolVarP(&cfg.ForceNetworkSelection, "force", "f", cfg.ForceNetworkSelection, "Select the network even for zero allocations")
	f.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "API base URL")
	f.StringVarP(&cfg.TargetNetwork, "network", "n", cfg.TargetNetwork, "Claim network to select")
	f.IntVarP(&cfg.Retries, "retries", "r", cfg.Retries, "Attempts per request")
	f.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Pause between attempts")
	f.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "Timeout of a single attempt")
	f.BoolVar(&cfg.ZeroOnFailedAllocation, "zero-on-failed-allocation", cfg.ZeroOnFailedAllocation, "Read a failed allocation lookup reporting amount 0 as a zero allocation")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Log progress periodically")
	f.IntVarP(&cfg.LogInterval, "log-interval", "i", cfg.LogInterval, "Progress logging interval in seconds")
	f.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level (debug, info, warn, error)")
	f.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Log format (console, json)")
	f.StringVar(&cfg.Log.Output, "log-output", cfg.Log.Output, "Log destination (stdout, file, both)")
	f.StringVarP(&cfg.Log.FilePath, "log-file", "l", cfg.Log.FilePath, "Log file path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runClaimer(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if err := loadConfigFile(cmd.Flags()); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = logpkg.NewWithConfig(cfg.Log).With(zap.String("run", uuid.NewString()))
	defer logger.Sync()

	logger.Info("starting KING claimer",
		zap.Int("threads", cfg.MaxThreads),
		zap.Int("accounts_per_proxy", cfg.AccountsPerProxy),
		zap.String("order", cfg.GetOrderDescription()),
		zap.String("network", cfg.TargetNetwork),
		zap.Bool("force", cfg.ForceNetworkSelection))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	claimer := app.New(cfg, logger)

	// Set up signal handling for Ctrl+C
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	type outcome struct {
		results []types.ItemResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := claimer.Run(ctx)
		done <- outcome{results, err}
	}()

	var out outcome
	stopping := false
wait:
	for {
		select {
		case out = <-done:
			break wait
		case <-sigChan:
			if stopping {
				logger.Warn("second interrupt, aborting running accounts")
				cancel()
				continue
			}
			stopping = true
			logger.Warn("interrupt received, finishing running accounts; press Ctrl+C again to abort")
			claimer.Stop()
		}
	}

	if out.err != nil {
		logger.Error("run failed", zap.Error(out.err))
		return out.err
	}
	logSummary(out.results)
	return nil
}

// loadConfigFile applies the config file, then re-applies every flag the
// user set explicitly so the command line wins.
func loadConfigFile(flags *pflag.FlagSet) error {
	changed := make(map[string]string)
	flags.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	if err := cfg.LoadFile(configFile); err != nil {
		return err
	}

	for name, value := range changed {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("reapply --%s: %w", name, err)
		}
	}
	return nil
}

func logSummary(results []types.ItemResult) {
	counts := make(map[types.ClaimStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	logger.Info("run finished",
		zap.Int("accounts", len(results)),
		zap.Int("success", counts[types.ClaimSuccess]),
		zap.Int("failure", counts[types.ClaimFailure]),
		zap.Int("not_selected", counts[types.ClaimNotAttempted]),
		zap.String("output", cfg.Output))
}
