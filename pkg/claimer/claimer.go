package claimer

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/screa/king-claimer/internal/config"
	"github.com/screa/king-claimer/internal/logger"
	"github.com/screa/king-claimer/pkg/types"
)

// Runner executes the workflow of one assignment
type Runner interface {
	Run(ctx context.Context, a types.Assignment) types.ItemResult
}

// Claimer runs workflows for a batch of assignments on a bounded pool and
// returns their results in input order. Stop is permanent: once stopped, a
// Claimer dispatches nothing in any later Run.
type Claimer struct {
	config *config.Config
	logger *logger.Logger
	runner Runner

	total     int64
	completed int64
	done      chan struct{}
	once      sync.Once

	shuffle func([]types.Assignment) []types.Assignment
}

// NewClaimer creates a new claimer instance
func NewClaimer(cfg *config.Config, runner Runner, log *logger.Logger) *Claimer {
	if log == nil {
		log = logger.Nop()
	}
	return &Claimer{
		config:  cfg,
		logger:  log,
		runner:  runner,
		done:    make(chan struct{}),
		shuffle: slice.Shuffle[types.Assignment],
	}
}

// Run dispatches every assignment and blocks until all dispatched
// workflows finish. Running workflows are never cancelled by the pool.
// After Stop, remaining assignments are not dispatched and come back as
// placeholders.
func (c *Claimer) Run(ctx context.Context, assignments []types.Assignment) ([]types.ItemResult, error) {
	start := time.Now()
	total := len(assignments)
	atomic.StoreInt64(&c.total, int64(total))
	atomic.StoreInt64(&c.completed, 0)

	threads := c.config.MaxThreads
	if threads < 1 {
		threads = 1
	}
	pool, err := ants.NewPool(threads, ants.WithLogger(c.logger), ants.WithPanicHandler(func(p any) {
		c.logger.Error("pool task panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	dispatch := c.dispatchOrder(assignments)
	c.logger.Info("processing started",
		zap.Int("items", total),
		zap.Int("threads", threads),
		zap.String("order", c.config.GetOrderDescription()))

	// Start periodic logging if verbose mode is enabled
	var logTicker *time.Ticker
	var logDone chan struct{}
	if c.config.Verbose && c.config.LogInterval > 0 {
		logTicker = time.NewTicker(time.Duration(c.config.LogInterval) * time.Second)
		logDone = make(chan struct{})
		go c.periodicLogger(logTicker, logDone, start)
	}

	results := make(chan types.ItemResult, total)
	collected := make(chan []types.ItemResult, 1)
	collector := NewCollector(total, c.logger)
	go func() {
		collected <- collector.Collect(results)
	}()

	var wg sync.WaitGroup
dispatchLoop:
	for _, a := range dispatch {
		if c.stopped() {
			c.logger.Warn("stop requested, not dispatching remaining items")
			break dispatchLoop
		}

		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			// Submit may have blocked on a full pool across a Stop
			if c.stopped() {
				results <- types.Placeholder(a.Item.Index)
				return
			}
			results <- c.execute(ctx, a)
		}); err != nil {
			wg.Done()
			c.logger.Error("submit item failed", zap.Int("index", a.Item.Index), zap.Error(err))
		}
	}

	// Wait for completion
	wg.Wait()
	close(results)
	ordered := <-collected

	// Stop periodic logging
	if logTicker != nil {
		logTicker.Stop()
		close(logDone)
	}

	c.logger.Info("processing finished",
		zap.Int64("completed", atomic.LoadInt64(&c.completed)),
		zap.Int("reported", collector.Len()),
		zap.Int("items", total),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return ordered, nil
}

// execute runs one workflow, turning a panic into a placeholder result for
// the item's original index.
func (c *Claimer) execute(ctx context.Context, a types.Assignment) (result types.ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("workflow panicked",
				zap.Int("index", a.Item.Index),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result = types.Placeholder(a.Item.Index)
		}
		atomic.AddInt64(&c.completed, 1)
	}()
	return c.runner.Run(ctx, a)
}

// dispatchOrder returns the order items are submitted in. Shuffling only
// reorders dispatch; each assignment keeps its index and proxy.
func (c *Claimer) dispatchOrder(assignments []types.Assignment) []types.Assignment {
	dispatch := slices.Clone(assignments)
	if c.config.RandomOrder && len(dispatch) > 1 {
		dispatch = c.shuffle(dispatch)
	}
	return dispatch
}

// Stop stops dispatching new items. Items already running finish normally.
func (c *Claimer) Stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *Claimer) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Progress returns how many items finished out of the current batch
func (c *Claimer) Progress() (completed, total int64) {
	return atomic.LoadInt64(&c.completed), atomic.LoadInt64(&c.total)
}

// periodicLogger logs progress at regular intervals
func (c *Claimer) periodicLogger(ticker *time.Ticker, done chan struct{}, start time.Time) {
	for {
		select {
		case <-ticker.C:
			completed, total := c.Progress()
			elapsed := time.Since(start)

			// Calculate rate safely
			rate := 0.0
			if elapsed.Minutes() > 0 {
				rate = float64(completed) / elapsed.Minutes()
			}
			c.logger.Info("progress",
				zap.Int64("completed", completed),
				zap.Int64("items", total),
				zap.String("rate", fmt.Sprintf("%.2f items/min", rate)))
		case <-done:
			return
		}
	}
}
