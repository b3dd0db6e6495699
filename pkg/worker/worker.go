package worker

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/corpix/uarand"
	"go.uber.org/zap"

	"github.com/screa/king-claimer/internal/config"
	"github.com/screa/king-claimer/internal/logger"
	"github.com/screa/king-claimer/pkg/api"
	"github.com/screa/king-claimer/pkg/types"
)

// DefaultNetwork is claimed when the config leaves the target empty
const DefaultNetwork = "Swell"

// Remote is the subset of the KING API a workflow drives
type Remote interface {
	CheckAllocation(ctx context.Context, route api.Route, identity string) (types.Allocation, error)
	CheckPreOrderEligible(ctx context.Context, route api.Route, identity string) bool
	ReadClaimedChain(ctx context.Context, route api.Route, identity string) string
	SignAndClaim(ctx context.Context, route api.Route, identity, secretKey, network string) bool
}

// Deriver turns a secret key into its public address
type Deriver interface {
	DeriveAddress(secretKey string) (string, error)
}

// State is a step of the per-item workflow
type State int

const (
	StateStart State = iota
	StateIdentityDerived
	StateAllocationChecked
	StateNetworkSelectionSkipped
	StateNetworkSelectionAttempted
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateIdentityDerived:
		return "identity_derived"
	case StateAllocationChecked:
		return "allocation_checked"
	case StateNetworkSelectionSkipped:
		return "network_selection_skipped"
	case StateNetworkSelectionAttempted:
		return "network_selection_attempted"
	default:
		return "done"
	}
}

// Option customizes a Workflow
type Option func(*Workflow)

// WithUserAgents replaces the user agent source
func WithUserAgents(next func() string) Option {
	return func(w *Workflow) { w.userAgent = next }
}

// WithSleep replaces the pacing sleep
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(w *Workflow) { w.sleep = sleep }
}

// Workflow carries one work item from its secret key to a terminal result
type Workflow struct {
	config  *config.Config
	remote  Remote
	deriver Deriver
	logger  *logger.Logger

	userAgent func() string
	sleep     func(ctx context.Context, d time.Duration)
}

// NewWorkflow creates a new workflow. cfg is shared and must not change
// while workflows run.
func NewWorkflow(cfg *config.Config, remote Remote, deriver Deriver, log *logger.Logger, opts ...Option) *Workflow {
	if log == nil {
		log = logger.Nop()
	}
	w := &Workflow{
		config:    cfg,
		remote:    remote,
		deriver:   deriver,
		logger:    log,
		userAgent: RandomUserAgent,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run executes the workflow for one assignment. Failures never escape;
// they end up in the returned result. Once the item has talked to the
// API, a random pacing delay is slept before returning.
func (w *Workflow) Run(ctx context.Context, a types.Assignment) types.ItemResult {
	index := a.Item.Index
	log := w.logger.With(zap.Int("index", index), zap.String("proxy", a.Proxy.Address))
	trace(log, StateStart)

	identity, err := w.deriver.DeriveAddress(a.Item.SecretKey)
	if err != nil {
		log.Error("derive address failed, check private key", zap.Error(err))
		return types.Placeholder(index)
	}
	log = log.With(zap.String("address", identity))
	trace(log, StateIdentityDerived)

	route := api.Route{Proxy: a.Proxy.Address, UserAgent: w.userAgent()}
	result := w.process(ctx, log, route, a.Item, identity)
	trace(log, StateDone)

	w.pace(ctx, log)
	return result
}

func (w *Workflow) process(ctx context.Context, log *logger.Logger, route api.Route, item types.WorkItem, identity string) types.ItemResult {
	alloc, err := w.remote.CheckAllocation(ctx, route, identity)
	if err != nil {
		log.Error("check allocation failed", zap.Error(err))
		return types.ItemResult{Index: item.Index, Identity: identity, Amount: 0, Status: types.ClaimFailure}
	}
	trace(log, StateAllocationChecked)

	status := types.ClaimNotAttempted
	if alloc.Amount > 0 || w.config.ForceNetworkSelection {
		trace(log, StateNetworkSelectionAttempted)
		status = w.selectNetwork(ctx, log, route, item.SecretKey, identity)
	} else {
		trace(log, StateNetworkSelectionSkipped)
	}

	log.Info("item finished", zap.Float64("amount", alloc.Amount), zap.Stringer("status", status))
	return types.ItemResult{Index: item.Index, Identity: identity, Amount: alloc.Amount, Status: status}
}

// selectNetwork makes sure identity has a claim network. Any network
// already chosen counts as done, even one other than the target.
func (w *Workflow) selectNetwork(ctx context.Context, log *logger.Logger, route api.Route, secretKey, identity string) types.ClaimStatus {
	target := w.target()

	current := w.remote.ReadClaimedChain(ctx, route, identity)
	if current == target {
		log.Info("network already selected", zap.String("chain", current))
		return types.ClaimSuccess
	}
	if current != "" {
		log.Info("different network already selected", zap.String("chain", current), zap.String("target", target))
		return types.ClaimSuccess
	}

	if !w.remote.CheckPreOrderEligible(ctx, route, identity) {
		log.Warn("not eligible for network selection")
		return types.ClaimFailure
	}

	if w.remote.SignAndClaim(ctx, route, identity, secretKey, target) {
		return types.ClaimSuccess
	}
	return types.ClaimFailure
}

func (w *Workflow) target() string {
	if w.config.TargetNetwork == "" {
		return DefaultNetwork
	}
	return w.config.TargetNetwork
}

func (w *Workflow) pace(ctx context.Context, log *logger.Logger) {
	lo, hi := w.config.DelayRange()
	d := Jitter(lo, hi)
	log.Info("waiting before next key", zap.Duration("delay", d))
	w.sleep(ctx, d)
}

// Jitter returns a duration drawn uniformly from [lo, hi]
func Jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}

func trace(log *logger.Logger, s State) {
	log.Debug("workflow state", zap.Stringer("state", s))
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

var uaMu sync.Mutex

// RandomUserAgent returns a plausible browser user agent
func RandomUserAgent() string {
	uaMu.Lock()
	defer uaMu.Unlock()
	return uarand.GetRandom()
}
