package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/screa/king-claimer/internal/logger"
	"github.com/screa/king-claimer/pkg/transport"
	"github.com/screa/king-claimer/pkg/types"
)

const DefaultBaseURL = "https://app.ether.fi"

// Doer is the retrying transport the client calls through
type Doer interface {
	Do(ctx context.Context, req transport.Request) (transport.Payload, error)
}

// Signer produces personal_sign signatures for claim messages
type Signer interface {
	SignMessage(secretKey, message string) (string, error)
}

// Route is the egress used for every call of one work item
type Route struct {
	Proxy     string
	UserAgent string
}

// Options configures the client
type Options struct {
	BaseURL string
	// ZeroOnFailedAllocation keeps the legacy reading of a failed allocation
	// lookup whose error body reports amount "0" as a zero allocation.
	ZeroOnFailedAllocation bool
}

// Client implements the allocation, pre-order and claim-chain operations.
// Each operation issues its calls through the transport and never retries
// on its own.
type Client struct {
	doer    Doer
	signer  Signer
	baseURL string
	opts    Options
	logger  *logger.Logger
}

// NewClient creates a new client
func NewClient(doer Doer, signer Signer, opts Options, log *logger.Logger) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Client{doer: doer, signer: signer, baseURL: base, opts: opts, logger: log}
}

// ClaimMessage is the text signed to pick the claim network
func ClaimMessage(network string) string {
	return "I want to claim my KING tokens on " + network
}

func (c *Client) allocationURL(identity string) string {
	return c.baseURL + "/api/king/" + identity
}

func (c *Client) preOrderURL(identity string) string {
	return c.baseURL + "/api/cash/pre-order/" + identity
}

func (c *Client) chainURL(identity string) string {
	return c.baseURL + "/api/king-claim-chain/" + identity
}

func (c *Client) get(ctx context.Context, route Route, url string) (transport.Payload, error) {
	return c.doer.Do(ctx, transport.Request{
		Method:    fasthttp.MethodGet,
		URL:       url,
		Proxy:     route.Proxy,
		UserAgent: route.UserAgent,
	})
}

// CheckAllocation returns the KING allocation of identity. A missing or
// malformed Amount reads as zero.
func (c *Client) CheckAllocation(ctx context.Context, route Route, identity string) (types.Allocation, error) {
	log := c.logger.With(zap.String("address", identity))

	data, err := c.get(ctx, route, c.allocationURL(identity))
	if err != nil {
		if c.opts.ZeroOnFailedAllocation && reportsZeroAmount(err) {
			log.Warn("allocation lookup failed but reported amount 0, treating as zero allocation",
				zap.String("policy", "zero_on_failed_allocation"), zap.Error(err))
			return types.Allocation{Identity: identity, Amount: 0}, nil
		}
		return types.Allocation{}, fmt.Errorf("check allocation %s: %w", identity, err)
	}

	raw := data.String("Amount", "0")
	amount, perr := ParseAmount(raw)
	if perr != nil {
		log.Warn("malformed allocation amount, using 0", zap.Error(perr))
	}
	log.Info("allocation checked", zap.String("amount", fmt.Sprintf("%.16f", amount)))
	return types.Allocation{Identity: identity, Amount: amount}, nil
}

func reportsZeroAmount(err error) bool {
	var trErr *transport.Error
	if !errors.As(err, &trErr) || trErr.Payload == nil {
		return false
	}
	return trErr.Payload.String("amount", trErr.Payload.String("Amount", "")) == "0"
}

// CheckPreOrderEligible reports whether identity has no pre-existing order.
// Any failure reads as ineligible.
func (c *Client) CheckPreOrderEligible(ctx context.Context, route Route, identity string) bool {
	data, err := c.get(ctx, route, c.preOrderURL(identity))
	if err != nil {
		return false
	}
	return data.Bool("success") && !data.Bool("hasPreOrder")
}

// ReadClaimedChain returns the network already chosen for identity, or ""
// when none is set or the lookup failed.
func (c *Client) ReadClaimedChain(ctx context.Context, route Route, identity string) string {
	data, err := c.get(ctx, route, c.chainURL(identity))
	if err != nil || !data.Bool("success") {
		return ""
	}
	return data.String("chain", "")
}

// SignAndClaim signs the claim message for network, submits it and then
// re-reads the chain. It returns true only when the server now reports
// network for identity. Every failure along the way, including a panic,
// yields false.
func (c *Client) SignAndClaim(ctx context.Context, route Route, identity, secretKey, network string) (ok bool) {
	log := c.logger.With(zap.String("address", identity))
	defer func() {
		if r := recover(); r != nil {
			log.Error("claim panicked", zap.Any("panic", r))
			ok = false
		}
	}()

	message := ClaimMessage(network)
	signature, err := c.signer.SignMessage(secretKey, message)
	if err != nil {
		log.Error("sign claim message failed", zap.Error(err))
		return false
	}

	data, err := c.doer.Do(ctx, transport.Request{
		Method:    fasthttp.MethodPost,
		URL:       c.chainURL(identity),
		Proxy:     route.Proxy,
		UserAgent: route.UserAgent,
		Body: map[string]string{
			"address":   identity,
			"message":   message,
			"signature": signature,
		},
	})
	if err != nil {
		log.Error("submit claim failed", zap.Error(err))
		return false
	}
	if !data.Bool("success") {
		log.Warn("claim rejected", zap.String("network", network))
		return false
	}

	verify, err := c.get(ctx, route, c.chainURL(identity))
	if err != nil {
		log.Error("verify claim failed", zap.Error(err))
		return false
	}
	if chain := verify.String("chain", ""); chain != network {
		log.Warn("claim not reflected", zap.String("network", network), zap.String("chain", chain))
		return false
	}
	log.Info("network claimed", zap.String("network", network))
	return true
}
