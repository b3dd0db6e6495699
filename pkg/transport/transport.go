package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpproxy"
	"go.uber.org/zap"

	"github.com/screa/king-claimer/internal/logger"
)

const (
	DefaultRetries = 3
	DefaultBackoff = 10 * time.Second
	DefaultTimeout = 10 * time.Second
)

// Responses may hold big integers, so numbers stay textual. Strings are
// copied because fasthttp recycles response buffers.
var jsonAPI = sonic.Config{UseNumber: true, CopyString: true}.Froze()

// Options tunes the retry policy
type Options struct {
	Retries int           // total attempts per call
	Backoff time.Duration // fixed sleep between attempts
	Timeout time.Duration // per attempt
}

// Request is one logical call. Every attempt uses the same proxy and user agent.
type Request struct {
	Method    string
	URL       string
	Proxy     string // empty means direct
	UserAgent string
	Body      any // JSON encoded when non-nil
}

// Transport issues JSON requests through per-proxy fasthttp clients and
// retries failed attempts with a fixed delay.
type Transport struct {
	opts   Options
	logger *logger.Logger

	mu        sync.Mutex
	clients   map[string]*fasthttp.Client
	newClient func(proxy string, timeout time.Duration) *fasthttp.Client
}

// New creates a transport. Zero option fields take the defaults.
func New(opts Options, log *logger.Logger) *Transport {
	if opts.Retries < 1 {
		opts.Retries = DefaultRetries
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Transport{
		opts:      opts,
		logger:    log,
		clients:   make(map[string]*fasthttp.Client),
		newClient: newProxyClient,
	}
}

// Do runs req until it succeeds or the attempts are used up. On failure the
// returned error is a *Error wrapping the last attempt's error.
func (t *Transport) Do(ctx context.Context, req Request) (Payload, error) {
	if req.Method == "" {
		req.Method = fasthttp.MethodGet
	}

	var (
		result      Payload
		lastPayload Payload
		attempts    int
	)
	err := retry.Do(
		func() error {
			attempts++
			payload, err := t.attempt(req)
			if err != nil {
				if payload != nil {
					lastPayload = payload
				}
				return err
			}
			result = payload
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(t.opts.Retries)),
		retry.Delay(t.opts.Backoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= t.opts.Retries {
				return
			}
			t.logger.Warn("request attempt failed",
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.String("attempt", fmt.Sprintf("%d/%d", n+1, t.opts.Retries)),
				zap.Error(err))
		}),
	)
	if err != nil {
		t.logger.Error("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, &Error{Method: req.Method, URL: req.URL, Attempts: attempts, Err: err, Payload: lastPayload}
	}
	return result, nil
}

// attempt performs a single request. A non-2xx response still returns its
// decoded body, if any, alongside the error.
func (t *Transport) attempt(r Request) (Payload, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(r.URL)
	req.Header.SetMethod(r.Method)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if r.UserAgent != "" {
		req.Header.SetUserAgent(r.UserAgent)
	}
	if r.Body != nil {
		body, err := jsonAPI.Marshal(r.Body)
		if err != nil {
			return nil, retry.Unrecoverable(fmt.Errorf("encode body: %w", err))
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}

	if err := t.clientFor(r.Proxy).DoTimeout(req, resp, t.opts.Timeout); err != nil {
		return nil, err
	}

	payload, decodeErr := decode(resp.Body())
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return payload, &StatusError{Code: code}
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return payload, nil
}

func (t *Transport) clientFor(proxy string) *fasthttp.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.clients[proxy]
	if !ok {
		c = t.newClient(proxy, t.opts.Timeout)
		t.clients[proxy] = c
	}
	return c
}

func newProxyClient(proxy string, timeout time.Duration) *fasthttp.Client {
	c := &fasthttp.Client{
		ReadTimeout:              timeout,
		WriteTimeout:             timeout,
		MaxIdleConnDuration:      90 * time.Second,
		NoDefaultUserAgentHeader: true,
	}
	if proxy != "" {
		c.Dial = fasthttpproxy.FasthttpHTTPDialerTimeout(proxy, timeout)
	}
	return c
}

func decode(body []byte) (Payload, error) {
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}
	var p Payload
	if err := jsonAPI.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if p == nil {
		return nil, errors.New("response is not a JSON object")
	}
	return p, nil
}
