package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/screa/king-claimer/internal/config"
	"github.com/screa/king-claimer/pkg/report"
	"github.com/screa/king-claimer/pkg/types"
)

const (
	knownKey     = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	knownAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
	otherKey     = "1111111111111111111111111111111111111111111111111111111111111111"
)

// connectProxy is a minimal HTTP CONNECT proxy that counts tunnels
type connectProxy struct {
	*httptest.Server
	tunnels atomic.Int32
}

func newConnectProxy(t *testing.T) *connectProxy {
	t.Helper()
	p := &connectProxy{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			http.Error(w, "CONNECT only", http.StatusMethodNotAllowed)
			return
		}
		upstream, err := net.Dial("tcp", r.Host)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		hj, ok := w.(http.Hijacker)
		if !ok {
			upstream.Close()
			http.Error(w, "hijack unsupported", http.StatusInternalServerError)
			return
		}
		conn, buf, err := hj.Hijack()
		if err != nil {
			upstream.Close()
			return
		}
		p.tunnels.Add(1)
		if _, err := conn.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n")); err != nil {
			conn.Close()
			upstream.Close()
			return
		}
		go func() {
			io.Copy(upstream, buf.Reader)
			upstream.Close()
		}()
		io.Copy(conn, upstream)
		conn.Close()
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *connectProxy) address() string {
	return strings.TrimPrefix(p.URL, "http://")
}

// kingAPI fakes the three endpoints and records every call
type kingAPI struct {
	*httptest.Server

	amount string

	mu     sync.Mutex
	chain  map[string]string
	calls  map[string]int
	posted []map[string]string
}

func newKingAPI(t *testing.T, amount string) *kingAPI {
	t.Helper()
	k := &kingAPI{
		amount: amount,
		chain:  make(map[string]string),
		calls:  make(map[string]int),
	}
	k.Server = httptest.NewServer(http.HandlerFunc(k.serve))
	t.Cleanup(k.Close)
	return k
}

func (k *kingAPI) serve(w http.ResponseWriter, r *http.Request) {
	k.mu.Lock()
	defer k.mu.Unlock()

	route, identity := splitPath(r.URL.Path)
	k.calls[r.Method+" "+route]++

	switch {
	case route == "king":
		writeJSON(w, map[string]any{"Amount": k.amount})
	case route == "cash/pre-order":
		writeJSON(w, map[string]any{"success": true, "hasPreOrder": false})
	case route == "king-claim-chain" && r.Method == http.MethodGet:
		writeJSON(w, map[string]any{"success": true, "chain": k.chain[identity]})
	case route == "king-claim-chain" && r.Method == http.MethodPost:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		k.posted = append(k.posted, body)
		k.chain[identity] = strings.TrimPrefix(body["message"], "I want to claim my KING tokens on ")
		writeJSON(w, map[string]any{"success": true})
	default:
		http.NotFound(w, r)
	}
}

func (k *kingAPI) setChain(identity, chain string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.chain[identity] = chain
}

func (k *kingAPI) count(call string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls[call]
}

func (k *kingAPI) total() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for _, c := range k.calls {
		n += c
	}
	return n
}

func splitPath(path string) (string, string) {
	path = strings.TrimPrefix(path, "/api/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return path, ""
	}
	return path[:i], path[i+1:]
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeLines(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func testConfig(t *testing.T, baseURL string, keys, proxies []string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.BaseURL = baseURL
	cfg.KeysFile = writeLines(t, dir, "private_keys.txt", keys...)
	cfg.ProxiesFile = writeLines(t, dir, "proxies.txt", proxies...)
	cfg.Output = filepath.Join(dir, "results.xlsx")
	cfg.DelayMin = 0
	cfg.DelayMax = 0
	cfg.MaxThreads = 2
	cfg.Retries = 2
	cfg.RetryBackoff = 10 * time.Millisecond
	cfg.RequestTimeout = 2 * time.Second
	require.NoError(t, cfg.Validate())
	return cfg
}

func readReport(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(report.Sheet)
	require.NoError(t, err)
	return rows
}

func TestRunZeroAllocationSkipsNetworkSelection(t *testing.T) {
	api := newKingAPI(t, "0")
	proxy := newConnectProxy(t)
	cfg := testConfig(t, api.URL, []string{knownKey, otherKey}, []string{proxy.address()})
	cfg.AccountsPerProxy = 2

	results, err := New(cfg, nil).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, knownAddress, results[0].Identity)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, types.ClaimNotAttempted, r.Status)
		assert.Zero(t, r.Amount)
	}
	assert.Equal(t, 2, api.count("GET king"))
	assert.Equal(t, 0, api.count("GET king-claim-chain"))
	assert.Greater(t, proxy.tunnels.Load(), int32(0))

	rows := readReport(t, cfg.Output)
	require.Len(t, rows, 3)
	assert.Equal(t, report.Header, rows[0])
	assert.Equal(t, []string{knownAddress, "0", "Not Selected"}, rows[1])
	assert.Equal(t, results[1].Identity, rows[2][0])
}

func TestRunChainAlreadySelected(t *testing.T) {
	api := newKingAPI(t, "1500000000000000000")
	api.setChain(knownAddress, "Swell")
	proxy := newConnectProxy(t)
	cfg := testConfig(t, api.URL, []string{knownKey}, []string{proxy.address()})

	results, err := New(cfg, nil).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.ClaimSuccess, results[0].Status)
	assert.InDelta(t, 1.5, results[0].Amount, 1e-12)
	assert.Equal(t, 1, api.count("GET king-claim-chain"))
	assert.Equal(t, 0, api.count("GET cash/pre-order"))
	assert.Equal(t, 0, api.count("POST king-claim-chain"))

	rows := readReport(t, cfg.Output)
	assert.Equal(t, []string{knownAddress, "1.5000000000000000", "Success"}, rows[1])
}

func TestRunClaimsNetwork(t *testing.T) {
	api := newKingAPI(t, "2000000000000000000")
	proxy := newConnectProxy(t)
	cfg := testConfig(t, api.URL, []string{knownKey}, []string{proxy.address()})

	results, err := New(cfg, nil).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.ClaimSuccess, results[0].Status)
	assert.Equal(t, 1, api.count("GET cash/pre-order"))
	assert.Equal(t, 1, api.count("POST king-claim-chain"))
	// read before the claim, then once more to verify it
	assert.Equal(t, 2, api.count("GET king-claim-chain"))

	require.Len(t, api.posted, 1)
	assert.Equal(t, knownAddress, api.posted[0]["address"])
	assert.Equal(t, "I want to claim my KING tokens on Swell", api.posted[0]["message"])
	assert.Len(t, api.posted[0]["signature"], 132)
}

func TestRunMalformedKeyKeepsPosition(t *testing.T) {
	api := newKingAPI(t, "0")
	proxy := newConnectProxy(t)
	cfg := testConfig(t, api.URL, []string{"not-a-key", knownKey}, []string{proxy.address(), proxy.address()})

	results, err := New(cfg, nil).Run(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, types.Placeholder(0), results[0])
	assert.Equal(t, knownAddress, results[1].Identity)
	assert.Equal(t, 1, api.count("GET king"))
}

func TestRunInsufficientProxiesFailsBeforeAnyRequest(t *testing.T) {
	api := newKingAPI(t, "0")
	proxy := newConnectProxy(t)
	cfg := testConfig(t, api.URL,
		[]string{knownKey, otherKey, knownKey},
		[]string{proxy.address(), proxy.address()})
	cfg.AccountsPerProxy = 1

	results, err := New(cfg, nil).Run(context.Background())

	var cfgErr *types.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ErrorIs(t, err, types.ErrInsufficientProxies)
	assert.Nil(t, results)
	assert.Equal(t, 0, api.total())
	assert.Equal(t, int32(0), proxy.tunnels.Load())
	assert.NoFileExists(t, cfg.Output)
}

func TestRunMissingInputs(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(cfg *config.Config)
		expected error
	}{
		{
			name:     "no keys file",
			mutate:   func(cfg *config.Config) { cfg.KeysFile = filepath.Join(t.TempDir(), "missing.txt") },
			expected: types.ErrNoWorkItems,
		},
		{
			name:     "no proxies file",
			mutate:   func(cfg *config.Config) { cfg.ProxiesFile = filepath.Join(t.TempDir(), "missing.txt") },
			expected: types.ErrNoProxies,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newKingAPI(t, "0")
			cfg := testConfig(t, api.URL, []string{knownKey}, []string{"127.0.0.1:1"})
			tt.mutate(cfg)

			_, err := New(cfg, nil).Run(context.Background())

			assert.ErrorIs(t, err, tt.expected)
			assert.Equal(t, 0, api.total())
		})
	}
}

func TestStopBeforeRunWritesPlaceholders(t *testing.T) {
	api := newKingAPI(t, "0")
	cfg := testConfig(t, api.URL, []string{knownKey, otherKey}, []string{"127.0.0.1:1", "127.0.0.1:1"})
	a := New(cfg, nil)
	a.Stop()

	results, err := a.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []types.ItemResult{types.Placeholder(0), types.Placeholder(1)}, results)
	assert.Equal(t, 0, api.total())
	rows := readReport(t, cfg.Output)
	assert.Equal(t, []string{"Error", "0", "Failure"}, rows[1])
}
