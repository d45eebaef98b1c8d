package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/anchor"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/kernel"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/ledger"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/proposal"
	"github.com/hannesmitterer/Euystacio-Consciousness-Kernel/internal/quorum"
)

func setupTestKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	store, err := ledger.NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := kernel.DefaultConfig()
	cfg.SnapshotPath = filepath.Join(t.TempDir(), "red_code_log.json")
	k, err := kernel.New(store, proposal.NewScriptedSource(), anchor.NewLocalNotary(), cfg)
	require.NoError(t, err)
	return k
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(setupTestKernel(t), zap.NewNop(), nil)
	require.NoError(t, err)
	return server
}

func postJSON(t *testing.T, server *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 8844}
		server, err := NewServer(setupTestKernel(t), zap.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.Equal(t, cfg, server.config)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(setupTestKernel(t), zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8844, server.config.Port)
	})

	t.Run("returns error when kernel is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "kernel cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(setupTestKernel(t), nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "NORMAL", resp.Mode)
}

func TestHandleSubmitProposal(t *testing.T) {
	t.Run("admits a high-alignment proposal", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/proposals", ProposalRequest{
			Vector:      []float64{0.99, 0.98, 0.95, 0.95},
			Quality:     0.95,
			Description: "baseline commitment",
		})
		assert.Equal(t, http.StatusOK, rec.Code)

		var res kernel.AdmissionResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.True(t, res.Accepted)
		require.NotNil(t, res.BlockRef)
		assert.Equal(t, int64(2), res.BlockRef.Index)
	})

	t.Run("rejected proposal returns conflict and locks the system", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/proposals", ProposalRequest{
			Vector:  []float64{0.95, 0.70, 0.90, 0.90},
			Quality: 0.95,
		})
		assert.Equal(t, http.StatusConflict, rec.Code)

		var res kernel.AdmissionResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.False(t, res.Accepted)
		assert.Contains(t, res.FailedGates, "O")

		// Any further submission is refused outright.
		rec = postJSON(t, server, "/api/v1/proposals", ProposalRequest{
			Vector:  []float64{0.99, 0.98, 0.95, 0.95},
			Quality: 0.95,
		})
		assert.Equal(t, http.StatusLocked, rec.Code)
	})

	t.Run("dimension mismatch returns bad request", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/proposals", ProposalRequest{
			Vector:  []float64{0.99, 0.98},
			Quality: 0.95,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing vector returns bad request", func(t *testing.T) {
		server := setupTestServer(t)

		rec := postJSON(t, server, "/api/v1/proposals", ProposalRequest{Quality: 0.95})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleState(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var state kernel.SystemState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "NORMAL", state.Mode)
	assert.Equal(t, int64(1), state.LedgerLength)
	assert.InDelta(t, 0.70, state.Threshold, 1e-9)
}

func TestHandleDrift(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/drift", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Score   float64 `json:"score"`
		Healthy bool    `json:"healthy"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Healthy)
}

func TestHandleVerify(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/verify", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var res ledger.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Valid)
}

func TestHandleNodeSync(t *testing.T) {
	server := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nodes/sync", nil)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var report quorum.SyncReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Healthy)
	assert.Len(t, report.Nodes, 3)
}

func TestHandleRelevant(t *testing.T) {
	server := setupTestServer(t)

	rec := postJSON(t, server, "/api/v1/proposals", ProposalRequest{
		Vector:      []float64{0.99, 0.98, 0.95, 0.95},
		Quality:     0.95,
		Description: "baseline commitment",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, server, "/api/v1/commitments/relevant", RelevantRequest{
		Vector:    []float64{0.99, 0.98, 0.95, 0.95},
		Threshold: 0.90,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var matches []ledger.Relevance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matches))
	require.NotEmpty(t, matches)
	assert.Equal(t, "CAUSAL-V-2", matches[0].VectorID)

	t.Run("missing vector returns bad request", func(t *testing.T) {
		rec := postJSON(t, server, "/api/v1/commitments/relevant", RelevantRequest{Threshold: 0.5})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
