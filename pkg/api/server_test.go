package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/dsusage/pkg/codec"
	"github.com/ssargent/dsusage/pkg/transport"
)

func TestNewServerDefaults(t *testing.T) {
	server := NewServer(&fakeReporter{}, nil, ServerConfig{Bind: "127.0.0.1", Port: 9300}, nil, nil)

	assert.True(t, server.version.Equal(transport.Current))
	assert.Equal(t, int64(defaultMaxBodyBytes), server.config.MaxBodyBytes)
	assert.NotNil(t, server.metrics)
	assert.NotNil(t, server.logger)
	assert.Equal(t, "127.0.0.1:9300", server.Addr())

	older := NewServer(&fakeReporter{}, nil, ServerConfig{Version: &transport.V8_15_0}, nil, nil)
	assert.True(t, older.version.Equal(transport.V8_15_0))

	zero := transport.Zero
	oldest := NewServer(&fakeReporter{}, nil, ServerConfig{Version: &zero}, nil, nil)
	assert.True(t, oldest.version.IsZero())
}

func TestRouter_RequiresAPIKey(t *testing.T) {
	_, h := setupTestServer(t, &fakeReporter{}, nil)

	req := httptest.NewRequest("GET", "/api/v1/usage", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("GET", "/api/v1/usage", nil)
	req.Header.Set(headerAPIKey, "wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	server, h := setupTestServer(t, &fakeReporter{}, nil)

	doRequest(t, h, "GET", "/api/v1/usage/wire", nil, nil)
	doRequest(t, h, "GET", "/api/v1/health", nil, nil)

	// No API key needed for scraping
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "dsusage_http_requests_total")
	assert.Contains(t, body, "dsusage_codec_operations_total")
	assert.Contains(t, body, "dsusage_health_checks_total")

	m := server.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.codecOperationsTotal.WithLabelValues("encode", transport.Current.String(), statusSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.authRequestsTotal.WithLabelValues(statusSuccess)))
}

func TestMetrics_RecordUsage(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordUsage(sampleStats)
	m.RecordReport(true, 10*time.Millisecond)
	m.RecordReport(false, time.Millisecond)

	assert.Equal(t, 10.0, testutil.ToFloat64(m.usageCounts.WithLabelValues(codec.KeyDataStreams)))
	assert.Equal(t, 25.0, testutil.ToFloat64(m.usageCounts.WithLabelValues(codec.KeyIndicesCount)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.usageCounts.WithLabelValues(codec.KeyExplicitlyEnabledCount)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.usageCounts.WithLabelValues(codec.KeyEffectivelyEnabledCount)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.usageCounts.WithLabelValues(codec.KeyFailureIndicesCount)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reportsTotal.WithLabelValues(statusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reportsTotal.WithLabelValues(statusError)))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	// Two servers in one process must not collide on registration
	assert.NotPanics(t, func() {
		NewMetrics(nil)
		NewMetrics(nil)
	})
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := NewServer(&fakeReporter{}, nil, ServerConfig{Bind: "127.0.0.1", Port: 0, APIKey: testAPIKey}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_StartFailsOnBadAddress(t *testing.T) {
	server := NewServer(&fakeReporter{}, nil, ServerConfig{Bind: "256.0.0.1", Port: 1}, nil, nil)

	err := server.Start(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to serve api"))
}

func TestRouter_Swagger(t *testing.T) {
	_, h := setupTestServer(t, &fakeReporter{}, nil)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	t.Run("json document lists every route", func(t *testing.T) {
		w := get("/swagger/swagger.json")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, contentTypeJSON, w.Header().Get("Content-Type"))

		var doc struct {
			Swagger  string                     `json:"swagger"`
			BasePath string                     `json:"basePath"`
			Paths    map[string]json.RawMessage `json:"paths"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "2.0", doc.Swagger)
		assert.Equal(t, "/api/v1", doc.BasePath)
		for _, path := range []string{
			"/health", "/usage", "/usage/wire", "/usage/refresh",
			"/usage/decode", "/usage/encode", "/snapshots", "/snapshots/{id}",
		} {
			assert.Contains(t, doc.Paths, path)
		}
	})

	t.Run("yaml document", func(t *testing.T) {
		w := get("/swagger/swagger.yaml")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, contentTypeYAML, w.Header().Get("Content-Type"))

		var doc map[string]any
		require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "/api/v1", doc["basePath"])
		assert.Equal(t, "2.0", doc["swagger"])
		assert.Contains(t, w.Body.String(), "basePath: /api/v1\n")
	})

	t.Run("ui", func(t *testing.T) {
		w := get("/swagger/index.html")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "/swagger/swagger.json")
	})

	t.Run("unknown file", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get("/swagger/nope").Code)
	})
}
