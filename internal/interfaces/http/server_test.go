package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpwatch/internal/alert"
	"github.com/sawpanic/pumpwatch/internal/metrics"
	"github.com/sawpanic/pumpwatch/internal/models"
	"github.com/sawpanic/pumpwatch/internal/net/circuit"
	"github.com/sawpanic/pumpwatch/internal/scan"
	"github.com/sawpanic/pumpwatch/internal/store"
)

type stubCycles struct{ last scan.CycleSummary }

func (s *stubCycles) LastCycle() scan.CycleSummary { return s.last }

func newServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ops.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cycles := &stubCycles{last: scan.CycleSummary{
		Started: time.Now(), Universe: 12, Scanned: 12, Alerts: 2,
	}}
	m := metrics.New()
	m.CyclesTotal.Inc()
	return New("127.0.0.1:0", st, cycles, circuit.NewSet(), m), st
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.StoreOK)
}

func TestStatusEndpoint(t *testing.T) {
	s, st := newServer(t)
	require.NoError(t, st.PutScanResult(context.Background(), &models.ScanResult{
		Symbol: "TOKENX", T: time.Now().UnixMilli(), FinalScore: 55,
		Classification: models.ClassWatchlist, Quality: models.QualityHigh,
	}))

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 12, body.Cycle.Universe)
	require.Len(t, body.Top, 1)
	assert.Equal(t, "TOKENX", body.Top[0].Symbol)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pumpwatch_cycles_total")
}

func TestStreamBroadcast(t *testing.T) {
	s, _ := newServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	sent := alert.Textf(alert.SeverityInfo, "TOKENX", "hello stream")
	require.NoError(t, s.Hub().Send(context.Background(), sent))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got alert.Alert
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "TOKENX", got.Symbol)
	assert.Equal(t, "hello stream", got.Text)
}

func TestHubCloseDropsClients(t *testing.T) {
	s, _ := newServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	s.Hub().Close()
	assert.Zero(t, s.Hub().ClientCount())
}
