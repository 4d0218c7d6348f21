package mcp

import (
	"context"
	stdjson "encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/nextron-mcp/internal/config"
)

func newTestServer(t *testing.T) (*Server, *fakeService) {
	svc := newFakeService()
	return NewServer(svc, "test", zaptest.NewLogger(t)), svc
}

func TestServer_ListsEveryTool(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	s.MCPServer().HandleMessage(ctx, stdjson.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`))
	resp := s.MCPServer().HandleMessage(ctx, stdjson.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				InputSchema struct {
					Required []string `json:"required"`
				} `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	required := map[string][]string{}
	for _, tool := range decoded.Result.Tools {
		required[tool.Name] = tool.InputSchema.Required
	}
	assert.Len(t, required, 7)
	assert.ElementsMatch(t, []string{"session_id"}, required[ToolCloseSession])
	assert.ElementsMatch(t, []string{"session_id"}, required[ToolLogin])
	assert.ElementsMatch(t, []string{"session_id", "email"}, required[ToolBuscarCliente])
	assert.ElementsMatch(t,
		[]string{"session_id", "nome_completo", "email", "telefone", "valor_conta_brl"},
		required[ToolGerarProposta])
	for _, name := range []string{ToolNewSession, ToolListSessions, ToolHealth} {
		assert.Contains(t, required, name)
		assert.Empty(t, required[name])
	}
}

func TestServer_HealthzRoute(t *testing.T) {
	s, svc := newTestServer(t)
	_, err := svc.NewSession(context.Background())
	require.NoError(t, err)

	router := s.Router(http.NotFoundHandler())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok","sessions":1,"engine_running":false}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sse", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "other paths reach the transport")
}

func TestServer_UnsupportedTransport(t *testing.T) {
	s, _ := newTestServer(t)
	err := s.Serve(context.Background(), config.TransportConfig{Mode: "grpc"})
	assert.ErrorContains(t, err, "unsupported transport")
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestServer_SSEStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, _ := newTestServer(t)
	cfg := config.TransportConfig{Mode: config.TransportSSE, Host: "127.0.0.1", Port: freePort(t)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, cfg) }()

	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + cfg.Address() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	client.CloseIdleConnections()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + 2*time.Second):
		t.Fatal("SSE transport did not stop")
	}
}

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000", publicBaseURL(config.TransportConfig{Host: "0.0.0.0", Port: 8000}))
	assert.Equal(t, "http://10.0.0.5:9000", publicBaseURL(config.TransportConfig{Host: "10.0.0.5", Port: 9000}))
	assert.Equal(t, "http://[::1]:8000", publicBaseURL(config.TransportConfig{Host: "::1", Port: 8000}))
}
