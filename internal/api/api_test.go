package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstheanurag/fnrunner/internal/executor"
	"github.com/itstheanurag/fnrunner/internal/languages"
	"github.com/itstheanurag/fnrunner/internal/limiter"
	"github.com/itstheanurag/fnrunner/internal/metrics"
	"github.com/itstheanurag/fnrunner/internal/model"
	"github.com/itstheanurag/fnrunner/internal/output"
	"github.com/itstheanurag/fnrunner/internal/queue"
	"github.com/itstheanurag/fnrunner/internal/sandbox"
	"github.com/itstheanurag/fnrunner/internal/sandbox/sandboxtest"
	"github.com/itstheanurag/fnrunner/internal/store"
	"github.com/itstheanurag/fnrunner/internal/worker"
	"github.com/itstheanurag/fnrunner/internal/workspace"
)

type testServer struct {
	router   http.Handler
	store    *store.Memory
	provider *sandboxtest.Provider
	root     string
}

func newTestServer(t *testing.T, behavior sandboxtest.Behavior) *testServer {
	t.Helper()
	logger := zerolog.Nop()
	registry := languages.NewRegistry()
	mem := store.NewMemory()
	provider := sandboxtest.New(behavior)
	root := t.TempDir()
	fs := afero.NewOsFs()

	exec := executor.NewExecutor(
		mem,
		workspace.NewProvisioner(fs, root, registry, &logger),
		sandbox.NewRunner(registry, provider, time.Second, &logger),
		output.NewCollector(fs, &logger),
		metrics.NewRecorder(mem, &logger),
		&logger,
	)

	q := queue.NewManager(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for i := 0; i < 4; i++ {
		go worker.NewWorker(i, exec, q, &logger).Start(ctx)
	}

	h := NewHandler(q, mem, mem, &logger)
	rl := limiter.NewRateLimiter(1000, 1000, 1000, 100)
	return &testServer{
		router:   NewRouter(h, rl, []string{"*"}),
		store:    mem,
		provider: provider,
		root:     root,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) register(t *testing.T, body string) model.Definition {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/functions", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var def model.Definition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &def))
	return def
}

func (s *testServer) executions(t *testing.T, id string) []model.ExecutionRecord {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/functions/"+id+"/executions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Executions []model.ExecutionRecord `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Executions
}

func TestInvoke_Echo(t *testing.T) {
	s := newTestServer(t, sandboxtest.Echo)
	def := s.register(t, `{"name":"Echo","route":"echo","code":"module.exports = 1","language":"javascript"}`)
	assert.Equal(t, model.DefaultTimeoutMS, def.TimeoutMS)

	w := s.do(t, http.MethodPost, "/invoke/echo", `{"a":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Result   map[string]any `json:"result"`
		Metadata struct {
			ExecutionTime *int64 `json:"executionTime"`
			FunctionName  string `json:"functionName"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, map[string]any{"a": float64(1)}, resp.Result)
	assert.Equal(t, "Echo", resp.Metadata.FunctionName)
	require.NotNil(t, resp.Metadata.ExecutionTime)
	assert.GreaterOrEqual(t, *resp.Metadata.ExecutionTime, int64(0))

	records := s.executions(t, def.ID)
	require.Len(t, records, 1)
	assert.Equal(t, model.ExecutionSuccess, records[0].Status)
}

func TestInvoke_AnyMethod(t *testing.T) {
	s := newTestServer(t, sandboxtest.WriteOutput(`"pong"`))
	s.register(t, `{"name":"Ping","code":"print(1)","language":"python"}`)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		w := s.do(t, method, "/invoke/ping", "")
		assert.Equal(t, http.StatusOK, w.Code, method)
		assert.Contains(t, w.Body.String(), `"result":"pong"`)
	}
}

func TestInvoke_InputArtifact(t *testing.T) {
	var captured []byte
	behavior := func(ctx context.Context, spec sandbox.Spec) int64 {
		captured, _ = os.ReadFile(spec.HostDir + "/" + workspace.InputFile)
		return sandboxtest.Echo(ctx, spec)
	}
	s := newTestServer(t, behavior)
	s.register(t, `{"name":"Inspect","route":"inspect","code":"x","language":"javascript"}`)

	req := httptest.NewRequest(http.MethodPost, "/invoke/inspect?single=1&multi=a&multi=b", bytes.NewBufferString("plain text"))
	req.Header.Set("X-Trace", "abc")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var input struct {
		Body    any               `json:"body"`
		Query   map[string]any    `json:"query"`
		Params  map[string]string `json:"params"`
		Headers map[string]string `json:"headers"`
	}
	require.NoError(t, json.Unmarshal(captured, &input))
	assert.Equal(t, "plain text", input.Body)
	assert.Equal(t, "1", input.Query["single"])
	assert.Equal(t, []any{"a", "b"}, input.Query["multi"])
	assert.Equal(t, map[string]string{"route": "inspect"}, input.Params)
	assert.Equal(t, "abc", input.Headers["x-trace"])
}

func TestInvoke_UnknownRoute(t *testing.T) {
	s := newTestServer(t, sandboxtest.Echo)

	w := s.do(t, http.MethodPost, "/invoke/nope", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Function not found"}`, w.Body.String())
	assert.Empty(t, s.provider.Specs())

	entries, err := os.ReadDir(s.root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvoke_FailuresAre500(t *testing.T) {
	cases := []struct {
		name     string
		behavior sandboxtest.Behavior
		timeout  int
		message  string
	}{
		{"non-zero exit", sandboxtest.Exit(1), 1000, "Function execution failed with status code 1"},
		{"timeout", sandboxtest.Hang, 100, "Function execution timed out"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, tc.behavior)
			def := s.register(t, `{"name":"Fails","route":"fails","code":"x","language":"javascript","timeout":`+
				jsonInt(tc.timeout)+`}`)

			w := s.do(t, http.MethodPost, "/invoke/fails", `{}`)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.JSONEq(t, `{"error":"`+tc.message+`"}`, w.Body.String())

			records := s.executions(t, def.ID)
			require.Len(t, records, 1)
			assert.Equal(t, model.ExecutionError, records[0].Status)
			assert.Equal(t, tc.message, records[0].Error)
		})
	}
}

func TestInvoke_InternalDetailsStayInTheLog(t *testing.T) {
	s := newTestServer(t, sandboxtest.Echo)
	s.provider.StartErr = errors.New("dial unix /var/run/docker.sock: connect: connection refused")
	def := s.register(t, `{"name":"Echo","code":"x","language":"javascript"}`)

	w := s.do(t, http.MethodPost, "/invoke/echo", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to start function sandbox"}`, w.Body.String())

	records := s.executions(t, def.ID)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Error, "docker.sock", "the record keeps the cause")
}

func TestInvoke_InvalidOutputIsSuccess(t *testing.T) {
	s := newTestServer(t, sandboxtest.WriteOutput("{{{"))
	def := s.register(t, `{"name":"Broken","code":"x","language":"javascript"}`)

	w := s.do(t, http.MethodPost, "/invoke/broken", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"result":{"error":"Function did not produce valid output"}`)

	records := s.executions(t, def.ID)
	require.Len(t, records, 1)
	assert.Equal(t, model.ExecutionSuccess, records[0].Status)
}

func TestFunctionLifecycle(t *testing.T) {
	s := newTestServer(t, sandboxtest.Echo)

	def := s.register(t, `{"name":"Hello World","code":"x","language":"python","timeout":5000}`)
	assert.Equal(t, "hello-world", def.Route)

	w := s.do(t, http.MethodPost, "/api/functions", `{"name":"Other","route":"hello-world","code":"x","language":"python"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/functions", `{"name":"Bad","code":"x","language":"ruby"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/functions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Definition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = s.do(t, http.MethodPut, "/api/functions/"+def.ID, `{"route":"hi","timeout":1000}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated model.Definition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "hi", updated.Route)
	assert.Equal(t, int64(1000), updated.TimeoutMS)
	assert.Equal(t, "Hello World", updated.Name)
	assert.False(t, updated.UpdatedAt.Before(def.UpdatedAt))

	w = s.do(t, http.MethodPut, "/api/functions/"+def.ID, `{"timeout":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/functions/"+def.ID, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodDelete, "/api/functions/"+def.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Function deleted"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/functions/"+def.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodDelete, "/api/functions/"+def.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListExecutions_Limit(t *testing.T) {
	s := newTestServer(t, sandboxtest.Echo)
	def := s.register(t, `{"name":"Echo","code":"x","language":"javascript"}`)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/invoke/echo", `{}`).Code)
	}

	w := s.do(t, http.MethodGet, "/api/functions/"+def.ID+"/executions?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Executions []model.ExecutionRecord `json:"executions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Executions, 2)

	w = s.do(t, http.MethodGet, "/api/functions/"+def.ID+"/executions?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, sandboxtest.Echo)
	w := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
