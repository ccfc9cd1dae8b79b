package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/chartbridge/internal/bridge"
	"github.com/dgnsrekt/chartbridge/internal/controller"
	"github.com/dgnsrekt/chartbridge/internal/relay"
)

type stubService struct {
	err        error
	lastScript string
	waited     bool
}

func (s *stubService) CreateWindow(ctx context.Context, name string, opts bridge.WindowOptions) (controller.WindowInfo, error) {
	if s.err != nil {
		return controller.WindowInfo{}, s.err
	}
	return controller.WindowInfo{Name: name, Handle: 1, Options: opts}, nil
}
func (s *stubService) ListWindows(ctx context.Context) ([]controller.WindowInfo, error) {
	return []controller.WindowInfo{{Name: "main", Handle: 1}}, s.err
}
func (s *stubService) Evaluate(ctx context.Context, name, script string) error {
	s.lastScript = script
	return s.err
}
func (s *stubService) EvaluateReturn(ctx context.Context, name, script string) (json.RawMessage, error) {
	s.lastScript = script
	s.waited = true
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(`{"bars":3}`), nil
}
func (s *stubService) Show(ctx context.Context, name string) error { return s.err }
func (s *stubService) Hide(ctx context.Context, name string) error { return s.err }
func (s *stubService) Start(ctx context.Context) (controller.StateInfo, error) {
	return controller.StateInfo{State: "running", Windows: 1, PumpAlive: true}, s.err
}
func (s *stubService) Exit(ctx context.Context) (controller.StateInfo, error) {
	return controller.StateInfo{State: "not_started"}, s.err
}
func (s *stubService) State(ctx context.Context) (controller.StateInfo, error) {
	return controller.StateInfo{State: "running", Windows: 1}, s.err
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDocsRoute(t *testing.T) {
	h := NewServer(&stubService{}, relay.NewBroker())
	rec := doRequest(t, h, http.MethodGet, "/docs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /docs status = %d; want 200", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/openapi.json", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/v1/windows/{name}/eval") {
		t.Fatalf("GET /openapi.json = %d; want eval operation listed", rec.Code)
	}
	rec = doRequest(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("GET /health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestWindowRoutes(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, relay.NewBroker())

	rec := doRequest(t, h, http.MethodPost, "/api/v1/windows", `{"name":"main","options":{"width":800,"height":600}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/v1/windows status = %d; want 201 (%s)", rec.Code, rec.Body.String())
	}
	var info controller.WindowInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode window: %v", err)
	}
	if info.Name != "main" || info.Options.Width != 800 {
		t.Fatalf("created window = %+v", info)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/windows/main/eval", `{"script":"draw()"}`)
	if rec.Code != http.StatusOK || svc.waited || svc.lastScript != "draw()" {
		t.Fatalf("eval without wait = %d waited=%v script=%q", rec.Code, svc.waited, svc.lastScript)
	}
	if !strings.Contains(rec.Body.String(), `"queued"`) {
		t.Fatalf("eval body = %s; want queued status", rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/windows/main/eval", `{"script":"count()","wait":true}`)
	if rec.Code != http.StatusOK || !svc.waited {
		t.Fatalf("eval with wait = %d waited=%v", rec.Code, svc.waited)
	}
	var evalBody struct {
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &evalBody); err != nil {
		t.Fatalf("decode eval: %v", err)
	}
	if evalBody.Status != "done" || string(evalBody.Result) != `{"bars":3}` {
		t.Fatalf("eval result = %+v", evalBody)
	}

	for _, path := range []string{"/api/v1/windows/main/show", "/api/v1/windows/main/hide"} {
		if rec := doRequest(t, h, http.MethodPost, path, ""); rec.Code != http.StatusOK {
			t.Fatalf("POST %s status = %d; want 200", path, rec.Code)
		}
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/v1/windows", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"main"`) {
		t.Fatalf("GET /api/v1/windows = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRendererRoutes(t *testing.T) {
	h := NewServer(&stubService{}, relay.NewBroker())
	cases := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/renderer", `"running"`},
		{http.MethodPost, "/api/v1/renderer/start", `"pump_alive":true`},
		{http.MethodPost, "/api/v1/renderer/exit", `"not_started"`},
	}
	for _, tc := range cases {
		rec := doRequest(t, h, tc.method, tc.path, "")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), tc.want) {
			t.Fatalf("%s %s = %d %s; want body containing %s", tc.method, tc.path, rec.Code, rec.Body.String(), tc.want)
		}
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &bridge.CodedError{Code: bridge.CodeValidation, Message: "bad"}, http.StatusBadRequest},
		{"unknown window", &bridge.CodedError{Code: bridge.CodeUnknownWindow, Message: "nope"}, http.StatusNotFound},
		{"no windows", &bridge.CodedError{Code: bridge.CodeNoWindows, Message: "none"}, http.StatusConflict},
		{"return timeout", &bridge.CodedError{Code: bridge.CodeReturnTimeout, Message: "slow"}, http.StatusGatewayTimeout},
		{"queue full", &bridge.CodedError{Code: bridge.CodeQueueFull, Message: "full"}, http.StatusServiceUnavailable},
		{"renderer exited", &bridge.CodedError{Code: bridge.CodeRendererExited, Message: "gone"}, http.StatusBadGateway},
		{"script", &bridge.ScriptingError{Script: "x", Diag: bridge.ScriptError{Name: "ReferenceError", Line: 1, Column: 2, Message: "x is not defined"}}, http.StatusUnprocessableEntity},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var se huma.StatusError
			if !errors.As(mapErr(tc.err), &se) {
				t.Fatalf("mapErr(%v) is not a huma.StatusError", tc.err)
			}
			if se.GetStatus() != tc.want {
				t.Fatalf("mapErr(%v) status = %d; want %d", tc.err, se.GetStatus(), tc.want)
			}
		})
	}
	if mapErr(nil) != nil {
		t.Fatalf("mapErr(nil) != nil")
	}

	h := NewServer(&stubService{err: &bridge.ScriptingError{Diag: bridge.ScriptError{Name: "TypeError", Line: 3, Column: 4, Message: "boom"}}}, relay.NewBroker())
	rec := doRequest(t, h, http.MethodPost, "/api/v1/windows/main/eval", `{"script":"boom()","wait":true}`)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "TypeError[3:4] boom") {
		t.Fatalf("scripting failure = %d %s", rec.Code, rec.Body.String())
	}
}
