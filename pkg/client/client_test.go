package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/formbridge/pkg/client"
	"github.com/aretw0/formbridge/pkg/domain"
)

type recorded struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

type fakeDashboard struct {
	mu       sync.Mutex
	requests []recorded
	status   int
	reply    any
}

func (f *fakeDashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
	status, reply := f.status, f.reply
	f.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if reply != nil {
		_ = json.NewEncoder(w).Encode(reply)
	}
}

func (f *fakeDashboard) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newDashboard(t *testing.T, cfg client.Config, opts ...client.Option) (*fakeDashboard, *client.Client) {
	t.Helper()
	fake := &fakeDashboard{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL + "/api/"
	c, err := client.New(cfg, opts...)
	require.NoError(t, err)
	return fake, c
}

var params = []domain.Parameter{
	{Name: "pEmpleado", Value: "JUAN", Direction: domain.DirectionInput},
	{Name: "vAprobado", Value: "SI", Direction: domain.DirectionVariable},
}

func TestClient_RaiseEvent(t *testing.T) {
	fake, c := newDashboard(t, client.Config{Token: "secret"})
	fake.reply = map[string]any{"instanceId": "inst-42", "status": "running"}

	receipt, err := c.RaiseEvent(context.Background(), domain.Submission{
		ID:         "sub-1",
		Mapping:    "reembolso",
		EventName:  "SolicitudReembolso",
		Parameters: params,
	})
	require.NoError(t, err)

	assert.Equal(t, "sub-1", receipt.SubmissionID)
	assert.Equal(t, "inst-42", receipt.InstanceID)
	assert.Equal(t, "running", receipt.Status)
	assert.False(t, receipt.ReceivedAt.IsZero())

	req := fake.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/instances", req.Path)
	assert.Equal(t, "secret", req.Header.Get("X-Dashboard-Token"))
	assert.Equal(t, "formbridge", req.Header.Get("User-Agent"))
	assert.Equal(t, "SolicitudReembolso", req.Body["eventName"])
	assert.Equal(t, "sub-1", req.Body["submissionId"])
	assert.Equal(t, []any{
		map[string]any{"name": "pEmpleado", "value": "JUAN", "direction": "Input"},
		map[string]any{"name": "vAprobado", "value": "SI", "direction": "Variable"},
	}, req.Body["parameters"])
}

func TestClient_ContinueInstance(t *testing.T) {
	fake, c := newDashboard(t, client.Config{})
	receivedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fake.reply = map[string]any{
		"receivedAt": receivedAt,
		"parameters": []map[string]any{
			{"name": "pEcho", "value": "1", "parameterDirection": 1, "isVariable": true},
		},
	}

	receipt, err := c.ContinueInstance(context.Background(), domain.Submission{
		ID:         "sub-2",
		InstanceID: "inst-7",
		Parameters: params[:1],
	})
	require.NoError(t, err)

	assert.Equal(t, "inst-7", receipt.InstanceID, "instance id falls back to the submission")
	assert.True(t, receivedAt.Equal(receipt.ReceivedAt))
	assert.Equal(t, []domain.Parameter{{Name: "pEcho", Value: "1", Direction: domain.DirectionVariable}}, receipt.Parameters)

	req := fake.last(t)
	assert.Equal(t, "/api/instances/inst-7/continue", req.Path)
	assert.Empty(t, req.Header.Get("X-Dashboard-Token"))
	_, hasEvent := req.Body["eventName"]
	assert.False(t, hasEvent)
}

func TestClient_LegacyWireFormat(t *testing.T) {
	fake, c := newDashboard(t, client.Config{WireFormat: client.WireLegacy, TokenHeader: "Authorization", Token: "Bearer x"})

	_, err := c.RaiseEvent(context.Background(), domain.Submission{EventName: "E", Parameters: params})
	require.NoError(t, err)

	req := fake.last(t)
	assert.Equal(t, "Bearer x", req.Header.Get("Authorization"))
	assert.Equal(t, []any{
		map[string]any{"name": "pEmpleado", "value": "JUAN", "parameterDirection": float64(1), "isVariable": false},
		map[string]any{"name": "vAprobado", "value": "SI", "parameterDirection": float64(1), "isVariable": true},
	}, req.Body["parameters"])
}

func TestClient_EmptyParametersAreAnArray(t *testing.T) {
	fake, c := newDashboard(t, client.Config{})

	_, err := c.RaiseEvent(context.Background(), domain.Submission{EventName: "E"})
	require.NoError(t, err)
	assert.Equal(t, []any{}, fake.last(t).Body["parameters"])
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		reply        any
		unauthorized bool
		temporary    bool
		message      string
	}{
		{name: "Unauthorized", status: http.StatusUnauthorized, reply: map[string]string{"error": "bad token"}, unauthorized: true, message: "bad token"},
		{name: "Forbidden", status: http.StatusForbidden, unauthorized: true},
		{name: "Validation", status: http.StatusUnprocessableEntity, reply: map[string]string{"message": "unknown event"}, message: "unknown event"},
		{name: "Unavailable", status: http.StatusServiceUnavailable, reply: map[string]string{"detail": "down"}, temporary: true, message: "down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, c := newDashboard(t, client.Config{})
			fake.status = tt.status
			fake.reply = tt.reply

			_, err := c.RaiseEvent(context.Background(), domain.Submission{EventName: "E"})
			require.Error(t, err)

			var apiErr *client.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.unauthorized, errors.Is(err, client.ErrUnauthorized))
			assert.Equal(t, tt.temporary, apiErr.Temporary())
		})
	}
}

func TestClient_RejectsIncompleteSubmissions(t *testing.T) {
	fake, c := newDashboard(t, client.Config{})

	_, err := c.RaiseEvent(context.Background(), domain.Submission{})
	assert.Error(t, err)
	_, err = c.ContinueInstance(context.Background(), domain.Submission{})
	assert.Error(t, err)

	assert.Empty(t, fake.requests)
}

func TestClient_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	fake, c := newDashboard(t, client.Config{}, client.WithTracerProvider(tp))
	fake.reply = map[string]any{"instanceId": "inst-1"}

	_, err := c.RaiseEvent(context.Background(), domain.Submission{ID: "s", Mapping: "m", EventName: "E"})
	require.NoError(t, err)

	fake.status = http.StatusInternalServerError
	_, err = c.ContinueInstance(context.Background(), domain.Submission{ID: "s", InstanceID: "inst-1"})
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "dashboard.raise_event", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "dashboard.continue_instance", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestNew_Validation(t *testing.T) {
	_, err := client.New(client.Config{})
	assert.Error(t, err)

	_, err = client.New(client.Config{BaseURL: "not a url"})
	assert.Error(t, err)

	_, err = client.New(client.Config{BaseURL: "http://x", WireFormat: "xml"})
	assert.Error(t, err)

	c, err := client.New(client.Config{BaseURL: "http://x"})
	require.NoError(t, err)
	assert.Equal(t, client.WireStandard, c.Config().WireFormat)
	assert.Equal(t, "X-Dashboard-Token", c.Config().TokenHeader)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("FORMBRIDGE_DASHBOARD_BASE_URL", "https://bpm.example.com/api")
	t.Setenv("FORMBRIDGE_DASHBOARD_TOKEN", "tok")
	t.Setenv("FORMBRIDGE_DASHBOARD_TIMEOUT", "3s")
	t.Setenv("FORMBRIDGE_DASHBOARD_WIRE_FORMAT", "legacy")

	cfg, err := client.ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://bpm.example.com/api", cfg.BaseURL)
	assert.Equal(t, "tok", cfg.Token)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, client.WireLegacy, cfg.WireFormat)
	assert.Equal(t, "X-Dashboard-Token", cfg.TokenHeader)
	assert.Equal(t, "formbridge", cfg.UserAgent)
}
