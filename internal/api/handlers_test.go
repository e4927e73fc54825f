package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/mwrona/receiptor/internal/access"
	"github.com/mwrona/receiptor/internal/config"
	"github.com/mwrona/receiptor/internal/mailer"
	"github.com/mwrona/receiptor/internal/metrics"
	"github.com/mwrona/receiptor/internal/store"
	"github.com/mwrona/receiptor/internal/wizard"
)

type fakeDispatcher struct {
	sent []*wizard.Outbound
	err  error
}

func (d *fakeDispatcher) Send(_ context.Context, out *wizard.Outbound) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, out)
	return nil
}

type gateAdapter struct {
	gate *access.Gate
}

func (a gateAdapter) Check(ctx context.Context, userID string) (bool, string) {
	res := a.gate.Check(ctx, userID)
	return res.Allowed, res.Reason
}

type testServer struct {
	server     *Server
	store      *store.Store
	dispatcher *fakeDispatcher
	sessions   *wizard.MemorySessionStore
}

func newTestServer(t *testing.T, apiCfg *config.APIConfig) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	sessions := wizard.NewMemorySessionStore()
	dispatcher := &fakeDispatcher{}

	w := wizard.New(wizard.Config{
		Sessions:   sessions,
		Profiles:   st,
		Usage:      st,
		Gate:       gateAdapter{gate: access.NewGate(st, st)},
		Dispatcher: dispatcher,
		LoadDoc: func(string) (string, error) {
			return "<html>ORDER_NUMBER PRODUCT_NAME TOTAL EMAIL</html>", nil
		},
		Logger: logger,
	})

	if apiCfg == nil {
		apiCfg = &config.APIConfig{ListenAddr: ":0"}
	}
	m := metrics.New(sessions.Len)
	srv := NewServer(w, st, m, apiCfg, "test", logger)

	return &testServer{server: srv, store: st, dispatcher: dispatcher, sessions: sessions}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decode[HealthResponse](t, rec)
	if resp.Status != "ok" || resp.Version != "test" {
		t.Errorf("response = %+v", resp)
	}
}

func TestTemplates(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/wizard/templates", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	list := decode[[]TemplateInfo](t, rec)
	if len(list) != 10 {
		t.Fatalf("got %d templates, want 10", len(list))
	}
	byID := make(map[string]TemplateInfo, len(list))
	for _, ti := range list {
		byID[ti.ID] = ti
	}
	if byID["moncler"].Stages != 3 {
		t.Errorf("moncler stages = %d, want 3", byID["moncler"].Stages)
	}
	if byID["nike"].Stages != 2 {
		t.Errorf("nike stages = %d, want 2", byID["nike"].Stages)
	}
	if byID["stockx"].DisplayName != "Stockx" {
		t.Errorf("stockx display name = %q", byID["stockx"].DisplayName)
	}
}

func TestOrderFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/wizard/u1/select", SelectRequest{Template: "nike"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d: %s", rec.Code, rec.Body.String())
	}
	step := decode[wizard.StepResult](t, rec)
	if step.Stage != wizard.StageOrder1 {
		t.Fatalf("stage = %v", step.Stage)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/wizard/u1/stage", SubmitRequest{Values: map[string]string{
		"brand": "Nike", "product": "Air Max 90", "size": "10", "price": "120",
	}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stage 1 status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/wizard/u1/stage", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current stage status = %d", rec.Code)
	}
	step = decode[wizard.StepResult](t, rec)
	if step.Stage != wizard.StageOrder2 {
		t.Fatalf("stage = %v, want %v", step.Stage, wizard.StageOrder2)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/wizard/u1/stage", SubmitRequest{Values: map[string]string{
		"email":     "buyer@example.org",
		"date":      "22/12/2024",
		"image_url": "https://i.example.com/shoe.jpg",
		"currency":  "USD",
		"card_end":  "4242",
	}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stage 2 status = %d: %s", rec.Code, rec.Body.String())
	}
	step = decode[wizard.StepResult](t, rec)
	if !step.Done || step.Summary == nil {
		t.Fatalf("expected completion, got %+v", step)
	}
	if step.Summary.Total != "$138.90" {
		t.Errorf("Total = %q, want $138.90", step.Summary.Total)
	}
	if len(ts.dispatcher.sent) != 1 {
		t.Errorf("dispatched %d messages, want 1", len(ts.dispatcher.sent))
	}
}

func TestDispatchFailureResponse(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "temporary",
			err:     &mailer.DeliveryError{Temporary: true, Message: "451 try again"},
			message: "receipt delivery failed, try again later",
		},
		{
			name:    "permanent",
			err:     &mailer.DeliveryError{Temporary: false, Message: "550 no such user"},
			message: "receipt delivery rejected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.dispatcher.err = tt.err

			rec := ts.do(t, http.MethodPost, "/api/v1/wizard/u1/select", SelectRequest{Template: "stockx"}, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("select status = %d", rec.Code)
			}
			rec = ts.do(t, http.MethodPost, "/api/v1/wizard/u1/stage", SubmitRequest{Values: map[string]string{
				"brand": "Nike", "product": "Dunk Low", "price": "250",
			}}, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("stage 1 status = %d", rec.Code)
			}

			rec = ts.do(t, http.MethodPost, "/api/v1/wizard/u1/stage", SubmitRequest{Values: map[string]string{
				"email":     "buyer@example.org",
				"date":      "22/12/2024",
				"image_url": "https://i.example.com/shoe.jpg",
				"style_id":  "DD1391-100",
			}}, nil)
			if rec.Code != http.StatusBadGateway {
				t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body.String())
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Error != tt.message {
				t.Errorf("error = %q, want %q", resp.Error, tt.message)
			}
		})
	}
}

func TestSelectUnknownTemplate(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/wizard/u1/select", SelectRequest{Template: "gucci"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitWithoutSession(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/v1/wizard/u1/stage", SubmitRequest{Values: map[string]string{"brand": "Nike"}}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestValidationErrorResponse(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.do(t, http.MethodPost, "/api/v1/wizard/u1/select", SelectRequest{Template: "stockx"}, nil)
	rec := ts.do(t, http.MethodPost, "/api/v1/wizard/u1/stage", SubmitRequest{Values: map[string]string{
		"brand": "Nike", "product": "Dunk Low", "price": "-5",
	}}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Field != "price" {
		t.Errorf("Field = %q, want price", resp.Field)
	}
}

func TestAbortEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodDelete, "/api/v1/wizard/u1", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("abort without session status = %d, want 409", rec.Code)
	}

	ts.do(t, http.MethodPost, "/api/v1/wizard/u1/select", SelectRequest{Template: "stockx"}, nil)
	rec = ts.do(t, http.MethodDelete, "/api/v1/wizard/u1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("abort status = %d, want 200", rec.Code)
	}
	if ts.sessions.Len() != 0 {
		t.Error("session still present after abort")
	}
}

func TestSettingsFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/settings/u1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("profile before settings status = %d, want 404", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/settings/u1/start", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	step := decode[wizard.StepResult](t, rec)
	if step.Stage != wizard.StageSettings1 {
		t.Fatalf("stage = %v", step.Stage)
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/settings/u1/stage", SubmitRequest{Values: map[string]string{
		"full_name":  "Jan Kowalski",
		"user_email": "jan@example.com",
		"city":       "Warsaw",
	}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("settings stage 1 status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/settings/u1/stage", SubmitRequest{Values: map[string]string{
		"country": "Poland",
	}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("settings stage 2 status = %d: %s", rec.Code, rec.Body.String())
	}
	step = decode[wizard.StepResult](t, rec)
	if !step.Done || step.Profile == nil {
		t.Fatalf("expected completed settings run, got %+v", step)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/settings/u1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status = %d, want 200", rec.Code)
	}
	profile := decode[store.Profile](t, rec)
	if profile.FullName != "Jan Kowalski" || profile.Country != "Poland" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestAdminLimits(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPut, "/api/v1/admin/limits/u1", LimitRequest{Limit: 3}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("set limit status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/limits/u1", nil, nil)
	resp := decode[LimitResponse](t, rec)
	if resp.Limit != 3 {
		t.Errorf("Limit = %d, want 3", resp.Limit)
	}

	rec = ts.do(t, http.MethodPut, "/api/v1/admin/limits/u1", LimitRequest{Limit: -2}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid limit status = %d, want 400", rec.Code)
	}

	rec = ts.do(t, http.MethodDelete, "/api/v1/admin/limits/u1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset limit status = %d", rec.Code)
	}
	rec = ts.do(t, http.MethodGet, "/api/v1/admin/limits/u1", nil, nil)
	resp = decode[LimitResponse](t, rec)
	if resp.Limit != store.Unlimited {
		t.Errorf("Limit after reset = %d, want unlimited", resp.Limit)
	}
}

func TestAdminAccess(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/admin/access/u1", nil, nil)
	status := decode[AccessResponse](t, rec)
	if !status.Allowed || !status.WindowUnlimited {
		t.Errorf("fresh user status = %+v, want allowed and unlimited", status)
	}

	rec = ts.do(t, http.MethodPut, "/api/v1/admin/access/u1", GrantRequest{Days: 7}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("grant status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/access/u1", nil, nil)
	status = decode[AccessResponse](t, rec)
	if !status.Allowed || status.WindowUnlimited {
		t.Errorf("granted status = %+v", status)
	}
	if status.DaysLeft != 7 {
		t.Errorf("DaysLeft = %d, want 7", status.DaysLeft)
	}

	rec = ts.do(t, http.MethodPut, "/api/v1/admin/access/u1", GrantRequest{Days: 0}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("grant 0 days status = %d, want 400", rec.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	ts := newTestServer(t, &config.APIConfig{
		ListenAddr:     ":0",
		AdminTokenHash: string(hash),
	})

	rec := ts.do(t, http.MethodGet, "/api/v1/admin/limits/u1", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/limits/u1", nil, map[string]string{
		"Authorization": "Bearer wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d, want 401", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/admin/limits/u1", nil, map[string]string{
		"Authorization": "Bearer hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token status = %d, want 200", rec.Code)
	}

	// Non-admin routes stay open.
	rec = ts.do(t, http.MethodGet, "/api/v1/wizard/templates", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("templates status = %d, want 200", rec.Code)
	}
}
