package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/procurebot/internal/api"
	"github.com/zulandar/procurebot/internal/models"
	"github.com/zulandar/procurebot/internal/realtime"
)

type fakeRecords struct {
	recs map[string]*models.Negotiation
}

func (f *fakeRecords) GetNegotiation(ctx context.Context, id string) (*models.Negotiation, error) {
	if rec, ok := f.recs[id]; ok {
		return rec, nil
	}
	return nil, &api.Error{Status: http.StatusNotFound, Message: "Negotiation not found"}
}

type fakeExporter struct{}

func (fakeExporter) ExportPDF(ctx context.Context, id string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("%PDF-1.4 " + id)), nil
}

func testRecords() *fakeRecords {
	return &fakeRecords{recs: map[string]*models.Negotiation{
		"n1": {
			ID: "n1", Name: "Steel rods", Status: models.StatusActive,
			TargetDetails: models.TargetDetails{BuyerName: "Priya", SupplierName: "Rolling Mills"},
			ChatHistory: []models.ChatMessage{
				{Sender: models.RoleBuyer, Text: "**Target** is 90", Timestamp: "2026-03-01T10:00:00.000Z"},
				{Sender: models.RoleSupplier, Text: "We can do 95", Timestamp: "2026-03-01T10:05:00.000Z"},
			},
		},
	}}
}

func newTestRouter(t *testing.T, opts StartOpts) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if opts.Backend == nil {
		opts.Backend = &fakeBackend{codes: map[string]bool{"buyer@example.com": true}, list: sampleList()}
	}
	if opts.Records == nil {
		opts.Records = testRecords()
	}
	router, err := newRouter(opts)
	if err != nil {
		t.Fatalf("newRouter: %v", err)
	}
	return router
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func post(router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, router http.Handler) {
	t.Helper()
	w := post(router, "/login", url.Values{"email": {"buyer@example.com"}, "code": {"123456"}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("POST /login status = %d, want 303", w.Code)
	}
}

func TestNewRouter_RequiresBackend(t *testing.T) {
	_, err := newRouter(StartOpts{Records: testRecords()})
	if err == nil || !strings.Contains(err.Error(), "backend is required") {
		t.Errorf("err = %v, want backend is required", err)
	}
}

func TestNewRouter_RequiresRecords(t *testing.T) {
	_, err := newRouter(StartOpts{Backend: &fakeBackend{}})
	if err == nil || !strings.Contains(err.Error(), "records client is required") {
		t.Errorf("err = %v, want records client is required", err)
	}
}

func TestEmbeddedFiles(t *testing.T) {
	if data, err := assetsFS.ReadFile("assets/style.css"); err != nil || len(data) == 0 {
		t.Errorf("style.css not embedded: %v", err)
	}
	data, err := templatesFS.ReadFile("templates/layout.html")
	if err != nil {
		t.Fatalf("layout.html not embedded: %v", err)
	}
	if !strings.Contains(string(data), "ProcureBot") {
		t.Error("layout.html does not contain 'ProcureBot'")
	}
}

func TestStaticCSS(t *testing.T) {
	w := get(newTestRouter(t, StartOpts{}), "/static/style.css")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestIndex_LoggedOut(t *testing.T) {
	w := get(newTestRouter(t, StartOpts{}), "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Buyer login") {
		t.Error("index should show the login card")
	}
	if strings.Contains(body, "Steel rods") {
		t.Error("list must not be shown before login")
	}
}

func TestCheckThenCodePrompt(t *testing.T) {
	router := newTestRouter(t, StartOpts{})
	w := post(router, "/check", url.Values{"email": {"buyer@example.com"}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("POST /check status = %d, want 303", w.Code)
	}
	body := get(router, "/").Body.String()
	if !strings.Contains(body, "Dashboard code") {
		t.Error("code prompt missing after a positive email check")
	}
}

func TestCheckUnknownEmail(t *testing.T) {
	router := newTestRouter(t, StartOpts{})
	post(router, "/check", url.Values{"email": {"new@example.com"}})
	body := get(router, "/").Body.String()
	if !strings.Contains(body, "No dashboard code exists") {
		t.Error("missing hint for an email without a code")
	}
}

func TestIndex_LoggedInTabs(t *testing.T) {
	router := newTestRouter(t, StartOpts{})
	login(t, router)

	body := get(router, "/").Body.String()
	for _, want := range []string{"Steel rods", "Packaging", "Rolling Mills"} {
		if !strings.Contains(body, want) {
			t.Errorf("active tab missing %q", want)
		}
	}
	if strings.Contains(body, "Cement") {
		t.Error("active tab lists a concluded negotiation")
	}

	body = get(router, "/?tab=concluded").Body.String()
	if !strings.Contains(body, "Cement") || strings.Contains(body, "Steel rods") {
		t.Error("concluded tab shows the wrong negotiations")
	}
}

func TestIndex_Search(t *testing.T) {
	router := newTestRouter(t, StartOpts{})
	login(t, router)

	body := get(router, "/?tab=all&q=acme").Body.String()
	if !strings.Contains(body, "Packaging") {
		t.Error("search for acme should match the nested supplier")
	}
	if strings.Contains(body, "Steel rods") {
		t.Error("search for acme should not match Steel rods")
	}
}

func TestListJSON(t *testing.T) {
	router := newTestRouter(t, StartOpts{})
	if w := get(router, "/api/negotiations"); w.Code != http.StatusUnauthorized {
		t.Errorf("before login status = %d, want 401", w.Code)
	}
	login(t, router)

	w := get(router, "/api/negotiations?tab=active")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp listResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Negotiations) != 2 {
		t.Errorf("negotiations = %d, want 2", len(resp.Negotiations))
	}
	want := Counters{Total: 3, Active: 2, Concluded: 1, Suppliers: 3}
	if resp.Counters != want {
		t.Errorf("counters = %+v, want %+v", resp.Counters, want)
	}
}

func TestLoginFailure_ShowsError(t *testing.T) {
	backend := &fakeBackend{listErr: &api.Error{Status: 401, Message: "Invalid dashboard code"}}
	router := newTestRouter(t, StartOpts{Backend: backend})
	post(router, "/login", url.Values{"email": {"buyer@example.com"}, "code": {"bad"}})

	body := get(router, "/").Body.String()
	if !strings.Contains(body, "Invalid dashboard code") {
		t.Error("login error not shown")
	}
	if w := get(router, "/api/negotiations"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestDeleteRoute(t *testing.T) {
	backend := &fakeBackend{list: sampleList()}
	router := newTestRouter(t, StartOpts{Backend: backend})
	login(t, router)

	tests := []struct {
		name string
		form url.Values
		want int
	}{
		{"unconfirmed", url.Values{"email": {"buyer@example.com"}, "code": {"123456"}}, http.StatusBadRequest},
		{"wrong code", url.Values{"confirm": {"yes"}, "email": {"buyer@example.com"}, "code": {"1"}}, http.StatusForbidden},
		{"ok", url.Values{"confirm": {"yes"}, "email": {"buyer@example.com"}, "code": {"123456"}}, http.StatusSeeOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(router, "/negotiations/n1/delete", tt.form)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
	if len(backend.deleted) != 1 {
		t.Errorf("backend deletes = %d, want 1", len(backend.deleted))
	}
	if strings.Contains(get(router, "/?tab=all").Body.String(), "Steel rods") {
		t.Error("deleted negotiation still listed")
	}
}

func TestDeleteRoute_NotLoggedIn(t *testing.T) {
	router := newTestRouter(t, StartOpts{})
	w := post(router, "/negotiations/n1/delete", url.Values{"confirm": {"yes"}, "email": {"a@b.c"}, "code": {"1"}})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestNegotiationPage(t *testing.T) {
	w := get(newTestRouter(t, StartOpts{}), "/negotiations/n1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"Steel rods", "Supplier: Rolling Mills", "Priya - AI Bot", "Target is 90", "We can do 95"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(body, "EventSource") {
		t.Error("live script rendered without a session factory")
	}
}

func TestNegotiationPage_NotFound(t *testing.T) {
	w := get(newTestRouter(t, StartOpts{}), "/negotiations/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Negotiation not found") {
		t.Error("error page missing backend message")
	}
}

func TestExportPDF(t *testing.T) {
	w := get(newTestRouter(t, StartOpts{}), "/negotiations/n1/pdf")
	if w.Code != http.StatusNotImplemented {
		t.Errorf("without exporter status = %d, want 501", w.Code)
	}

	w = get(newTestRouter(t, StartOpts{Exporter: fakeExporter{}}), "/negotiations/n1/pdf")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content-type = %q, want application/pdf", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF") {
		t.Error("body is not the exported document")
	}
}

func TestEvents_NotConfigured(t *testing.T) {
	w := get(newTestRouter(t, StartOpts{}), "/negotiations/n1/events")
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", w.Code)
	}
}

func TestEvents_StreamsMessages(t *testing.T) {
	dialer := realtime.NewMockDialer()
	sessions := func(id string) (*realtime.Session, error) {
		return realtime.NewSession(realtime.SessionOpts{NegotiationID: id, Dialer: dialer})
	}
	srv := httptest.NewServer(newTestRouter(t, StartOpts{Sessions: sessions}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/negotiations/n1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content-type = %q, want text/event-stream", ct)
	}

	var ch *realtime.MockChannel
	select {
	case ch = <-dialer.Dialed():
	case <-ctx.Done():
		t.Fatal("session never dialed")
	}
	if !ch.WaitSent(1, 2*time.Second) {
		t.Fatal("session never joined")
	}
	ch.SimulateInbound(realtime.EventChat, models.ChatMessage{
		Sender: models.RoleSupplier, Text: "Final offer 92", Timestamp: "2026-03-01T11:00:00.000Z",
	})

	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			event = name
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || event != "message" {
			continue
		}
		var b bubbleEvent
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			t.Fatalf("decode bubble: %v", err)
		}
		if !b.Right || b.Body != "Final offer 92" || b.Label != "Supplier: Rolling Mills" {
			t.Errorf("bubble = %+v", b)
		}
		return
	}
	t.Fatalf("stream ended without a message event: %v", scanner.Err())
}

func TestSSEFor_Concluded(t *testing.T) {
	name, payload := sseFor(realtime.Update{
		Kind: realtime.UpdateConcluded, Closer: models.RoleBuyer, Time: "2026-03-01T11:00:00.000Z",
	}, models.TargetDetails{})
	if name != "concluded" {
		t.Errorf("name = %q, want concluded", name)
	}
	b := payload.(bubbleEvent)
	if !strings.HasPrefix(b.Body, "Negotiation concluded by buyer at ") {
		t.Errorf("body = %q", b.Body)
	}
}

func TestSSEFor_StatusHidesChannelClosed(t *testing.T) {
	_, payload := sseFor(realtime.Update{Kind: realtime.UpdateStatus, Err: realtime.ErrChannelClosed}, models.TargetDetails{})
	if ev := payload.(statusEvent); ev.Error != "" {
		t.Errorf("Error = %q, want empty", ev.Error)
	}
}

func TestWriteSSE(t *testing.T) {
	var sb strings.Builder
	writeSSE(&sb, "heartbeat", map[string]string{"k": "v"})
	want := "event: heartbeat\ndata: {\"k\":\"v\"}\n\n"
	if sb.String() != want {
		t.Errorf("got = %q, want %q", sb.String(), want)
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	if w := get(newTestRouter(t, StartOpts{}), "/nonexistent"); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRequestLogger_TagsRequests(t *testing.T) {
	var buf strings.Builder
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	router := newTestRouter(t, StartOpts{Logger: log})

	w := get(router, "/")
	id := w.Header().Get(headerRequestID)
	if id == "" {
		t.Fatal("expected a generated request id")
	}
	if !strings.Contains(buf.String(), `"request_id":"`+id+`"`) {
		t.Errorf("log missing request id %s: %s", id, buf.String())
	}
	if !strings.Contains(buf.String(), `"status":200`) {
		t.Errorf("log missing status: %s", buf.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerRequestID, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if got := w.Header().Get(headerRequestID); got != "abc-123" {
		t.Errorf("got = %q, want %q", got, "abc-123")
	}
}
