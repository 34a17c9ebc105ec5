package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/procurebot/internal/api"
	"github.com/zulandar/procurebot/internal/config"
	"github.com/zulandar/procurebot/internal/dashboard"
	"github.com/zulandar/procurebot/internal/models"
	"github.com/zulandar/procurebot/internal/notify"
	"github.com/zulandar/procurebot/internal/wizard"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "pb dev") {
		t.Errorf("expected output to contain 'pb dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"pb 1.0.0", "commit: abc123", "built: 2026-01-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "ProcureBot") {
		t.Errorf("expected help output to contain 'ProcureBot', got: %s", out)
	}
	for _, sub := range []string{"version", "check", "list", "show", "chat", "create", "delete", "export", "dashboard", "watch"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help output to list %q subcommand, got: %s", sub, out)
		}
	}
}

func TestRootCmdNoArgs(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("root command with no args failed: %v", err)
	}
}

func TestExecuteSuccess(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"version"})
	code := execute(cmd)
	if code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestExecuteError(t *testing.T) {
	cmd := &cobra.Command{
		Use:           "failing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("boom")
		},
	}
	if code := execute(cmd); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
}

func TestRequiredFlags(t *testing.T) {
	tests := []struct {
		args []string
		flag string
	}{
		{[]string{"list"}, "email"},
		{[]string{"delete", "n1"}, "email"},
		{[]string{"watch"}, "email"},
		{[]string{"create"}, "file"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			cmd := newRootCmd()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)
			err := cmd.Execute()
			if err == nil {
				t.Fatal("expected error for missing flag")
			}
			if !strings.Contains(err.Error(), tt.flag) {
				t.Errorf("error = %q, want it to name %q", err, tt.flag)
			}
		})
	}
}

func TestArgsRequired(t *testing.T) {
	for _, sub := range []string{"check", "show", "chat", "export", "delete"} {
		cmd := newRootCmd()
		cmd.SetOut(new(bytes.Buffer))
		cmd.SetErr(new(bytes.Buffer))
		cmd.SetArgs([]string{sub})
		if err := cmd.Execute(); err == nil {
			t.Errorf("%s without an argument should fail", sub)
		}
	}
}

func TestParseJoinRole(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Role
		wantErr bool
	}{
		{"", "", false},
		{"buyer", models.RoleBuyer, false},
		{" Supplier ", models.RoleSupplier, false},
		{"system", "", true},
		{"admin", "", true},
	}
	for _, tt := range tests {
		got, err := parseJoinRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseJoinRole(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("parseJoinRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChatCmdRejectsBadRole(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"chat", "n1", "--role", "admin"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestReadLine(t *testing.T) {
	r := strings.NewReader("first\nsecond\nlast")
	for _, want := range []string{"first", "second"} {
		got, err := readLine(r)
		if err != nil {
			t.Fatalf("readLine: %v", err)
		}
		if got != want {
			t.Errorf("got = %q, want %q", got, want)
		}
	}
	got, err := readLine(r)
	if got != "last" {
		t.Errorf("got = %q, want %q", got, "last")
	}
	if err == nil {
		t.Error("expected EOF after the last line")
	}
}

func TestReadSecret(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetErr(new(bytes.Buffer))

	got, err := readSecret(cmd, "Dashboard code: ", "given")
	if err != nil || got != "given" {
		t.Fatalf("readSecret with value = %q, %v", got, err)
	}

	cmd.SetIn(strings.NewReader("  1234 \nyes\n"))
	got, err = readSecret(cmd, "Dashboard code: ", "")
	if err != nil {
		t.Fatalf("readSecret: %v", err)
	}
	if got != "1234" {
		t.Errorf("got = %q, want %q", got, "1234")
	}
	if !confirm(cmd, "Sure?") {
		t.Error("confirm should read the next line after the secret")
	}

	cmd.SetIn(strings.NewReader("\n"))
	if _, err := readSecret(cmd, "Dashboard code: ", ""); err == nil {
		t.Error("expected error for empty code")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		cmd := &cobra.Command{}
		cmd.SetErr(new(bytes.Buffer))
		cmd.SetIn(strings.NewReader(tt.in))
		if got := confirm(cmd, "Delete?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func testView() dashboard.View {
	list := []models.Negotiation{
		{ID: "n1", Name: "Steel rods", Status: "active", CreatedAt: "not a date",
			TargetDetails: models.TargetDetails{SupplierName: "Rolling Mills"}},
		{ID: "n2", Name: "Cement", Status: "concluded",
			TargetDetails: models.TargetDetails{Suppliers: []models.Supplier{{Name: "BuildCo"}, {Name: "Acme"}}}},
	}
	return dashboard.View{
		LoggedIn: true,
		Tab:      dashboard.TabAll,
		Items:    list,
		Counters: dashboard.Count(list),
	}
}

func TestPrintList(t *testing.T) {
	buf := new(bytes.Buffer)
	printList(buf, testView())
	out := buf.String()

	for _, want := range []string{
		"Total: 2  Active: 1  Concluded: 1  Suppliers: 3",
		"ID", "NAME", "SUPPLIERS",
		"Steel rods", "Rolling Mills",
		"BuildCo, Acme",
		"not a date",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintListEmpty(t *testing.T) {
	buf := new(bytes.Buffer)
	printList(buf, dashboard.View{Tab: dashboard.TabConcluded})
	if !strings.Contains(buf.String(), "No concluded negotiations found.") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestSupplierList(t *testing.T) {
	if got := supplierList(models.Negotiation{}); got != "-" {
		t.Errorf("got = %q, want %q", got, "-")
	}
}

func TestPrintNegotiation(t *testing.T) {
	rec := &models.Negotiation{
		ID:            "n1",
		Name:          "Steel rods",
		Status:        "active",
		TargetDetails: models.TargetDetails{SupplierName: "Rolling Mills", BuyerName: "Priya"},
		ChatHistory: []models.ChatMessage{
			{Sender: models.RoleBuyer, Text: "Hello\nthere", Timestamp: "x"},
			{Sender: models.RoleSupplier, Text: "Hi", Timestamp: "y"},
		},
		FromCache: true,
	}
	buf := new(bytes.Buffer)
	printNegotiation(buf, rec, "http://api/export")
	out := buf.String()

	for _, want := range []string{
		"Steel rods [Active]",
		"Supplier: Rolling Mills",
		"offline copy",
		"PDF: http://api/export",
		"Supplier: Rolling Mills  y",
		"  Hi",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintNegotiationNoMessages(t *testing.T) {
	buf := new(bytes.Buffer)
	printNegotiation(buf, &models.Negotiation{Name: "Empty", Status: "concluded"}, "u")
	out := buf.String()
	if !strings.Contains(out, "Empty [Concluded]") || !strings.Contains(out, "No messages yet.") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "offline") {
		t.Errorf("fresh record should not be marked offline:\n%s", out)
	}
}

func TestPrintLinks(t *testing.T) {
	buf := new(bytes.Buffer)
	printLinks(buf, &wizard.Result{
		Links: []wizard.Link{
			{SupplierName: "Rolling Mills", NegotiationID: "n1", URL: "http://o/negotiation/n1?supplier=a%40b.c"},
			{SupplierEmail: "x@y.z", NegotiationID: "n2", URL: "http://o/negotiation/n2?supplier=x%40y.z"},
		},
		Failed: "Acme",
	})
	out := buf.String()
	for _, want := range []string{
		"Created 2 negotiation(s)",
		"Rolling Mills (n1)",
		"x@y.z (n2)",
		"http://o/negotiation/n1?supplier=a%40b.c",
		`Creation stopped at supplier "Acme"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printLinks(buf, &wizard.Result{Failed: "Acme"})
	if !strings.Contains(buf.String(), "No negotiations were created.") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestBuildNotifier(t *testing.T) {
	n, err := buildNotifier(config.NotifyConfig{})
	if err != nil || n != nil {
		t.Fatalf("no webhooks: got %v, %v", n, err)
	}

	n, err = buildNotifier(config.NotifyConfig{
		SlackWebhookURL:   "https://hooks.slack.com/services/T/B/X",
		DiscordWebhookURL: "https://discord.com/api/webhooks/123/tok",
	})
	if err != nil {
		t.Fatalf("buildNotifier: %v", err)
	}
	if got := n.Name(); got != "slack,discord" {
		t.Errorf("got = %q, want %q", got, "slack,discord")
	}

	if _, err := buildNotifier(config.NotifyConfig{DiscordWebhookURL: "https://example.com/nope"}); err == nil {
		t.Error("expected error for malformed discord webhook")
	}
}

func TestPrintEvent(t *testing.T) {
	buf := new(bytes.Buffer)
	printEvent(buf, notify.Event{
		Kind:          notify.KindConcluded,
		NegotiationID: "n1",
		Name:          "Steel rods",
		URL:           "http://o/negotiation/n1",
		At:            time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	})
	want := "2026-03-01 09:30  n1 \"Steel rods\" concluded  http://o/negotiation/n1\n"
	if got := buf.String(); got != want {
		t.Errorf("got = %q, want %q", got, want)
	}
}

// fakeBackend serves the backend endpoints the commands call.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/negotiations/code-exists/{email}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]bool{"exists": r.PathValue("email") == "b@example.com"})
	})
	mux.HandleFunc("POST /api/negotiations/by-buyer", func(w http.ResponseWriter, r *http.Request) {
		var creds api.Credentials
		json.NewDecoder(r.Body).Decode(&creds)
		if creds.Code != "1234" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "Invalid dashboard code"})
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "n1", "name": "Steel rods", "status": "active", "target_details": map[string]string{"supplierName": "Rolling Mills"}},
			{"id": "n2", "name": "Cement", "status": "concluded", "target_details": "{\"supplierName\":\"BuildCo\"}"},
		})
	})
	mux.HandleFunc("GET /api/negotiations/n1/export-pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 n1"))
	})
	mux.HandleFunc("GET /api/negotiations/n1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "n1", "name": "Steel rods", "status": "active",
			"target_details": map[string]string{"supplierName": "Rolling Mills"},
			"chat_history": []map[string]string{
				{"sender": "supplier", "text": "Our best price is 40", "timestamp": "2026-03-01T09:30:00Z"},
			},
		})
	})
	mux.HandleFunc("GET /api/negotiations/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Negotiation not found"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// runCmd runs pb against a fake backend with the cache disabled.
func runCmd(t *testing.T, baseURL string, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "procurebot.yaml")
	cfg := "backend:\n  base_url: " + baseURL + "\ncache:\n  disabled: true\nlog:\n  file: " +
		filepath.Join(dir, "pb.log") + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCheckCmd(t *testing.T) {
	srv := fakeBackend(t)

	out, err := runCmd(t, srv.URL, "check", "b@example.com")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "A dashboard code exists for b@example.com.") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = runCmd(t, srv.URL, "check", "new@example.com")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "No dashboard code exists for new@example.com yet.") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestListCmd(t *testing.T) {
	srv := fakeBackend(t)

	out, err := runCmd(t, srv.URL, "list", "-e", "b@example.com", "--code", "1234", "--tab", "all")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, want := range []string{"Total: 2  Active: 1  Concluded: 1  Suppliers: 2", "Steel rods", "BuildCo"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = runCmd(t, srv.URL, "list", "-e", "b@example.com", "--code", "1234", "-s", "build")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "No active negotiations found.") {
		t.Errorf("search on the active tab should find nothing:\n%s", out)
	}
}

func TestListCmdWrongCode(t *testing.T) {
	srv := fakeBackend(t)

	_, err := runCmd(t, srv.URL, "list", "-e", "b@example.com", "--code", "0000")
	if !api.IsStatus(err, http.StatusUnauthorized) {
		t.Fatalf("err = %v, want 401", err)
	}
}

func TestShowCmd(t *testing.T) {
	srv := fakeBackend(t)

	out, err := runCmd(t, srv.URL, "show", "n1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"Steel rods [Active]", "Supplier: Rolling Mills", "Our best price is 40", "/api/negotiations/n1/export-pdf"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = runCmd(t, srv.URL, "show", "n1", "--json")
	if err != nil {
		t.Fatalf("show --json: %v", err)
	}
	var rec models.Negotiation
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if rec.ID != "n1" || len(rec.ChatHistory) != 1 {
		t.Errorf("got id=%q messages=%d", rec.ID, len(rec.ChatHistory))
	}

	if _, err := runCmd(t, srv.URL, "show", "missing"); !api.IsStatus(err, http.StatusNotFound) {
		t.Errorf("err = %v, want 404", err)
	}
}

func TestExportCmd(t *testing.T) {
	srv := fakeBackend(t)

	out, err := runCmd(t, srv.URL, "export", "n1", "-o", "-")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if out != "%PDF-1.4 n1" {
		t.Errorf("got = %q, want %q", out, "%PDF-1.4 n1")
	}

	path := filepath.Join(t.TempDir(), "out.pdf")
	if _, err := runCmd(t, srv.URL, "export", "n1", "-o", path); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "%PDF-1.4 n1" {
		t.Errorf("file = %q", data)
	}
}

func TestCreateCmdIncompleteDraft(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.yaml")
	os.WriteFile(path, []byte("name: Steel\nbuyer_email: b@example.com\n"), 0644)

	_, err := runCmd(t, "http://127.0.0.1:1", "create", "-f", path)
	if err == nil || !strings.Contains(err.Error(), "incomplete") {
		t.Fatalf("err = %v, want incomplete draft", err)
	}
}
