package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vesaa/warpdeck/internal/agent"
	"github.com/vesaa/warpdeck/internal/models"
	"github.com/vesaa/warpdeck/internal/notify"
	"github.com/vesaa/warpdeck/internal/reconciler"
)

// fakeAgent answers POSTs from a table and records every call.
type fakeAgent struct {
	mu      sync.Mutex
	replies map[string]func(body map[string]string) (int, string)
	calls   []string
	bodies  map[string]map[string]string
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		replies: make(map[string]func(map[string]string) (int, string)),
		bodies:  make(map[string]map[string]string),
	}
}

func (f *fakeAgent) on(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[path] = func(map[string]string) (int, string) { return status, body }
}

func (f *fakeAgent) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]string
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.bodies[r.URL.Path] = body
	reply, ok := f.replies[r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	status, out := reply(body)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(out))
}

// events records notifications and reconciles in order.
type events struct {
	mu       sync.Mutex
	log      []string
	messages []string
	oks      []bool
	caps     models.Capability
}

func (e *events) Notify(message string, ok bool) notify.Toast {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, "notify")
	e.messages = append(e.messages, message)
	e.oks = append(e.oks, ok)
	return notify.Toast{Message: message, OK: ok}
}

func (e *events) Reconcile(context.Context) models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, "reconcile")
	return models.Snapshot{Cycle: uint64(len(e.log))}
}

func (e *events) Capability() models.Capability {
	if e.caps == "" {
		return models.CapabilityUnknown
	}
	return e.caps
}

type memRecorder struct {
	mu   sync.Mutex
	recs []models.ActionRecord
}

func (m *memRecorder) Record(_ context.Context, rec models.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func setup(t *testing.T, fake *fakeAgent) (*Dispatcher, *events, *memRecorder) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	ev := &events{}
	rec := &memRecorder{}
	d := New(agent.NewClient(srv.URL, 2*time.Second), ev, ev, WithRecorder(rec))
	return d, ev, rec
}

func TestActivateTriggersReconcile(t *testing.T) {
	fake := newFakeAgent()
	var activated bool
	fake.replies[agent.PathActivationLogin] = func(body map[string]string) (int, string) {
		if body["code"] != "ABCD-1234" {
			return http.StatusBadRequest, `{"success":false,"error":"bad code"}`
		}
		activated = true
		return http.StatusOK, `{"success":true}`
	}
	fake.replies[agent.PathActivationStatus] = func(map[string]string) (int, string) {
		if activated {
			return http.StatusOK, `{"success":true,"activated":true,"active":true,"deviceId":"dev-9"}`
		}
		return http.StatusOK, `{"success":true,"activated":false}`
	}

	srv := httptest.NewServer(fake)
	defer srv.Close()
	client := agent.NewClient(srv.URL, 2*time.Second)
	rec := reconciler.New(client, nil, reconciler.NewStore(), reconciler.Options{Backups: reconciler.BackupsOff})
	d := New(client, rec, notify.New(time.Minute))

	before := rec.Reconcile(context.Background())
	if before.Activation.Pill != models.PillInactive {
		t.Fatalf("precondition: pill = %q", before.Activation.Pill)
	}

	out := d.Dispatch(context.Background(), Request{Action: ActionActivate, Code: "  ABCD-1234 "}, nil)
	if out.Status != models.OutcomeOK {
		t.Fatalf("status = %s (%s)", out.Status, out.Message)
	}
	if out.Snapshot == nil || out.Snapshot.Activation.Pill != models.PillActive || out.Snapshot.Activation.DeviceID != "dev-9" {
		t.Fatalf("activation not refreshed after action: %+v", out.Snapshot)
	}
	if out.Snapshot.Cycle <= before.Cycle {
		t.Fatalf("no new cycle ran: %d <= %d", out.Snapshot.Cycle, before.Cycle)
	}
}

func TestNotifyPrecedesReconcile(t *testing.T) {
	fake := newFakeAgent()
	fake.on(agent.PathWarpStart, http.StatusOK, `{"success":true}`)
	d, ev, rec := setup(t, fake)

	out := d.Dispatch(context.Background(), Request{Action: ActionStartWarp}, nil)
	if out.Status != models.OutcomeOK || out.Message != "WARP started" {
		t.Fatalf("outcome = %+v", out)
	}
	if len(ev.log) != 2 || ev.log[0] != "notify" || ev.log[1] != "reconcile" {
		t.Fatalf("events = %v", ev.log)
	}
	if len(rec.recs) != 1 || rec.recs[0].Outcome != models.OutcomeOK || rec.recs[0].ActionID != out.ID {
		t.Fatalf("journal = %+v", rec.recs)
	}
}

func TestSwitchAccountWithoutSelection(t *testing.T) {
	fake := newFakeAgent()
	fake.on(agent.PathAccountsSwitch, http.StatusOK, `{"success":true}`)
	d, ev, _ := setup(t, fake)

	out := d.Dispatch(context.Background(), Request{Action: ActionSwitchAccount, Email: ""}, nil)
	if out.Status != models.OutcomeRejected {
		t.Fatalf("status = %s", out.Status)
	}
	if fake.callCount() != 0 {
		t.Fatalf("network calls = %d, want 0", fake.callCount())
	}
	if len(ev.messages) != 1 || ev.oks[0] {
		t.Fatalf("expected one failure notification, got %v %v", ev.messages, ev.oks)
	}
	for _, e := range ev.log {
		if e == "reconcile" {
			t.Fatalf("rejected action must not reconcile")
		}
	}
}

func TestSwitchAccountSendsEmail(t *testing.T) {
	fake := newFakeAgent()
	fake.on(agent.PathAccountsSwitch, http.StatusOK, `{"success":true}`)
	d, _, _ := setup(t, fake)

	d.Dispatch(context.Background(), Request{Action: ActionSwitchAccount, Email: "b@x.io"}, nil)
	body := fake.bodies[agent.PathAccountsSwitch]
	if body["email"] != "b@x.io" {
		t.Fatalf("body = %v", body)
	}
	if _, ok := body["restartWarp"]; ok {
		t.Fatalf("restartWarp must be left to the agent default")
	}
}

func TestBackupAllPartialNamesFailedTarget(t *testing.T) {
	fake := newFakeAgent()
	fake.on(agent.PathDefaultBackup, http.StatusOK, `{"success":true}`)
	fake.on(agent.PathMCPBackup, http.StatusOK, `{"success":false,"error":"mcp locked"}`)
	d, ev, rec := setup(t, fake)

	out := d.Dispatch(context.Background(), Request{Action: ActionBackupAll}, nil)
	if out.Status != models.OutcomePartial {
		t.Fatalf("status = %s", out.Status)
	}
	if out.Message != "MCP backup failed" {
		t.Fatalf("message = %q", out.Message)
	}
	if len(out.Failed) != 1 || out.Failed[0] != "MCP" {
		t.Fatalf("failed = %v", out.Failed)
	}
	if ev.messages[0] != "MCP backup failed" || ev.oks[0] {
		t.Fatalf("notification = %q ok=%v", ev.messages[0], ev.oks[0])
	}
	if fake.callCount() != 2 {
		t.Fatalf("calls = %d, want both targets", fake.callCount())
	}
	if rec.recs[0].FailedTargets != "MCP" {
		t.Fatalf("journal failed targets = %q", rec.recs[0].FailedTargets)
	}

	fake.on(agent.PathDefaultBackup, http.StatusInternalServerError, `boom`)
	fake.on(agent.PathMCPBackup, http.StatusOK, `{"success":true}`)
	out = d.Dispatch(context.Background(), Request{Action: ActionBackupAll}, nil)
	if out.Status != models.OutcomePartial || out.Message != "Default table backup failed" {
		t.Fatalf("outcome = %s %q", out.Status, out.Message)
	}
}

func TestBackupAllBothFail(t *testing.T) {
	d, ev, _ := setup(t, newFakeAgent())

	out := d.Dispatch(context.Background(), Request{Action: ActionBackupAll}, nil)
	if out.Status != models.OutcomeFailed || out.Message != "Backup failed" {
		t.Fatalf("outcome = %s %q", out.Status, out.Message)
	}
	if len(out.Failed) != 2 {
		t.Fatalf("failed = %v", out.Failed)
	}
	if ev.log[len(ev.log)-1] != "reconcile" {
		t.Fatalf("failed action must still reconcile: %v", ev.log)
	}
}

func TestBackupAllRejectedWhenUnsupported(t *testing.T) {
	fake := newFakeAgent()
	d, ev, _ := setup(t, fake)
	ev.caps = models.CapabilityUnsupported

	out := d.Dispatch(context.Background(), Request{Action: ActionBackupAll}, nil)
	if out.Status != models.OutcomeRejected || fake.callCount() != 0 {
		t.Fatalf("status = %s calls = %d", out.Status, fake.callCount())
	}
}

func TestRestoreAllDeclined(t *testing.T) {
	fake := newFakeAgent()
	fake.on(agent.PathDefaultRestore, http.StatusOK, `{"success":true}`)
	fake.on(agent.PathMCPRestore, http.StatusOK, `{"success":true}`)
	d, ev, rec := setup(t, fake)

	var asked string
	decline := ConfirmFunc(func(_ context.Context, action, prompt string) bool {
		asked = action
		return false
	})

	out := d.Dispatch(context.Background(), Request{Action: ActionRestoreAll}, decline)
	if out.Status != models.OutcomeDeclined {
		t.Fatalf("status = %s", out.Status)
	}
	if asked != string(ActionRestoreAll) {
		t.Fatalf("confirmer asked for %q", asked)
	}
	if fake.callCount() != 0 || len(ev.log) != 0 || len(rec.recs) != 0 {
		t.Fatalf("declined restore had side effects: calls=%d events=%v journal=%d", fake.callCount(), ev.log, len(rec.recs))
	}

	out = d.Dispatch(context.Background(), Request{Action: ActionRestoreAll}, nil)
	if out.Status != models.OutcomeDeclined || fake.callCount() != 0 {
		t.Fatalf("nil confirmer must decline")
	}
}

func TestRestoreAllConfirmed(t *testing.T) {
	fake := newFakeAgent()
	fake.on(agent.PathDefaultRestore, http.StatusOK, `{"success":true}`)
	fake.on(agent.PathMCPRestore, http.StatusOK, `{"success":true}`)
	d, _, _ := setup(t, fake)

	accept := ConfirmFunc(func(context.Context, string, string) bool { return true })
	out := d.Dispatch(context.Background(), Request{Action: ActionRestoreAll}, accept)
	if out.Status != models.OutcomeOK || out.Message != "Restore succeeded" {
		t.Fatalf("outcome = %s %q", out.Status, out.Message)
	}
	if fake.callCount() != 2 {
		t.Fatalf("calls = %d", fake.callCount())
	}
}

func TestFailureMessages(t *testing.T) {
	fake := newFakeAgent()
	fake.on(agent.PathActivationUnbind, http.StatusOK, `{"success":false,"error":"device busy"}`)
	fake.on(agent.PathAccountsRefresh, http.StatusOK, `{"success":false}`)
	d, _, _ := setup(t, fake)

	if out := d.Dispatch(context.Background(), Request{Action: ActionUnbind}, nil); out.Message != "device busy" {
		t.Fatalf("agent error should be shown verbatim, got %q", out.Message)
	}
	if out := d.Dispatch(context.Background(), Request{Action: ActionRefreshAccounts}, nil); out.Message != "Refresh failed" {
		t.Fatalf("expected fallback message, got %q", out.Message)
	}
	if out := d.Dispatch(context.Background(), Request{Action: ActionStopGateway}, nil); out.Message != "Failed to stop gateway" {
		t.Fatalf("404 should use the fallback, got %q", out.Message)
	}
}

func TestDetectWarpPath(t *testing.T) {
	fake := newFakeAgent()
	fake.on(agent.PathWarpPathAuto, http.StatusOK, `{"success":true,"path":"C:/Program Files/WARP"}`)
	d, _, _ := setup(t, fake)

	out := d.Dispatch(context.Background(), Request{Action: ActionDetectWarpPath}, nil)
	if out.Status != models.OutcomeOK || out.Path != "C:/Program Files/WARP" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestSaveWarpPathValidation(t *testing.T) {
	fake := newFakeAgent()
	d, _, rec := setup(t, fake)

	out := d.Dispatch(context.Background(), Request{Action: ActionSaveWarpPath, Path: "   "}, nil)
	if out.Status != models.OutcomeRejected || fake.callCount() != 0 {
		t.Fatalf("status = %s calls = %d", out.Status, fake.callCount())
	}
	if len(rec.recs) != 1 || rec.recs[0].Outcome != models.OutcomeRejected {
		t.Fatalf("rejections are journaled: %+v", rec.recs)
	}
}

func TestParse(t *testing.T) {
	for _, a := range Actions() {
		got, err := Parse(string(a))
		if err != nil || got != a {
			t.Fatalf("Parse(%q) = %q, %v", a, got, err)
		}
	}
	if _, err := Parse("reboot"); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("err = %v", err)
	}
	if !NeedsConfirmation(ActionRestoreAll) || NeedsConfirmation(ActionBackupAll) {
		t.Fatalf("only restore-all needs confirmation")
	}
	if len(Actions()) != 12 {
		t.Fatalf("actions = %d", len(Actions()))
	}
}
