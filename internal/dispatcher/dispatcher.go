// Package dispatcher executes operator commands against the agent. Every
// action follows one template: validate locally, call the agent, notify the
// outcome, then reconcile so the view shows what the agent actually did.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/vesaa/warpdeck/internal/agent"
	"github.com/vesaa/warpdeck/internal/models"
	"github.com/vesaa/warpdeck/internal/notify"
)

// Poster is the write side of the agent boundary.
type Poster interface {
	Post(ctx context.Context, resource string, payload any) agent.Result
}

// Syncer runs reconciliation cycles and knows the agent's capabilities.
// Reconcile returns once the latest cycle in flight has completed.
type Syncer interface {
	Reconcile(ctx context.Context) models.Snapshot
	Capability() models.Capability
}

// Notifier shows the outcome toast.
type Notifier interface {
	Notify(message string, ok bool) notify.Toast
}

// Recorder persists dispatched actions.
type Recorder interface {
	Record(ctx context.Context, rec models.ActionRecord) error
}

// Confirmer asks the operator before a destructive action runs.
type Confirmer interface {
	Confirm(ctx context.Context, action, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, action, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, action, prompt string) bool {
	return f(ctx, action, prompt)
}

// Request carries an action and its operator input.
type Request struct {
	Action Action
	Code   string
	Email  string
	Path   string
}

// Outcome is the result of one dispatched action.
type Outcome struct {
	ID       string           `json:"id"`
	Action   Action           `json:"action"`
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	Failed   []string         `json:"failed,omitempty"`
	Path     string           `json:"path,omitempty"`
	Duration time.Duration    `json:"-"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
}

// Dispatcher runs actions.
type Dispatcher struct {
	poster   Poster
	syncer   Syncer
	notifier Notifier
	recorder Recorder
	log      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder journals every dispatched action.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// New creates a Dispatcher.
func New(p Poster, s Syncer, n Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		poster:   p,
		syncer:   s,
		notifier: n,
		log:      slog.With("component", "Dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs req. confirm is consulted only for actions that need it; a
// nil confirm declines them.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, confirm Confirmer) Outcome {
	start := time.Now()
	out := Outcome{ID: uuid.NewString(), Action: req.Action}

	def, ok := catalog[req.Action]
	if !ok {
		out.Status = models.OutcomeRejected
		out.Message = fmt.Sprintf("unknown action %q", req.Action)
		return out
	}

	// ── 1. local validation ─────────────────────────────────────────────────
	if msg := d.check(def, req); msg != "" {
		out.Status = models.OutcomeRejected
		out.Message = msg
		d.notifier.Notify(msg, false)
		d.record(ctx, &out, start)
		return out
	}
	if def.confirm != "" {
		if confirm == nil || !confirm.Confirm(ctx, string(req.Action), def.confirm) {
			out.Status = models.OutcomeDeclined
			out.Message = "Confirmation declined"
			d.log.Info("action declined", "action", req.Action)
			return out
		}
	}

	// ── 2. agent call(s) ────────────────────────────────────────────────────
	var payload any
	if def.payload != nil {
		payload = def.payload(req)
	}
	if def.compound() {
		d.runCompound(ctx, def, payload, &out)
	} else {
		d.runSingle(ctx, def, payload, &out)
	}

	// ── 3. notify, 4. reconcile ─────────────────────────────────────────────
	d.notifier.Notify(out.Message, out.Status == models.OutcomeOK)
	snap := d.syncer.Reconcile(ctx)
	out.Snapshot = &snap

	d.record(ctx, &out, start)
	d.log.Info("action dispatched", "action", req.Action, "status", out.Status, "took", out.Duration.String())
	return out
}

func (d *Dispatcher) check(def definition, req Request) string {
	if def.validate != nil {
		if msg := def.validate(req); msg != "" {
			return msg
		}
	}
	if def.backups && d.syncer.Capability() == models.CapabilityUnsupported {
		return "Backups are not supported by this agent"
	}
	return ""
}

func (d *Dispatcher) runSingle(ctx context.Context, def definition, payload any, out *Outcome) {
	res := d.poster.Post(ctx, def.targets[0].resource, payload)
	if !res.OK() {
		out.Status = models.OutcomeFailed
		out.Message = failureMessage(res.Failure, def.fallback)
		return
	}
	out.Status = models.OutcomeOK
	out.Message = def.success

	var reply models.ActionReply
	if err := json.Unmarshal(res.Payload, &reply); err == nil && reply.Path != "" {
		out.Path = reply.Path
		out.Message = fmt.Sprintf("%s: %s", def.success, reply.Path)
	}
}

// runCompound posts to every target concurrently and names the ones that failed.
func (d *Dispatcher) runCompound(ctx context.Context, def definition, payload any, out *Outcome) {
	results := make([]agent.Result, len(def.targets))
	var wg conc.WaitGroup
	for i, t := range def.targets {
		i, t := i, t
		wg.Go(func() { results[i] = d.poster.Post(ctx, t.resource, payload) })
	}
	wg.Wait()

	var failed []string
	for i, res := range results {
		if !res.OK() {
			failed = append(failed, def.targets[i].label)
			d.log.Warn("compound target failed", "target", def.targets[i].label, "error", res.Failure)
		}
	}

	switch {
	case len(failed) == 0:
		out.Status = models.OutcomeOK
		out.Message = def.success
	case len(failed) == len(results):
		out.Status = models.OutcomeFailed
		out.Message = def.fallback
		out.Failed = failed
	default:
		out.Status = models.OutcomePartial
		out.Message = fmt.Sprintf(def.partial, strings.Join(failed, ", "))
		out.Failed = failed
	}
}

// failureMessage prefers the agent's own error text.
func failureMessage(f *agent.Failure, fallback string) string {
	if f != nil && f.AgentError != "" {
		return f.AgentError
	}
	return fallback
}

func (d *Dispatcher) record(ctx context.Context, out *Outcome, start time.Time) {
	out.Duration = time.Since(start)
	if d.recorder == nil {
		return
	}
	rec := models.ActionRecord{
		ActionID:      out.ID,
		Action:        string(out.Action),
		Outcome:       out.Status,
		Message:       out.Message,
		FailedTargets: strings.Join(out.Failed, ","),
		DurationMS:    out.Duration.Milliseconds(),
	}
	if err := d.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		d.log.Error("journal write failed", "action", out.Action, "error", err)
	}
}
