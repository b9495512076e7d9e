// Package reconciler assembles the dashboard snapshot. Each cycle reads every
// agent resource concurrently, tolerates independent failures, and writes each
// section into a versioned Store so that a stale cycle never overwrites a
// newer one.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/vesaa/warpdeck/internal/agent"
	"github.com/vesaa/warpdeck/internal/models"
)

// Agent is the read side of the agent boundary.
type Agent interface {
	ActivationStatus(ctx context.Context) (models.ActivationStatus, error)
	Accounts(ctx context.Context) (models.AccountsPayload, error)
	GatewayStatus(ctx context.Context) (models.ProcessStatus, error)
	WarpStatus(ctx context.Context) (models.ProcessStatus, error)
	DefaultBackupStatus(ctx context.Context) (models.DefaultBackupStatus, error)
	MCPBackups(ctx context.Context) (models.MCPBackupList, error)
	Notice(ctx context.Context) (models.NoticePayload, error)
}

// Prober reports host-level facts about the agent process.
type Prober interface {
	Probe(ctx context.Context) models.AgentView
}

// BackupMode controls whether the backup resources are read.
type BackupMode string

const (
	BackupsAuto BackupMode = "auto"
	BackupsOn   BackupMode = "on"
	BackupsOff  BackupMode = "off"
)

// Options configures a Reconciler.
type Options struct {
	PollInterval time.Duration
	Backups      BackupMode
}

// Reconciler runs reconciliation cycles against one agent.
type Reconciler struct {
	agent  Agent
	prober Prober
	store  *Store
	opts   Options
	log    *slog.Logger
	now    func() time.Time

	cycle   atomic.Uint64
	trigger chan struct{}

	mu       sync.Mutex
	inflight uint64
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a Reconciler writing into store. prober may be nil.
func New(a Agent, prober Prober, store *Store, opts Options) *Reconciler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Second
	}
	if opts.Backups == "" {
		opts.Backups = BackupsAuto
	}
	return &Reconciler{
		agent:   a,
		prober:  prober,
		store:   store,
		opts:    opts,
		log:     slog.With("component", "Reconciler"),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// Store returns the view-model store the Reconciler writes into.
func (r *Reconciler) Store() *Store { return r.store }

// Capability reports what the latest cycles learned about backup support.
func (r *Reconciler) Capability() models.Capability {
	snap, _ := r.store.Snapshot()
	return snap.Capabilities.Backups
}

// Start runs one cycle immediately, then one per poll interval and per
// Trigger call, until ctx ends.
func (r *Reconciler) Start(ctx context.Context) {
	r.Reconcile(ctx)

	go func() {
		ticker := time.NewTicker(r.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Reconcile(ctx)
			case <-r.trigger:
				r.Reconcile(ctx)
			}
		}
	}()
}

// Trigger requests a cycle from the Start loop without waiting for it.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Reconcile runs one full cycle and returns the resulting snapshot. A cycle
// still in flight when this one begins is canceled; its remaining reads are
// dropped rather than written. A canceled cycle waits for the cycle that
// replaced it, so its snapshot never predates the newest completed reads.
func (r *Reconciler) Reconcile(ctx context.Context) models.Snapshot {
	n := r.cycle.Add(1)
	cctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.mu.Lock()
	if r.cancel != nil {
		r.log.Debug("superseding cycle", "cycle", r.inflight, "by", n)
		r.cancel()
	}
	r.inflight, r.cancel, r.done = n, cancel, done
	r.mu.Unlock()

	start := r.now()
	var wg conc.WaitGroup
	for _, task := range r.tasks() {
		task := task
		wg.Go(func() { r.run(cctx, n, task) })
	}
	wg.Wait()
	r.store.finish(n, r.now())

	r.mu.Lock()
	superseded := r.inflight != n
	if !superseded {
		r.inflight, r.cancel, r.done = 0, nil, nil
	}
	r.mu.Unlock()
	cancel()
	close(done)

	if superseded {
		r.awaitLatest(ctx)
	}
	snap, _ := r.store.Snapshot()
	r.log.Debug("cycle complete", "cycle", n, "superseded", superseded, "took", time.Since(start).String())
	return snap
}

// awaitLatest blocks until no cycle is in flight or ctx ends.
func (r *Reconciler) awaitLatest(ctx context.Context) {
	for {
		r.mu.Lock()
		done := r.done
		r.mu.Unlock()
		if done == nil {
			return
		}
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}

// task reads one resource and produces the write for its section.
type task struct {
	section string
	read    func(ctx context.Context) (func(*models.Snapshot), error)
	// unavailable writes the section's failure state.
	unavailable func(s *models.Snapshot, reason string)

	// sections, when set, are all written together by one write.
	sections []string
}

func (r *Reconciler) run(ctx context.Context, cycle uint64, t task) {
	var write func(*models.Snapshot)
	var err error

	var pc panics.Catcher
	pc.Try(func() { write, err = t.read(ctx) })
	if rec := pc.Recovered(); rec != nil {
		err = fmt.Errorf("reading %s: %w", t.section, rec.AsError())
		write = nil
	}

	if err != nil {
		if agent.IsCanceled(err) || ctx.Err() != nil {
			r.log.Debug("dropping canceled read", "section", t.section, "cycle", cycle)
			return
		}
		r.log.Warn("section unavailable", "section", t.section, "cycle", cycle, "error", err)
		reason := err.Error()
		write = func(s *models.Snapshot) { t.unavailable(s, reason) }
	}

	sections := t.sections
	if len(sections) == 0 {
		sections = []string{t.section}
	}
	if !r.store.apply(cycle, write, sections...) {
		r.log.Debug("dropping stale write", "section", t.section, "cycle", cycle)
	}
}

func (r *Reconciler) tasks() []task {
	tasks := []task{
		{
			section: models.SectionActivation,
			read: func(ctx context.Context) (func(*models.Snapshot), error) {
				p, err := r.agent.ActivationStatus(ctx)
				if err != nil {
					return nil, err
				}
				v := DeriveActivation(p, r.now())
				return func(s *models.Snapshot) { s.Activation = v }, nil
			},
			unavailable: func(s *models.Snapshot, reason string) { s.Activation = UnavailableActivation(reason) },
		},
		{
			section: models.SectionAccounts,
			read: func(ctx context.Context) (func(*models.Snapshot), error) {
				p, err := r.agent.Accounts(ctx)
				if err != nil {
					return nil, err
				}
				v := DeriveAccounts(p)
				return func(s *models.Snapshot) { s.Accounts = v }, nil
			},
			unavailable: func(s *models.Snapshot, reason string) {
				s.Accounts = models.AccountsView{
					SectionState: models.SectionState{Error: reason},
					Options:      []models.AccountOption{},
				}
			},
		},
		r.processTask(models.SectionGateway, "Gateway", r.agent.GatewayStatus,
			func(s *models.Snapshot, v models.ProcessView) { s.Gateway = v }),
		r.processTask(models.SectionWarp, "WARP", r.agent.WarpStatus,
			func(s *models.Snapshot, v models.ProcessView) { s.Warp = v }),
		{
			section: models.SectionNotice,
			read: func(ctx context.Context) (func(*models.Snapshot), error) {
				p, err := r.agent.Notice(ctx)
				if err != nil {
					return nil, err
				}
				v := DeriveNotice(p)
				return func(s *models.Snapshot) { s.Notice = v }, nil
			},
			unavailable: func(s *models.Snapshot, reason string) {
				s.Notice = models.NoticeView{SectionState: models.SectionState{Error: reason}}
			},
		},
	}

	if r.opts.Backups == BackupsOff {
		tasks = append(tasks, backupsDisabledTask())
	} else {
		tasks = append(tasks, r.backupsTask())
	}

	if r.prober != nil {
		tasks = append(tasks, task{
			section: models.SectionAgent,
			read: func(ctx context.Context) (func(*models.Snapshot), error) {
				v := r.prober.Probe(ctx)
				return func(s *models.Snapshot) { s.Agent = v }, nil
			},
			unavailable: func(s *models.Snapshot, reason string) {
				s.Agent = models.AgentView{SectionState: models.SectionState{Error: reason}}
			},
		})
	}
	return tasks
}

func (r *Reconciler) processTask(section, name string,
	read func(context.Context) (models.ProcessStatus, error),
	set func(*models.Snapshot, models.ProcessView),
) task {
	return task{
		section: section,
		read: func(ctx context.Context) (func(*models.Snapshot), error) {
			p, err := read(ctx)
			if err != nil {
				return nil, err
			}
			v := DeriveProcess(name, p)
			return func(s *models.Snapshot) { set(s, v) }, nil
		},
		unavailable: func(s *models.Snapshot, reason string) {
			set(s, models.ProcessView{SectionState: models.SectionState{Error: reason}, Label: models.Placeholder})
		},
	}
}

// backupsTask reads both backup targets and settles the capability once
// both have answered. In auto mode a 404 from either read means the agent
// has no backup feature, and both sections are written unsupported.
func (r *Reconciler) backupsTask() task {
	return task{
		section:  "backups",
		sections: []string{models.SectionDefaultBackup, models.SectionMCPBackup},
		read: func(ctx context.Context) (func(*models.Snapshot), error) {
			var def, mcp models.BackupView
			var defErr, mcpErr error

			var wg conc.WaitGroup
			wg.Go(func() {
				p, err := r.agent.DefaultBackupStatus(ctx)
				def, defErr = DeriveDefaultBackup(p), err
			})
			wg.Go(func() {
				p, err := r.agent.MCPBackups(ctx)
				mcp, mcpErr = DeriveMCPBackup(p), err
			})
			wg.Wait()

			for _, err := range []error{defErr, mcpErr} {
				if agent.IsCanceled(err) {
					return nil, err
				}
			}
			if r.opts.Backups == BackupsAuto && (agent.IsNotFound(defErr) || agent.IsNotFound(mcpErr)) {
				return func(s *models.Snapshot) {
					s.DefaultBackup = UnsupportedBackup(TargetDefault)
					s.MCPBackup = UnsupportedBackup(TargetMCP)
					s.Capabilities.Backups = models.CapabilityUnsupported
				}, nil
			}

			return func(s *models.Snapshot) {
				if defErr == nil || mcpErr == nil {
					s.Capabilities.Backups = models.CapabilitySupported
				}
				if defErr != nil {
					r.log.Warn("section unavailable", "section", models.SectionDefaultBackup, "error", defErr)
					def = unavailableBackup(s, TargetDefault, defErr.Error())
				}
				if mcpErr != nil {
					r.log.Warn("section unavailable", "section", models.SectionMCPBackup, "error", mcpErr)
					mcp = unavailableBackup(s, TargetMCP, mcpErr.Error())
				}
				s.DefaultBackup, s.MCPBackup = def, mcp
			}, nil
		},
		unavailable: func(s *models.Snapshot, reason string) {
			s.DefaultBackup = unavailableBackup(s, TargetDefault, reason)
			s.MCPBackup = unavailableBackup(s, TargetMCP, reason)
		},
	}
}

func unavailableBackup(s *models.Snapshot, target, reason string) models.BackupView {
	return models.BackupView{
		SectionState: models.SectionState{Error: reason},
		Target:       target,
		Supported:    s.Capabilities.Backups != models.CapabilityUnsupported,
		Label:        models.Placeholder,
	}
}

func backupsDisabledTask() task {
	return task{
		section:  "backups",
		sections: []string{models.SectionDefaultBackup, models.SectionMCPBackup},
		read: func(context.Context) (func(*models.Snapshot), error) {
			return func(s *models.Snapshot) {
				s.DefaultBackup = UnsupportedBackup(TargetDefault)
				s.MCPBackup = UnsupportedBackup(TargetMCP)
				s.DefaultBackup.Error = "disabled by configuration"
				s.MCPBackup.Error = "disabled by configuration"
				s.Capabilities.Backups = models.CapabilityUnsupported
			}, nil
		},
		unavailable: func(*models.Snapshot, string) {},
	}
}
