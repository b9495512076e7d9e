package reconciler

import (
	"sync"
	"time"

	"github.com/vesaa/warpdeck/internal/models"
)

// Store is the single owner of the view model. Each section is replaced
// whole, and only by a cycle at least as new as the one that last wrote it.
type Store struct {
	mu       sync.RWMutex
	snap     models.Snapshot
	ready    bool
	changeCh chan struct{}
}

// NewStore returns a Store in which every section is unavailable.
func NewStore() *Store {
	pending := models.SectionState{Error: "not loaded yet"}
	return &Store{
		snap: models.Snapshot{
			Activation:    UnavailableActivation(pending.Error),
			Accounts:      models.AccountsView{SectionState: pending, Options: []models.AccountOption{}},
			Gateway:       models.ProcessView{SectionState: pending, Label: models.Placeholder},
			Warp:          models.ProcessView{SectionState: pending, Label: models.Placeholder},
			Notice:        models.NoticeView{SectionState: pending},
			DefaultBackup: models.BackupView{SectionState: pending, Target: TargetDefault, Label: models.Placeholder},
			MCPBackup:     models.BackupView{SectionState: pending, Target: TargetMCP, Label: models.Placeholder},
			Agent:         models.AgentView{SectionState: pending},
			Capabilities:  models.Capabilities{Backups: models.CapabilityUnknown},
			SectionCycles: make(map[string]uint64),
		},
		changeCh: make(chan struct{}, 1),
	}
}

// apply runs write against the snapshot iff cycle is not older than the last
// writer of any of the given sections, then stamps them all with cycle. It
// reports whether the write happened.
func (s *Store) apply(cycle uint64, write func(*models.Snapshot), sections ...string) bool {
	s.mu.Lock()
	for _, section := range sections {
		if cycle < s.snap.SectionCycles[section] {
			s.mu.Unlock()
			return false
		}
	}
	write(&s.snap)
	for _, section := range sections {
		s.snap.SectionCycles[section] = cycle
	}
	s.mu.Unlock()

	s.notifyChange()
	return true
}

// finish stamps the snapshot with a completed cycle.
func (s *Store) finish(cycle uint64, at time.Time) {
	s.mu.Lock()
	if cycle >= s.snap.Cycle {
		s.snap.Cycle = cycle
		s.snap.GeneratedAt = at
	}
	s.ready = true
	s.mu.Unlock()

	s.notifyChange()
}

// Snapshot returns a copy of the current view model and whether any cycle
// has completed yet.
func (s *Store) Snapshot() (models.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.snap
	out.SectionCycles = make(map[string]uint64, len(s.snap.SectionCycles))
	for k, v := range s.snap.SectionCycles {
		out.SectionCycles[k] = v
	}
	return out, s.ready
}

// Ready reports whether at least one cycle has completed.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// ChangeCh is signalled (coalesced) whenever the snapshot changes.
func (s *Store) ChangeCh() <-chan struct{} {
	return s.changeCh
}

func (s *Store) notifyChange() {
	select {
	case s.changeCh <- struct{}{}:
	default:
	}
}
