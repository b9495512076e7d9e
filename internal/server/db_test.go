package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/vesaa/warpdeck/internal/models"
)

func TestJournalRecordAndRecent(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	for i, action := range []string{"activate", "start-warp", "backup-all"} {
		rec := models.ActionRecord{
			ActionID:   string(rune('a' + i)),
			Action:     action,
			Outcome:    models.OutcomeOK,
			DurationMS: int64(i * 10),
			CreatedAt:  time.Now(),
		}
		if err := j.Record(ctx, rec); err != nil {
			t.Fatalf("Record %s: %v", action, err)
		}
	}

	recs, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Action != "backup-all" || recs[1].Action != "start-warp" {
		t.Fatalf("not newest first: %+v", recs)
	}
}

func TestJournalRejectsDuplicateActionID(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	defer j.Close()

	rec := models.ActionRecord{ActionID: "same", Action: "unbind", Outcome: models.OutcomeFailed}
	if err := j.Record(context.Background(), rec); err != nil {
		t.Fatalf("first Record: %v", err)
	}
	if err := j.Record(context.Background(), rec); err == nil {
		t.Fatalf("expected unique index violation")
	}
}
