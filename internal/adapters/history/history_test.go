package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/levitate/internal/domain/model"
	"github.com/okian/levitate/pkg/errs"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	for i := range 3 {
		rec := model.GenerationRecord{
			ID:        fmt.Sprintf("gen-%d", i),
			SourceKey: "song.mp3",
			Stage:     model.StageCompleted,
			Outcome:   model.StageCompleted,
			Labels:    model.Labels{Energy: model.EnergyHigh, Mood: model.MoodBright},
			Tempo:     128.5,
			Prompt:    "prompt",
			Seed:      int64(i),
			ImageKey:  fmt.Sprintf("song-%d.png", i),
			Duration:  1500 * time.Millisecond,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	failed := model.GenerationRecord{
		ID: "gen-fail", SourceKey: "bad.mp3", Stage: model.StageGenerating, Outcome: model.StageFailed,
		Error: "remote call failed", CreatedAt: base.Add(time.Hour),
	}
	if err := s.Record(ctx, failed); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	got, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].ID != "gen-fail" || got[0].Outcome != model.StageFailed || got[0].Stage != model.StageGenerating {
		t.Fatalf("newest record mismatch: %+v", got[0])
	}
	if got[0].Labels.Energy != "" || got[0].Error != "remote call failed" {
		t.Fatalf("failed record fields mismatch: %+v", got[0])
	}
	second := got[1]
	if second.ID != "gen-2" || second.Labels.Mood != model.MoodBright || second.Tempo != 128.5 {
		t.Fatalf("second record mismatch: %+v", second)
	}
	if second.Duration != 1500*time.Millisecond || !second.CreatedAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("time fields mismatch: %+v", second)
	}
}

func TestStore_RecentLimits(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	for _, limit := range []int{0, -1, MaxLimit + 1} {
		_, err := s.Recent(ctx, limit)
		if !errors.Is(err, ErrInvalidLimit) || !errors.Is(err, errs.ErrValidation) {
			t.Fatalf("limit %d: expected invalid limit, got %v", limit, err)
		}
	}

	got, err := s.Recent(ctx, MaxLimit)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %d", len(got))
	}
}

func TestStore_RecordReplaces(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	rec := model.GenerationRecord{ID: "same", SourceKey: "a.mp3", Stage: model.StageAnalyzing, Outcome: model.StageFailed, CreatedAt: time.Now()}
	if err := s.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec.Outcome = model.StageCompleted
	if err := s.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Outcome != model.StageCompleted {
		t.Fatalf("expected single replaced row, got %+v", got)
	}
}
