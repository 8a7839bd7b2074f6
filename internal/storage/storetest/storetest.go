// Package storetest holds the behaviour every RunStore must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/storage"
	"github.com/chrissnell/wellsim/internal/types"
)

// SampleRun returns a small trip result with two snapshots.
func SampleRun(id string, started time.Time) *types.RunResult {
	mud := fluid.Fluid{Name: "mud", Density: 1200, Rheology: fluid.Rheology{PlasticViscosity: 20, YieldPoint: 8}}
	kill := fluid.Fluid{Name: "kill", Density: 1250, Color: fluid.Color{R: 1, A: 1}, HasColor: true}
	res := &types.RunResult{
		ID:         id,
		Kind:       types.KindTrip,
		Status:     types.StatusCompleted,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Converged:  false,
		Iterations: 42,
		Final: &types.SeedState{
			BitMD:   990,
			String:  []fluid.Segment{{Fluid: mud, Top: 0, Bottom: 990}},
			Annulus: []fluid.Segment{{Fluid: kill, Top: 0, Bottom: 10}, {Fluid: mud, Top: 10, Bottom: 990}},
			Pocket:  []fluid.Segment{{Fluid: mud, Top: 990, Bottom: 1000}},
		},
	}
	for i, bit := range []float64{1000, 990} {
		res.Snapshots = append(res.Snapshots, types.StepSnapshot{
			Phase:              types.PhaseTripOut,
			Index:              i,
			BitMD:              bit,
			BitTVD:             bit,
			String:             []fluid.Segment{{Fluid: mud, Top: 0, Bottom: bit}},
			Annulus:            []fluid.Segment{{Fluid: mud, Top: 0, Bottom: bit}},
			AnnulusHydrostatic: 1200 * 9.80665 * bit / 1000,
			FloatState:         "CLOSED",
			CumulativeBackfill: float64(i) * 0.127,
		})
	}
	res.Warn("equalizer", 990, "iteration cap reached")
	return res
}

// Run exercises a RunStore built fresh by open.
func Run(t *testing.T, open func(t *testing.T) storage.RunStore) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := open(t)
		want := SampleRun("run-1", time.Unix(1700000000, 0))
		if err := s.SaveRun(ctx, want); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		got, err := s.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.ID != want.ID || got.Kind != want.Kind || got.Status != want.Status || got.Converged != want.Converged {
			t.Errorf("header mismatch: got %+v", got.Summarize())
		}
		if !got.StartedAt.Equal(want.StartedAt) || !got.FinishedAt.Equal(want.FinishedAt) {
			t.Errorf("times %v %v, want %v %v", got.StartedAt, got.FinishedAt, want.StartedAt, want.FinishedAt)
		}
		if got.Iterations != 42 || len(got.Snapshots) != 2 || len(got.Diagnostics) != 1 {
			t.Fatalf("got %d iterations, %d snapshots, %d diagnostics", got.Iterations, len(got.Snapshots), len(got.Diagnostics))
		}
		if s := got.Snapshots[1]; s.BitMD != 990 || s.CumulativeBackfill != 0.127 || s.String[0].Rheology.PlasticViscosity != 20 {
			t.Errorf("snapshot not preserved: %+v", s)
		}
		if got.Final == nil || len(got.Final.Annulus) != 2 || !got.Final.Annulus[0].HasColor || got.Final.Annulus[0].Color.R != 1 {
			t.Errorf("final state not preserved: %+v", got.Final)
		}
		if got.Diagnostics[0].Level != types.LevelWarning || got.Diagnostics[0].Source != "equalizer" {
			t.Errorf("diagnostic not preserved: %+v", got.Diagnostics[0])
		}
	})

	t.Run("replace", func(t *testing.T) {
		s := open(t)
		run := SampleRun("run-1", time.Unix(1700000000, 0))
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatal(err)
		}
		run.Snapshots = run.Snapshots[:1]
		run.Status = types.StatusCancelled
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatal(err)
		}
		got, err := s.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Snapshots) != 1 || got.Status != types.StatusCancelled {
			t.Errorf("replacement not stored: %d snapshots, status %s", len(got.Snapshots), got.Status)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		s := open(t)
		base := time.Unix(1700000000, 0)
		for i, id := range []string{"a", "b", "c"} {
			if err := s.SaveRun(ctx, SampleRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
				t.Fatal(err)
			}
		}
		list, err := s.ListRuns(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 3 || list[0].ID != "c" || list[2].ID != "a" {
			t.Fatalf("unexpected order %+v", list)
		}
		if list[0].Snapshots != 2 || list[0].Diagnostics != 1 {
			t.Errorf("summary counts %+v", list[0])
		}
	})

	t.Run("missing and delete", func(t *testing.T) {
		s := open(t)
		if _, err := s.GetRun(ctx, "nope"); !errors.Is(err, storage.ErrRunNotFound) {
			t.Errorf("GetRun missing: %v", err)
		}
		if err := s.SaveRun(ctx, SampleRun("x", time.Now())); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteRun(ctx, "x"); err != nil {
			t.Fatalf("DeleteRun: %v", err)
		}
		if err := s.DeleteRun(ctx, "x"); !errors.Is(err, storage.ErrRunNotFound) {
			t.Errorf("second DeleteRun: %v", err)
		}
		if _, err := s.GetRun(ctx, "x"); !errors.Is(err, storage.ErrRunNotFound) {
			t.Errorf("GetRun after delete: %v", err)
		}
	})

	t.Run("no id", func(t *testing.T) {
		s := open(t)
		if err := s.SaveRun(ctx, SampleRun("", time.Now())); err == nil {
			t.Error("expected an error saving a run without ID")
		}
	})
}
