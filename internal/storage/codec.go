package storage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/chrissnell/wellsim/internal/types"
	"github.com/vmihailenco/msgpack/v5"
)

// RunRecord is the row form of a run without its snapshots. Diagnostics and
// the final seed are msgpack blobs.
type RunRecord struct {
	ID              string
	Kind            string
	Status          string
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
	Converged       bool
	Iterations      int
	SnapshotCount   int
	DiagnosticCount int
	Diagnostics     []byte
	Final           []byte
}

// SnapshotRecord is the row form of one snapshot. The indexed columns are
// duplicated out of the msgpack payload in Data.
type SnapshotRecord struct {
	RunID string
	Index int
	Phase string
	BitMD float64
	Data  []byte
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// EncodeRun splits a run into rows.
func EncodeRun(res *types.RunResult) (RunRecord, []SnapshotRecord, error) {
	rec := RunRecord{
		ID:              res.ID,
		Kind:            string(res.Kind),
		Status:          string(res.Status),
		Error:           res.Error,
		StartedAt:       res.StartedAt,
		FinishedAt:      res.FinishedAt,
		Converged:       res.Converged,
		Iterations:      res.Iterations,
		SnapshotCount:   len(res.Snapshots),
		DiagnosticCount: len(res.Diagnostics),
	}

	var err error
	if rec.Diagnostics, err = marshal(res.Diagnostics); err != nil {
		return RunRecord{}, nil, fmt.Errorf("encoding diagnostics of run %s: %w", res.ID, err)
	}
	if res.Final != nil {
		if rec.Final, err = marshal(res.Final); err != nil {
			return RunRecord{}, nil, fmt.Errorf("encoding final state of run %s: %w", res.ID, err)
		}
	}

	snaps := make([]SnapshotRecord, len(res.Snapshots))
	for i, s := range res.Snapshots {
		data, err := marshal(s)
		if err != nil {
			return RunRecord{}, nil, fmt.Errorf("encoding snapshot %d of run %s: %w", i, res.ID, err)
		}
		snaps[i] = SnapshotRecord{RunID: res.ID, Index: i, Phase: string(s.Phase), BitMD: s.BitMD, Data: data}
	}
	return rec, snaps, nil
}

// DecodeRun rebuilds a run from rows. snaps must be in index order.
func DecodeRun(rec RunRecord, snaps []SnapshotRecord) (*types.RunResult, error) {
	res := &types.RunResult{
		ID:         rec.ID,
		Kind:       types.RunKind(rec.Kind),
		Status:     types.RunStatus(rec.Status),
		Error:      rec.Error,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Converged:  rec.Converged,
		Iterations: rec.Iterations,
	}
	if len(rec.Diagnostics) > 0 {
		if err := unmarshal(rec.Diagnostics, &res.Diagnostics); err != nil {
			return nil, fmt.Errorf("decoding diagnostics of run %s: %w", rec.ID, err)
		}
	}
	if len(rec.Final) > 0 {
		res.Final = &types.SeedState{}
		if err := unmarshal(rec.Final, res.Final); err != nil {
			return nil, fmt.Errorf("decoding final state of run %s: %w", rec.ID, err)
		}
	}

	res.Snapshots = make([]types.StepSnapshot, len(snaps))
	for i, s := range snaps {
		if err := unmarshal(s.Data, &res.Snapshots[i]); err != nil {
			return nil, fmt.Errorf("decoding snapshot %d of run %s: %w", s.Index, rec.ID, err)
		}
	}
	return res, nil
}

// Summary returns the list view of the record.
func (r RunRecord) Summary() types.Summary {
	return types.Summary{
		ID:          r.ID,
		Kind:        types.RunKind(r.Kind),
		Status:      types.RunStatus(r.Status),
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Converged:   r.Converged,
		Snapshots:   r.SnapshotCount,
		Diagnostics: r.DiagnosticCount,
	}
}
