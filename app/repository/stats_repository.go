package repository

import (
	"context"

	"github.com/outflo/outflo/internal/pkg/metrics/counter"
)

// PipelineStats is the operator view of pipeline health.
type PipelineStats struct {
	Counters map[string]int64 `json:"counters"`
	Pending  int64            `json:"pending"`
	Unbound  int64            `json:"unbound"`
	Claimed  int64            `json:"claimed"`
}

// StatsRepository combines the Redis outcome counters with live row counts.
type StatsRepository interface {
	Get(ctx context.Context) (*PipelineStats, error)
	ResetCounters(ctx context.Context) error
}

type statsRepository struct {
	recorder *counter.Recorder
	events   EventRepository
}

// NewStatsRepository creates a new stats repository instance. recorder may be nil.
func NewStatsRepository(recorder *counter.Recorder, events EventRepository) StatsRepository {
	return &statsRepository{recorder: recorder, events: events}
}

func (r *statsRepository) Get(ctx context.Context) (*PipelineStats, error) {
	counters, err := r.recorder.Snapshot(ctx)
	if err != nil {
		// counters are best-effort, row counts are not
		counters = map[string]int64{}
	}

	stats := &PipelineStats{Counters: counters}
	if stats.Pending, err = r.events.CountPending(ctx); err != nil {
		return nil, err
	}
	if stats.Unbound, err = r.events.CountUnbound(ctx); err != nil {
		return nil, err
	}
	if stats.Claimed, err = r.events.CountClaimed(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *statsRepository) ResetCounters(ctx context.Context) error {
	return r.recorder.Reset(ctx)
}
