package ingest

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/outflo/outflo/app/models"
)

// Reprocess claims up to limit unprocessed, unclaimed events (oldest received first) and
// drives them through alias resolution and materialization. A row that cannot be finished
// is released and the run moves on; only listing the batch can fail the run.
func (s *Service) Reprocess(ctx context.Context, limit int) (RunStats, error) {
	stats := RunStats{Limit: ClampLimit(limit)}
	s.count(ctx, CounterReprocessRuns)

	events, err := s.repo.ListReprocessCandidates(ctx, stats.Limit)
	if err != nil {
		log.Errorf("[Reprocess] Failed to list candidates: %v", err)
		return stats, err
	}
	stats.Scanned = len(events)

	for i := range events {
		if err := ctx.Err(); err != nil {
			log.Warnf("[Reprocess] Run interrupted after %d of %d rows: %v", i, len(events), err)
			return stats, err
		}
		s.reprocessOne(ctx, &events[i], &stats)
	}

	log.Infof("[Reprocess] Run finished: scanned=%d claimed=%d bound=%d materialized=%d skipped=%d failed=%d",
		stats.Scanned, stats.Claimed, stats.Bound, stats.Materialized, stats.Skipped, stats.Failed)
	return stats, nil
}

func (s *Service) reprocessOne(ctx context.Context, candidate *models.InboundEvent, stats *RunStats) {
	claim, err := s.claims.Claim(ctx, candidate.ID)
	if err != nil {
		stats.Failed++
		log.Errorf("[Reprocess] Claim failed for event %s: %v", candidate.ID, err)
		return
	}
	if claim == nil {
		stats.Skipped++
		s.count(ctx, CounterClaimLost)
		return
	}
	stats.Claimed++

	event := claim.Event
	if !event.IsBound() {
		userID, found, err := s.resolver.Resolve(ctx, event.LocalPart)
		if err != nil {
			stats.Failed++
			log.Errorf("[Reprocess] Alias lookup failed for event %s: %v", event.ID, err)
			s.claims.Release(ctx, claim)
			return
		}
		if !found {
			log.Debugf("[Reprocess] Event %s still has no alias for %q", event.ID, event.LocalPart)
			s.claims.Release(ctx, claim)
			return
		}
		bound, err := s.bindUser(ctx, event, userID)
		if err != nil {
			stats.Failed++
			log.Errorf("[Reprocess] Bind failed for event %s: %v", event.ID, err)
			s.claims.Release(ctx, claim)
			return
		}
		if bound {
			stats.Bound++
		}
	}

	if err := s.materializer.Materialize(ctx, claim); err != nil {
		stats.Failed++
		s.count(ctx, CounterMaterializeFail)
		log.Errorf("[Reprocess] %v", err)
		return
	}
	stats.Materialized++
	s.count(ctx, CounterMaterialized)
}
