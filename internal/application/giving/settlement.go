package giving

import (
	"context"
	"encoding/json"
	"fmt"

	"confgive/internal/infrastructure/persistence/models"
	apperrors "confgive/internal/shared/errors"
	"confgive/internal/shared/logger"
)

// SettlementJob is the queue payload wire shape.
type SettlementJob struct {
	GivingData *models.GivingModel `json:"givingData"`
}

// RecordStore persists settled donation records.
type RecordStore interface {
	Create(ctx context.Context, record *models.GivingModel) error
}

// Settler is the worker-side half of the pipeline: it materializes one
// settlement job into a durable donation record.
type Settler struct {
	store RecordStore
	log   logger.Interface
}

func NewSettler(store RecordStore, log logger.Interface) *Settler {
	return &Settler{
		store: store,
		log:   log.Named("settler"),
	}
}

// Process handles one job attempt. A returned error makes the queue schedule
// a re-attempt; a duplicate-key failure means the record was already settled
// by an earlier attempt, so it is treated as success.
func (s *Settler) Process(ctx context.Context, payload []byte) error {
	var job SettlementJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("failed to decode settlement job: %w", err)
	}
	if job.GivingData == nil {
		return fmt.Errorf("settlement job missing givingData")
	}

	if err := s.store.Create(ctx, job.GivingData); err != nil {
		if apperrors.IsDuplicateError(err) {
			s.log.Warnw("donation already settled, skipping insert",
				"tp_trade_id", derefOrEmpty(job.GivingData.TPTradeID))
			return nil
		}
		return err
	}

	s.log.Infow("donation settled",
		"tp_trade_id", derefOrEmpty(job.GivingData.TPTradeID),
		"amount", job.GivingData.Amount)
	return nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
