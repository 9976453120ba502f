package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"confgive/internal/infrastructure/persistence/models"
)

type GivingRepository struct {
	db *gorm.DB
}

func NewGivingRepository(db *gorm.DB) *GivingRepository {
	return &GivingRepository{db: db}
}

// Create appends a single donation record. Each settlement job is processed
// by exactly one worker, so the streaming path needs no application locking;
// the unique index on tp_trade_id is the second line of defense against a
// duplicate enqueue for the same charge.
func (r *GivingRepository) Create(ctx context.Context, record *models.GivingModel) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create giving record: %w", err)
	}
	return nil
}

// CreateBatch inserts imported records in one transaction. If any row fails
// the whole batch rolls back and zero rows are committed.
func (r *GivingRepository) CreateBatch(ctx context.Context, records []*models.GivingModel) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("failed to insert imported record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(records), nil
}

// ListAfter returns production donations above the minimum amount with
// id > lastRowID, ordered by id ascending. This backs the admin export read.
func (r *GivingRepository) ListAfter(ctx context.Context, lastRowID uint) ([]models.GivingModel, error) {
	var records []models.GivingModel

	if err := r.db.WithContext(ctx).
		Where("id > ? AND env = ? AND amount > ?", lastRowID, "production", 1).
		Order("id").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list giving records: %w", err)
	}

	return records, nil
}

// ListProductionSuccessful returns successful production donations ordered by
// giving date, used by the stats read.
func (r *GivingRepository) ListProductionSuccessful(ctx context.Context) ([]models.GivingModel, error) {
	var records []models.GivingModel

	if err := r.db.WithContext(ctx).
		Where("env = ? AND is_success = ?", "production", true).
		Order("date ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list successful giving records: %w", err)
	}

	return records, nil
}
