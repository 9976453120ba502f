package handlers

import (
	"context"

	"confgive/internal/application/giving"
	"confgive/internal/infrastructure/gateway"
	"confgive/internal/infrastructure/persistence/models"
)

// ChargeService runs the synchronous charge flow.
type ChargeService interface {
	ProcessCharge(ctx context.Context, req giving.ChargeRequest) (*gateway.Result, error)
}

// GivingReader serves the admin read paths.
type GivingReader interface {
	ListAfter(ctx context.Context, lastRowID uint) ([]models.GivingModel, error)
	ListProductionSuccessful(ctx context.Context) ([]models.GivingModel, error)
}
