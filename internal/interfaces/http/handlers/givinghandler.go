package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"confgive/internal/application/giving"
	"confgive/internal/infrastructure/gateway"
	"confgive/internal/infrastructure/persistence/models"
	apperrors "confgive/internal/shared/errors"
	"confgive/internal/shared/logger"
)

// GivingHandler serves the donation charge endpoint and the admin reads.
// Response body shapes on these routes are a fixed external contract: the
// charge endpoint echoes the raw gateway result, errors are {"error": ...}.
type GivingHandler struct {
	charges      ChargeService
	reader       GivingReader
	googleSecret string
	logger       logger.Interface
}

func NewGivingHandler(charges ChargeService, reader GivingReader, googleSecret string, log logger.Interface) *GivingHandler {
	return &GivingHandler{
		charges:      charges,
		reader:       reader,
		googleSecret: googleSecret,
		logger:       log,
	}
}

type paymentRequest struct {
	Prime      string              `json:"prime"`
	Amount     int64               `json:"amount"`
	Cardholder *gateway.Cardholder `json:"cardholder"`
}

// respondError writes the client-facing error contract: the AppError's code
// with an {"error": message} body.
func respondError(c *gin.Context, err *apperrors.AppError) {
	c.JSON(err.Code, gin.H{"error": err.Message})
}

// Giving handles POST /payment. The gateway call is synchronous; the
// response never waits for persistence or email. Declines get the raw
// gateway body with no side effects.
func (h *GivingHandler) Giving(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnw("failed to bind payment request", "error", err)
		respondError(c, apperrors.NewValidationError("Missing required fields: prime, amount, or cardholder"))
		return
	}

	if req.Prime == "" || req.Amount == 0 || req.Cardholder == nil {
		respondError(c, apperrors.NewValidationError("Missing required fields: prime, amount, or cardholder"))
		return
	}

	if req.Cardholder.PhoneCode == "" || req.Cardholder.PhoneNumber == "" {
		respondError(c, apperrors.NewValidationError("Missing required fields: phoneCode, or phone_number"))
		return
	}

	result, err := h.charges.ProcessCharge(c.Request.Context(), giving.ChargeRequest{
		Prime:      req.Prime,
		Amount:     req.Amount,
		Cardholder: req.Cardholder,
	})
	if err != nil {
		// An enqueue failure means the charge itself succeeded but the
		// settlement job did not reach the queue. Reported as an error
		// response, no compensation.
		h.logger.Errorw("charge processing failed", "error", err)
		appErr := apperrors.GetAppError(err)
		if appErr == nil {
			appErr = apperrors.NewInternalError("TapPay payment request failed").WithCause(err)
		}
		respondError(c, appErr)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", result.Raw)
}

type getAllRequest struct {
	GoogleSecret string `json:"googleSecret"`
	LastRowID    uint   `json:"lastRowID"`
}

// GetAll handles POST /getall, the admin export read.
func (h *GivingHandler) GetAll(c *gin.Context) {
	var req getAllRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.GoogleSecret == "" || req.GoogleSecret != h.googleSecret {
		respondError(c, apperrors.NewUnauthorizedError("Missing secret"))
		return
	}

	records, err := h.reader.ListAfter(c.Request.Context(), req.LastRowID)
	if err != nil {
		h.logger.Errorw("failed to list giving records", "error", err)
		respondError(c, apperrors.NewInternalError("Failed to get giving all data."))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

// campusIndex maps campus names to their reporting index.
var campusIndex = map[string]int{
	"台北分部": 1,
	"線上分部": 2,
	"不確定":  3,
	"台中分部": 4,
}

type statsRecord struct {
	models.GivingModel
	Campus int `json:"campus"`
}

// Stats handles GET /stats: successful production donations with the campus
// converted to its reporting index.
func (h *GivingHandler) Stats(c *gin.Context) {
	records, err := h.reader.ListProductionSuccessful(c.Request.Context())
	if err != nil {
		h.logger.Errorw("failed to load stats", "error", err)
		respondError(c, apperrors.NewInternalError("Failed to get giving stats."))
		return
	}

	out := make([]statsRecord, len(records))
	for i, r := range records {
		out[i] = statsRecord{GivingModel: r, Campus: campusIndex[r.Campus]}
	}

	c.JSON(http.StatusOK, gin.H{"data": out})
}
