// Package giving implements the donation charge and settlement use cases.
package giving

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"confgive/internal/infrastructure/email"
	"confgive/internal/infrastructure/gateway"
	"confgive/internal/infrastructure/metrics"
	"confgive/internal/infrastructure/persistence/models"
	"confgive/internal/infrastructure/queue"
	"confgive/internal/shared/biztime"
	apperrors "confgive/internal/shared/errors"
	"confgive/internal/shared/goroutine"
	"confgive/internal/shared/logger"
)

// ChargeGateway authorizes a charge against the external payment service.
type ChargeGateway interface {
	Charge(ctx context.Context, prime string, amount int64, cardholder *gateway.Cardholder, phoneNumber string) (*gateway.Result, error)
}

// SettlementQueue accepts settlement jobs for asynchronous persistence.
type SettlementQueue interface {
	Enqueue(ctx context.Context, id string, payload []byte) error
}

// Notifier sends the best-effort confirmation email.
type Notifier interface {
	SendGivingSuccess(recipient string, tctx email.TemplateContext) error
}

// ChargeRequest is the validated input of one charge attempt.
type ChargeRequest struct {
	Prime      string
	Amount     int64
	Cardholder *gateway.Cardholder
}

// Service runs the charge flow: authorize synchronously, then hand the
// settlement off to the durable queue and the confirmation email to the
// background runner. The caller gets the gateway's answer without waiting
// for persistence or email.
type Service struct {
	gateway  ChargeGateway
	queue    SettlementQueue
	notifier Notifier
	tasks    *goroutine.Runner
	metrics  *metrics.PipelineMetrics
	currency string
	env      string
	log      logger.Interface
}

func NewService(
	gw ChargeGateway,
	q SettlementQueue,
	notifier Notifier,
	tasks *goroutine.Runner,
	m *metrics.PipelineMetrics,
	currency string,
	env string,
	log logger.Interface,
) *Service {
	return &Service{
		gateway:  gw,
		queue:    q,
		notifier: notifier,
		tasks:    tasks,
		metrics:  m,
		currency: currency,
		env:      env,
		log:      log.Named("giving"),
	}
}

// ProcessCharge authorizes the charge and, on success, enqueues exactly one
// settlement job and dispatches the confirmation email. The returned Result
// is always the raw gateway answer when one was obtained; on a decline no
// side effects happen at all.
//
// An enqueue failure after a successful charge is returned alongside the
// Result: the money moved but the record is not durably queued. There is no
// compensating action; the caller reports the inconsistency.
func (s *Service) ProcessCharge(ctx context.Context, req ChargeRequest) (*gateway.Result, error) {
	phoneNumber := req.Cardholder.PhoneCode + req.Cardholder.PhoneNumber

	result, err := s.gateway.Charge(ctx, req.Prime, req.Amount, req.Cardholder, phoneNumber)
	if err != nil {
		s.countOutcome("gateway_error")
		return nil, apperrors.NewGatewayError("TapPay payment request failed").WithCause(err)
	}

	if !result.Authorized() {
		s.countOutcome("declined")
		s.log.Infow("charge declined by gateway", "status", result.Status)
		return result, nil
	}

	record := s.buildRecord(req, phoneNumber, result.RecTradeID)

	if err := s.enqueueSettlement(ctx, record, result.RecTradeID); err != nil {
		s.countOutcome("enqueue_error")
		// Critical inconsistency: the charge succeeded but the settlement
		// job never reached the durable queue. Manual reconciliation is
		// required; the record exists only in this log line.
		s.log.Errorw("charge succeeded but settlement enqueue failed",
			"tp_trade_id", result.RecTradeID,
			"amount", req.Amount,
			"error", err)
		return result, apperrors.NewEnqueueError("Failed to add payment to processing queue.").WithCause(err)
	}

	s.countOutcome("authorized")
	if s.metrics != nil {
		s.metrics.JobsEnqueuedTotal.Inc()
	}

	s.dispatchConfirmation(req, record)

	return result, nil
}

func (s *Service) buildRecord(req ChargeRequest, phoneNumber, recTradeID string) *models.GivingModel {
	ch := req.Cardholder
	tradeID := recTradeID

	return &models.GivingModel{
		Name:        ch.Name,
		Amount:      req.Amount,
		Currency:    s.currency,
		Date:        biztime.CurrentDate(),
		PhoneNumber: phoneNumber,
		Email:       ch.Email,
		Receipt:     ch.Receipt,
		PaymentType: ch.PaymentType,
		Upload:      normalizeUpload(ch.Upload),
		ReceiptName: ch.ReceiptName,
		NationalID:  ch.NationalID,
		Company:     ch.Company,
		TaxID:       ch.TaxID,
		Note:        ch.Note,
		Campus:      ch.Campus,
		TPTradeID:   &tradeID,
		IsSuccess:   true,
		Env:         s.env,
		CreatedAt:   biztime.NowUTC(),
	}
}

// enqueueSettlement derives the job id from the gateway transaction id so a
// duplicate enqueue attempt for the same charge collapses into one job. The
// queue deduplicates by the literal id only.
func (s *Service) enqueueSettlement(ctx context.Context, record *models.GivingModel, recTradeID string) error {
	payload, err := json.Marshal(SettlementJob{GivingData: record})
	if err != nil {
		return fmt.Errorf("failed to marshal settlement job: %w", err)
	}

	jobID := "giving:" + recTradeID
	if recTradeID == "" {
		jobID = uuid.NewString()
	}

	if err := s.queue.Enqueue(ctx, jobID, payload); err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			s.log.Infow("settlement job already enqueued", "job_id", jobID)
			return nil
		}
		return err
	}

	s.log.Infow("settlement job enqueued", "job_id", jobID)
	return nil
}

// dispatchConfirmation hands the email to the background runner. It is never
// awaited and its failure never propagates.
func (s *Service) dispatchConfirmation(req ChargeRequest, record *models.GivingModel) {
	if s.notifier == nil || req.Cardholder.Email == "" {
		return
	}

	recipient := req.Cardholder.Email
	tctx := email.TemplateContext{
		Greeting:      email.GreetingFor(req.Cardholder.ReceiptName),
		AmountDisplay: email.FormatCurrencyDisplay(req.Amount, s.currency),
		PaymentMethod: email.FormatPaymentMethod(req.Cardholder.PaymentType),
		GivingDate:    email.FormatDisplayDate(record.Date),
	}

	s.tasks.Submit("giving-confirmation-email", func() error {
		return s.notifier.SendGivingSuccess(recipient, tctx)
	})
}

func (s *Service) countOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.ChargeRequestsTotal.WithLabelValues(outcome).Inc()
	}
}

func normalizeUpload(v any) string {
	switch u := v.(type) {
	case nil:
		return ""
	case bool:
		if u {
			return "true"
		}
		return ""
	case string:
		return u
	default:
		return fmt.Sprint(u)
	}
}
