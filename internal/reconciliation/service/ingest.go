package service

import (
	"context"
	"errors"
	"fmt"

	gatewaydomain "github.com/smallbiznis/gymledger/internal/gateway/domain"
	"github.com/smallbiznis/gymledger/internal/observability/tracing"
	"github.com/smallbiznis/gymledger/internal/reconciliation/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Ingest verifies the signature, records the delivery and runs the handler.
// A delivery is marked processed only when its handler succeeded, so a failed
// attempt runs again on redelivery.
func (s *Service) Ingest(ctx context.Context, payload []byte, signatureHeader string) error {
	event, err := s.gateway.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "webhook "+event.Type)
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("webhook.event_id", event.ID),
		attribute.String("webhook.event_type", event.Type),
	)...)

	outcome, err := s.ingest(ctx, event, payload)
	s.obsMetrics.RecordWebhookEvent(ctx, event.Type, outcome)
	span.SetAttributes(attribute.String("webhook.outcome", outcome))
	if err != nil && outcome == domain.OutcomeFailed {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "webhook handling failed")
		s.log.Error("webhook handling failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
	}
	return err
}

func (s *Service) ingest(ctx context.Context, event *gatewaydomain.Event, payload []byte) (string, error) {
	raw := event.Raw
	if len(raw) == 0 {
		raw = payload
	}
	record := domain.WebhookEvent{
		ID:              s.genID.Generate(),
		Provider:        domain.ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(raw),
		ReceivedAt:      s.now(),
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &record)
	if err != nil {
		return domain.OutcomeFailed, fmt.Errorf("record webhook %s: %w", event.ID, err)
	}
	stored := &record
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, domain.ProviderStripe, event.ID)
		if err != nil {
			return domain.OutcomeFailed, err
		}
		if stored == nil {
			return domain.OutcomeFailed, domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.log.Debug("duplicate webhook delivery", zap.String("event_id", event.ID))
			return domain.OutcomeDuplicate, domain.ErrEventAlreadyProcessed
		}
	}

	outcome := domain.OutcomeProcessed
	if err := s.HandleEvent(ctx, event); err != nil {
		if !errors.Is(err, domain.ErrEventIgnored) {
			return domain.OutcomeFailed, err
		}
		outcome = domain.OutcomeIgnored
	}

	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.now()); err != nil {
		return domain.OutcomeFailed, err
	}
	if outcome == domain.OutcomeIgnored {
		return outcome, domain.ErrEventIgnored
	}
	return outcome, nil
}
