package service

import (
	"context"

	"github.com/smallbiznis/gymledger/internal/notification/domain"
	obsmetrics "github.com/smallbiznis/gymledger/internal/observability/metrics"
	"go.uber.org/zap"
)

// FireAndLog sends a notice and swallows any failure after logging it.
type FireAndLog struct {
	next    domain.Dispatcher
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewFireAndLog(next domain.Dispatcher, log *zap.Logger, metrics *obsmetrics.Metrics) *FireAndLog {
	return &FireAndLog{next: next, log: log.Named("notification"), metrics: metrics}
}

func (f *FireAndLog) Dispatch(ctx context.Context, notice domain.Notice) error {
	if err := f.next.Dispatch(ctx, notice); err != nil {
		f.log.Warn("notification not delivered",
			zap.String("kind", string(notice.Kind)),
			zap.String("user_id", notice.UserID.String()),
			zap.String("subscription_id", notice.SubscriptionID.String()),
			zap.Error(err),
		)
		f.metrics.RecordNotification(ctx, string(notice.Kind), "failed")
		return nil
	}
	f.metrics.RecordNotification(ctx, string(notice.Kind), "sent")
	return nil
}
