package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/gymledger/internal/notification/domain"
	"github.com/smallbiznis/gymledger/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Provider email.Provider
}

// EmailDispatcher renders notices with the embedded email templates.
type EmailDispatcher struct {
	log      *zap.Logger
	provider email.Provider
}

func NewEmailDispatcher(p Params) *EmailDispatcher {
	return &EmailDispatcher{
		log:      p.Log.Named("notification.email"),
		provider: p.Provider,
	}
}

type templateData struct {
	FirstName        string
	MembershipType   string
	Amount           float64
	AttemptCount     int64
	MaxAttempts      int64
	NextRetry        string
	UpdatePaymentURL string
	Reason           string
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, notice domain.Notice) error {
	to := strings.TrimSpace(notice.Email)
	if to == "" {
		return domain.ErrMissingRecipient
	}

	subject, ok := subjects[notice.Kind]
	if !ok {
		return domain.ErrUnknownKind
	}

	data := templateData{
		FirstName:        firstNameOrDefault(notice.FirstName),
		MembershipType:   notice.MembershipType,
		Amount:           notice.Amount,
		AttemptCount:     notice.AttemptCount,
		MaxAttempts:      notice.MaxAttempts,
		UpdatePaymentURL: notice.UpdatePaymentURL,
		Reason:           notice.Reason,
	}
	if notice.NextRetry != nil {
		data.NextRetry = notice.NextRetry.UTC().Format("2 January 2006")
	}

	return d.provider.SendTemplate(ctx, []string{to}, subject, string(notice.Kind), data)
}

var subjects = map[domain.Kind]string{
	domain.KindPaymentRetry: "We couldn't take your membership payment",
	domain.KindSuspended:    "Your membership has been suspended",
	domain.KindRecovered:    "Payment received, your membership is active",
}

func firstNameOrDefault(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return "there"
}

var _ domain.Dispatcher = (*EmailDispatcher)(nil)
