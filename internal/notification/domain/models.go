package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Kind string

const (
	KindPaymentRetry Kind = "payment_retry"
	KindSuspended    Kind = "suspended"
	KindRecovered    Kind = "recovered"
)

// Notice is one member-facing dunning message.
type Notice struct {
	Kind             Kind
	UserID           snowflake.ID
	SubscriptionID   snowflake.ID
	Email            string
	FirstName        string
	MembershipType   string
	Amount           float64
	AttemptCount     int64
	MaxAttempts      int64
	NextRetry        *time.Time
	UpdatePaymentURL string
	Reason           string
}

// Dispatcher delivers notices. Callers on the webhook path wrap it with
// FireAndLog so delivery never fails reconciliation.
type Dispatcher interface {
	Dispatch(ctx context.Context, notice Notice) error
}
