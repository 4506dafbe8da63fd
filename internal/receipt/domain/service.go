package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Receipt is a rendered PDF for one settled payment.
type Receipt struct {
	Filename string
	Content  []byte
}

type Service interface {
	Render(ctx context.Context, paymentID snowflake.ID) (*Receipt, error)
}

var (
	// ErrNotSettled is returned for payments that never took money.
	ErrNotSettled = errors.New("payment_not_settled")
)
