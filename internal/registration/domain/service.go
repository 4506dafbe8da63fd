package domain

import "context"

type Service interface {
	// Register routes the membership, creates the local rows and starts
	// payment-method setup with the gateway.
	Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error)
	// ConfirmPayment charges the prorated first period and starts the
	// recurring gateway subscription once setup has succeeded.
	ConfirmPayment(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error)
	ListPlans(ctx context.Context) ([]MembershipPlan, error)
}
