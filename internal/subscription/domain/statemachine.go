package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Trigger is an event that may move a subscription between states.
type Trigger string

const (
	// TriggerSetupConfirmed is the interactive payment-method setup path.
	TriggerSetupConfirmed   Trigger = "setup_confirmed"
	TriggerPaymentSucceeded Trigger = "payment_succeeded"
	// TriggerDunningExhausted fires on the final failed retry.
	TriggerDunningExhausted Trigger = "dunning_exhausted"

	TriggerGatewayActive            Trigger = "gateway_active"
	TriggerGatewayPastDue           Trigger = "gateway_past_due"
	TriggerGatewayPaused            Trigger = "gateway_paused"
	TriggerGatewayIncomplete        Trigger = "gateway_incomplete"
	TriggerGatewayIncompleteExpired Trigger = "gateway_incomplete_expired"
	TriggerGatewayCancelled         Trigger = "gateway_cancelled"
)

var ErrIllegalTransition = errors.New("illegal_transition")

type transitionKey struct {
	from    SubscriptionStatus
	trigger Trigger
}

var transitions = map[transitionKey]SubscriptionStatus{}

func allow(to SubscriptionStatus, trigger Trigger, from ...SubscriptionStatus) {
	for _, f := range from {
		transitions[transitionKey{from: f, trigger: trigger}] = to
	}
}

func init() {
	var (
		pending    = SubscriptionStatusPendingPayment
		active     = SubscriptionStatusActive
		pastDue    = SubscriptionStatusPastDue
		paused     = SubscriptionStatusPaused
		cancelled  = SubscriptionStatusCancelled
		incomplete = SubscriptionStatusIncomplete
		expired    = SubscriptionStatusIncompleteExpired
	)

	allow(active, TriggerSetupConfirmed, pending, active)

	allow(active, TriggerPaymentSucceeded, pending, active, pastDue, paused, incomplete)
	// A final invoice can settle after cancellation; the row stays cancelled.
	allow(cancelled, TriggerPaymentSucceeded, cancelled)

	allow(pastDue, TriggerDunningExhausted, active, pastDue)

	allow(active, TriggerGatewayActive, pending, active, pastDue, paused, incomplete)
	allow(pastDue, TriggerGatewayPastDue, pending, active, pastDue, paused, incomplete)
	allow(paused, TriggerGatewayPaused, active, pastDue, paused)
	allow(incomplete, TriggerGatewayIncomplete, pending, incomplete)
	allow(expired, TriggerGatewayIncompleteExpired, pending, incomplete, expired)
	allow(cancelled, TriggerGatewayCancelled, pending, active, pastDue, paused, incomplete, cancelled)
}

// Transition returns the next status for (from, trigger), or ErrIllegalTransition.
func Transition(from SubscriptionStatus, trigger Trigger) (SubscriptionStatus, error) {
	to, ok := transitions[transitionKey{from: from, trigger: trigger}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, trigger, from)
	}
	return to, nil
}

// NormalizeGatewayStatus maps a raw processor status onto the local enum.
// An active pause-collection overrides the raw status; trialing members keep
// access and count as active.
func NormalizeGatewayStatus(raw string, pauseCollection bool) (SubscriptionStatus, bool) {
	if pauseCollection {
		return SubscriptionStatusPaused, true
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trialing":
		return SubscriptionStatusActive, true
	case "canceled", "cancelled":
		return SubscriptionStatusCancelled, true
	case "unpaid":
		return SubscriptionStatusPastDue, true
	}
	status := SubscriptionStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", false
	}
	return status, true
}

// GatewayTrigger maps a normalized gateway status to its sync trigger.
func GatewayTrigger(status SubscriptionStatus) (Trigger, bool) {
	switch status {
	case SubscriptionStatusActive:
		return TriggerGatewayActive, true
	case SubscriptionStatusPastDue:
		return TriggerGatewayPastDue, true
	case SubscriptionStatusPaused:
		return TriggerGatewayPaused, true
	case SubscriptionStatusIncomplete:
		return TriggerGatewayIncomplete, true
	case SubscriptionStatusIncompleteExpired:
		return TriggerGatewayIncompleteExpired, true
	case SubscriptionStatusCancelled:
		return TriggerGatewayCancelled, true
	default:
		return "", false
	}
}

// DeriveMembershipStatus projects a subscription status onto membership access.
// PAST_DUE keeps access while retries continue and loses it once dunning suspended it.
func DeriveMembershipStatus(status SubscriptionStatus, dunningSuspended bool) MembershipStatus {
	switch status {
	case SubscriptionStatusPaused:
		return MembershipStatusSuspended
	case SubscriptionStatusPendingPayment,
		SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired:
		return MembershipStatusPendingPayment
	case SubscriptionStatusCancelled:
		return MembershipStatusCancelled
	case SubscriptionStatusPastDue:
		if dunningSuspended {
			return MembershipStatusSuspended
		}
		return MembershipStatusActive
	default:
		return MembershipStatusActive
	}
}
