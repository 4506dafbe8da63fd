package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/gymledger/internal/config"
	"github.com/smallbiznis/gymledger/internal/notification/domain"
	"github.com/smallbiznis/gymledger/internal/providers/slack"
)

// StaffAlerter tells the front desk when a membership is suspended so the
// member can be stopped at the door. Other kinds are member-only.
type StaffAlerter struct {
	provider slack.Provider
	channel  string
}

func NewStaffAlerter(cfg config.Config, provider slack.Provider) *StaffAlerter {
	return &StaffAlerter{provider: provider, channel: cfg.Slack.Channel}
}

func (a *StaffAlerter) Dispatch(ctx context.Context, notice domain.Notice) error {
	if notice.Kind != domain.KindSuspended {
		return nil
	}

	who := strings.TrimSpace(notice.FirstName)
	if who == "" {
		who = "member"
	}
	msg := fmt.Sprintf("Membership suspended: %s <%s>, %s, subscription %s",
		who, notice.Email, notice.MembershipType, notice.SubscriptionID)
	if notice.Reason != "" {
		msg += ". Reason: " + notice.Reason
	}
	return a.provider.PostMessage(ctx, a.channel, msg)
}

// Fanout delivers to every dispatcher and joins their errors.
type Fanout []domain.Dispatcher

func (f Fanout) Dispatch(ctx context.Context, notice domain.Notice) error {
	var errs []error
	for _, d := range f {
		if err := d.Dispatch(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
