package email

import (
	"context"
	"net/smtp"
	"strings"
	"testing"

	"github.com/smallbiznis/gymledger/internal/config"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplates(t *testing.T) {
	body, err := Render("payment_retry", map[string]any{
		"FirstName":        "Ada",
		"MembershipType":   "FULL_ADULT",
		"Amount":           45.0,
		"AttemptCount":     int64(1),
		"MaxAttempts":      int64(3),
		"NextRetry":        "3 March 2025",
		"UpdatePaymentURL": "https://gym.example/account/payment-method",
		"Reason":           "Insufficient funds",
	})
	require.NoError(t, err)
	require.Contains(t, body, "£45.00")
	require.Contains(t, body, "attempt 1 of 3")
	require.Contains(t, body, "3 March 2025")
	require.Contains(t, body, "Insufficient funds")

	_, err = Render("does_not_exist", nil)
	require.Error(t, err)
}

func TestSMTPProviderSend(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	p := NewSMTP(Config{Host: "mail.local", Port: 2525, From: "billing@gym.example"})
	p.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := p.SendTemplate(context.Background(), []string{"ada@example.com"}, "Welcome back", "recovered", map[string]any{
		"FirstName":      "Ada",
		"MembershipType": "FULL_ADULT",
		"Amount":         45.0,
	})
	require.NoError(t, err)
	require.Equal(t, "mail.local:2525", gotAddr)
	require.Equal(t, []string{"ada@example.com"}, gotTo)
	require.True(t, strings.HasPrefix(gotMsg, "From: billing@gym.example\r\n"))
	require.Contains(t, gotMsg, "Subject: Welcome back\r\n")
	require.Contains(t, gotMsg, "active again")
}

func TestSMTPProviderRequiresRecipient(t *testing.T) {
	p := NewSMTP(Config{Host: "mail.local", Port: 2525})
	err := p.Send(context.Background(), Message{Subject: "x"})
	require.ErrorIs(t, err, ErrNoRecipients)
}

func TestNewFromConfigHonoursEnabled(t *testing.T) {
	cfg := config.Config{Email: config.EmailConfig{Enabled: false, SMTPHost: "smtp.example.com"}}
	require.IsType(t, &NoOpProvider{}, NewFromConfig(cfg))

	cfg.Email.Enabled = true
	cfg.Email.SMTPPort = 587
	require.IsType(t, &SMTPProvider{}, NewFromConfig(cfg))
}
