package email

import (
	"github.com/smallbiznis/gymledger/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig builds the SMTP sender for dunning mail.
func NewFromConfig(cfg config.Config) Provider {
	smtp := cfg.Email
	if !smtp.Enabled {
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     smtp.SMTPHost,
		Port:     smtp.SMTPPort,
		Username: smtp.SMTPUsername,
		Password: smtp.SMTPPassword,
		From:     smtp.SMTPFrom,
	})
}
