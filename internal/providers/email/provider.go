package email

import "context"

// Message is a rendered email ready for delivery.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
	// SendTemplate renders templates/<name>.html with data and sends it.
	SendTemplate(ctx context.Context, to []string, subject, templateName string, data any) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, subject, templateName string, data any) error {
	return nil
}
