// Package contact relays the public contact form to the team inbox.
package contact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/talewise/storyteller/pkg/email"
	"github.com/talewise/storyteller/pkg/logger"
	"github.com/talewise/storyteller/pkg/validator"
)

const (
	maxNameLen    = 200
	maxMessageLen = 5000
)

var ErrDeliveryFailed = errors.New("contact: message could not be delivered")

type Config struct {
	ContactEmail string `env:"CONTACT_EMAIL" envDefault:"hola@talewise.app"`
}

type Message struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (m *Message) Normalize() {
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.TrimSpace(m.Email)
	m.Message = strings.TrimSpace(m.Message)
}

func (m Message) Validate() error {
	return validator.Apply(
		validator.Required("name", m.Name),
		validator.Required("email", m.Email),
		validator.Required("message", m.Message),
		validator.ValidEmail("email", m.Email),
		validator.MaxLen("name", m.Name, maxNameLen),
		validator.MaxLen("message", m.Message, maxMessageLen),
	)
}

type Delivery string

const (
	// DeliverySent means the provider accepted the message.
	DeliverySent Delivery = "sent"
	// DeliveryLogged means development mode: the message was only recorded.
	DeliveryLogged Delivery = "logged"
)

type Service struct {
	sender  email.EmailSender
	to      string
	devMode bool
	log     *slog.Logger
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithDevelopmentMode logs messages instead of delivering them. A non-nil
// sender still receives them, which lets DevSender write them to disk.
func WithDevelopmentMode(on bool) Option {
	return func(s *Service) { s.devMode = on }
}

// NewService panics when sender is nil outside development mode.
func NewService(sender email.EmailSender, cfg Config, opts ...Option) *Service {
	s := &Service{sender: sender, to: cfg.ContactEmail, log: logger.Discard()}
	for _, opt := range opts {
		opt(s)
	}
	if s.sender == nil && !s.devMode {
		panic("contact: email sender is required outside development mode")
	}
	s.log = s.log.With(logger.Component("contact"))
	return s
}

func (s *Service) Submit(ctx context.Context, m Message) (Delivery, error) {
	m.Normalize()
	if err := m.Validate(); err != nil {
		return "", err
	}

	body, err := render(m)
	if err != nil {
		return "", fmt.Errorf("render contact email: %w", err)
	}
	params := email.SendEmailParams{
		SendTo:   s.to,
		ReplyTo:  m.Email,
		Subject:  "Nuevo mensaje de contacto de " + m.Name,
		BodyHTML: body,
		Tag:      "contact",
	}

	if s.devMode {
		s.log.InfoContext(ctx, "contact message received in development mode",
			slog.String("name", m.Name), logger.Email(m.Email), slog.String("message", m.Message))
		if s.sender != nil {
			if err := s.sender.SendEmail(ctx, params); err != nil {
				s.log.WarnContext(ctx, "failed to record contact message", logger.Error(err))
			}
		}
		return DeliveryLogged, nil
	}

	if err := s.sender.SendEmail(ctx, params); err != nil {
		s.log.ErrorContext(ctx, "failed to send contact message", logger.Email(m.Email), logger.Error(err))
		return "", errors.Join(ErrDeliveryFailed, err)
	}
	s.log.InfoContext(ctx, "contact message sent", logger.Email(m.Email))
	return DeliverySent, nil
}

var bodyTemplate = template.Must(template.New("contact").Parse(`<h3>Nuevo mensaje de contacto</h3>
<p><strong>Nombre:</strong> {{.Name}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Mensaje:</strong></p>
<p>{{.Message}}</p>
`))

func render(m Message) (string, error) {
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, m); err != nil {
		return "", err
	}
	return buf.String(), nil
}
