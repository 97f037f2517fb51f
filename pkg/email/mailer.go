package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/talewise/storyteller/pkg/validator"
)

type EmailSender interface {
	SendEmail(ctx context.Context, params SendEmailParams) error
}

type SendEmailParams struct {
	SendTo   string `json:"send_to"`
	ReplyTo  string `json:"reply_to,omitempty"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	Tag      string `json:"tag,omitempty"`
}

// Validate requires a recipient, a subject and a body. ReplyTo is optional
// but must be an address when set.
func (p SendEmailParams) Validate() error {
	rules := []validator.Rule{
		validator.ValidEmail("SendTo", p.SendTo),
		validator.Required("Subject", p.Subject),
		validator.Required("BodyHTML", p.BodyHTML),
	}
	if strings.TrimSpace(p.ReplyTo) != "" {
		rules = append(rules, validator.ValidEmail("ReplyTo", p.ReplyTo))
	}
	if err := validator.Apply(rules...); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}
