// Package email sends transactional mail through a provider-agnostic
// EmailSender.
//
// PostmarkClient delivers through Postmark. DevSender writes each message to
// a directory as an HTML file plus JSON metadata, for local runs where no
// provider is configured:
//
//	sender, err := email.NewPostmarkClient(cfg)
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   "team@example.com",
//		ReplyTo:  "visitor@example.com",
//		Subject:  "New contact message",
//		BodyHTML: html,
//		Tag:      "contact",
//	})
//
// Errors wrap ErrInvalidParams, ErrInvalidConfig or ErrFailedToSendEmail.
package email
