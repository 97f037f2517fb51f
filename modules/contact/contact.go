// Package contact serves the public contact form at /api/contact.
package contact

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/talewise/storyteller/handler"
	"github.com/talewise/storyteller/pkg/binder"
	"github.com/talewise/storyteller/pkg/i18n"
	"github.com/talewise/storyteller/pkg/validator"
	contactsvc "github.com/talewise/storyteller/svc/contact"
)

type Submitter interface {
	Submit(ctx context.Context, m contactsvc.Message) (contactsvc.Delivery, error)
}

type Module struct {
	svc Submitter
	tr  *i18n.Translator
	eh  handler.ErrorHandler[handler.Context]
}

func New(svc Submitter, tr *i18n.Translator, eh handler.ErrorHandler[handler.Context]) *Module {
	return &Module{svc: svc, tr: tr, eh: eh}
}

func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/", handler.Handle(m.submit, m.eh, binder.JSON(binder.WithUnknownFields())))
	return r
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (m *Module) submit(ctx handler.Context, req contactsvc.Message) handler.Response {
	delivery, err := m.svc.Submit(ctx, req)
	if err != nil {
		return handler.Error(contactError(err))
	}
	key := "contact.sent"
	if delivery == contactsvc.DeliveryLogged {
		key = "contact.received_dev"
	}
	return handler.JSON(response{Success: true, Message: m.tr.Tc(ctx, key)})
}

// contactError reports missing fields with the form's single message and
// keeps the per-field details of other validation failures.
func contactError(err error) error {
	if ve := validator.ExtractValidationErrors(err); ve != nil {
		for _, e := range ve {
			if e.TranslationKey == "validation.required" {
				return errors.Join(err, handler.NewHTTPError(http.StatusBadRequest, "contact.fields_required").
					With("success", false))
			}
		}
		return err
	}
	e := handler.NewHTTPError(http.StatusInternalServerError, "contact.failed").With("success", false)
	return errors.Join(err, e)
}
