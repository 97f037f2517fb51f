package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"

	"github.com/talewise/storyteller/pkg/binder"
	"github.com/talewise/storyteller/pkg/i18n"
	"github.com/talewise/storyteller/pkg/logger"
	"github.com/talewise/storyteller/pkg/requestid"
	"github.com/talewise/storyteller/pkg/validator"
)

const validationKey = "errors.validation"

// errorInfo is a classified error, ready to render.
type errorInfo struct {
	status  int
	key     string
	args    []string
	details map[string][]string
	extra   map[string]any
	locale  string
}

// classifyError maps err to a status and message key. An HTTPError joined
// to another error takes precedence over it.
func classifyError(err error) errorInfo {
	var (
		httpErr HTTPError
		ve      validator.ValidationErrors
		mbe     *http.MaxBytesError
	)
	switch {
	case errors.As(err, &httpErr):
		return fromHTTPError(httpErr)
	case errors.As(err, &ve):
		return errorInfo{status: http.StatusBadRequest, key: validationKey}
	case errors.As(err, &mbe), errors.Is(err, binder.ErrBodyTooLarge):
		return fromHTTPError(ErrRequestTooLarge)
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return fromHTTPError(ErrUnsupportedMediaType)
	case binder.IsBindError(err):
		return fromHTTPError(ErrBadRequest)
	}
	return fromHTTPError(ErrInternal)
}

func fromHTTPError(e HTTPError) errorInfo {
	status := e.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	return errorInfo{status: status, key: e.Key, args: e.Args, extra: e.Extra, locale: e.Locale}
}

func logError(log *slog.Logger, ctx Context, err error, info errorInfo) {
	r := ctx.Request()
	level := slog.LevelWarn
	if info.status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	log.LogAttrs(r.Context(), level, "request error",
		logger.RequestID(requestid.FromContext(r.Context())),
		logger.Error(err),
		slog.Int("status_code", info.status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}

// NewErrorHandler returns the JSON error handler of the API. Messages are
// translated into the request locale set by i18n.Middleware. A nil
// translator uses the embedded catalogue.
func NewErrorHandler(log *slog.Logger, tr *i18n.Translator) ErrorHandler[Context] {
	if log == nil {
		log = logger.Discard()
	}
	if tr == nil {
		tr = i18n.MustDefault()
	}
	log = log.With(logger.Component("error_handler"))

	return func(ctx Context, err error) {
		info := classifyError(err)
		logError(log, ctx, err, info)

		lang := info.locale
		if lang == "" {
			lang = i18n.GetLocale(ctx)
		}
		msg := tr.T(lang, info.key, info.args...)

		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			info.details = translateValidation(tr, lang, ve)
			if info.key == validationKey {
				msg = info.details[ve[0].Field][0]
			}
		}

		body := make(map[string]any, 4+len(info.extra))
		maps.Copy(body, info.extra)
		body["error"] = msg
		body["message"] = msg
		body["code"] = info.key
		if len(info.details) > 0 {
			body["details"] = info.details
		}

		if err := JSON(body, WithJSONStatus(info.status)).Render(ctx.ResponseWriter(), ctx.Request()); err != nil {
			log.ErrorContext(ctx, "failed to render error response", logger.Error(err))
		}
	}
}

func translateValidation(tr *i18n.Translator, lang string, ve validator.ValidationErrors) map[string][]string {
	out := make(map[string][]string, len(ve))
	for _, e := range ve {
		msg := e.Message
		if e.TranslationKey != "" && tr.Has(tr.Match(lang), e.TranslationKey) {
			args := make([]string, 0, 2*len(e.TranslationValues))
			for k, v := range e.TranslationValues {
				args = append(args, k, fmt.Sprint(v))
			}
			msg = tr.T(lang, e.TranslationKey, args...)
		}
		out[e.Field] = append(out[e.Field], msg)
	}
	return out
}
