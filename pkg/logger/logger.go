// Package logger builds slog loggers with per-environment defaults and
// request-scoped attributes pulled from the context.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/talewise/storyteller/pkg/environment"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

type Option func(*options)

type options struct {
	level      slog.Level
	format     Format
	output     io.Writer
	attrs      []slog.Attr
	extractors []ContextExtractor
	addSource  bool
}

func WithLevel(l slog.Level) Option {
	return func(o *options) { o.level = l }
}

// WithFormat panics on an unknown format so misconfiguration stops startup.
func WithFormat(f Format) Option {
	return func(o *options) {
		if f != FormatJSON && f != FormatText {
			panic(fmt.Errorf("logger: invalid format %q", f))
		}
		o.format = f
	}
}

func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

func WithAttr(attrs ...slog.Attr) Option {
	return func(o *options) { o.attrs = append(o.attrs, attrs...) }
}

func WithSource() Option {
	return func(o *options) { o.addSource = true }
}

// WithContextExtractors registers extractors evaluated on every record.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(o *options) {
		for _, ex := range extractors {
			if ex != nil {
				o.extractors = append(o.extractors, ex)
			}
		}
	}
}

// WithEnvironment applies per-environment defaults: text at debug level for
// development, JSON at info level elsewhere. Both tag records with service and env.
func WithEnvironment(env environment.Environment, service string) Option {
	return func(o *options) {
		if env.IsProduction() || env == environment.Staging {
			o.level = slog.LevelInfo
			o.format = FormatJSON
		} else {
			o.level = slog.LevelDebug
			o.format = FormatText
		}
		if service != "" {
			o.attrs = append(o.attrs, slog.String("service", service))
		}
		o.attrs = append(o.attrs, slog.String("env", env.String()))
	}
}

// New builds a slog.Logger. Defaults are JSON at info level on stdout.
func New(opts ...Option) *slog.Logger {
	o := &options{level: slog.LevelInfo, format: FormatJSON, output: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	hopts := &slog.HandlerOptions{Level: o.level, AddSource: o.addSource}
	var h slog.Handler
	if o.format == FormatText {
		h = slog.NewTextHandler(o.output, hopts)
	} else {
		h = slog.NewJSONHandler(o.output, hopts)
	}
	if len(o.attrs) > 0 {
		h = h.WithAttrs(o.attrs)
	}
	return slog.New(NewContextHandler(h, o.extractors...))
}

// Discard returns a logger that drops everything. Services use it when no
// logger option is given.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
