package logger

import (
	"log/slog"
	"time"
)

// Error returns an empty Attr for a nil error, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

func Email(email string) slog.Attr { return slog.String("email", email) }

func StoryID(id any) slog.Attr { return slog.Any("story_id", id) }

func RequestID(id string) slog.Attr { return slog.String("request_id", id) }

func EventID(id string) slog.Attr { return slog.String("event_id", id) }

func EventType(kind string) slog.Attr { return slog.String("event_type", kind) }

func Provider(name string) slog.Attr { return slog.String("provider", name) }

func Component(name string) slog.Attr { return slog.String("component", name) }

func Duration(d time.Duration) slog.Attr { return slog.Duration("duration", d) }

func Attempt(n int) slog.Attr { return slog.Int("attempt", n) }
