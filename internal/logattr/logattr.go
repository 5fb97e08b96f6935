// Package logattr holds the slog attribute helpers shared by the daemon and
// the HTTP layer. Helpers return an empty Attr for zero input, which slog
// drops, so call sites need no nil checks.
package logattr

import (
	"log/slog"
	"time"
)

func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

func Method(method string) slog.Attr {
	return slog.String("method", method)
}

func Path(path string) slog.Attr {
	return slog.String("path", path)
}

func Status(code int) slog.Attr {
	return slog.Int("status", code)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}
