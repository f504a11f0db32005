package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopnest-api/internal/domain"
)

// statusFor maps domain sentinels to HTTP status codes. Order matters only
// for errors that wrap more than one sentinel.
var statusFor = []struct {
	err    error
	status int
}{
	{domain.ErrCodeNotFound, http.StatusBadRequest},
	{domain.ErrCodeExpired, http.StatusBadRequest},
	{domain.ErrCodeMismatch, http.StatusBadRequest},
	{domain.ErrDeliveryFailed, http.StatusServiceUnavailable},
	{domain.ErrBadRequest, http.StatusBadRequest},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrConflict, http.StatusConflict},
}

// httpError writes err as {success:false, message}. Domain errors keep their
// wrapping context as the message; anything else is logged and hidden
// behind a 500.
func httpError(w http.ResponseWriter, err error) {
	for _, m := range statusFor {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := err.Error()
		if m.err == domain.ErrDeliveryFailed {
			msg = m.err.Error()
		} else if trimmed := strings.TrimSuffix(msg, ": "+m.err.Error()); trimmed != "" {
			msg = trimmed
		}
		writeError(w, m.status, sentence(msg))
		return
	}
	slog.Error("request failed", "err", err)
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

// sentence upper-cases the first letter of msg.
func sentence(msg string) string {
	r, size := utf8.DecodeRuneInString(msg)
	if r == utf8.RuneError {
		return msg
	}
	return string(unicode.ToUpper(r)) + msg[size:]
}
