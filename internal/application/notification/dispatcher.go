package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopnest-api/internal/infrastructure/smtp"
	"github.com/shopnest-api/internal/infrastructure/sns"
	"github.com/shopnest-api/internal/pkg/metrics"
	"go.uber.org/multierr"
)

// ErrNoChannel is returned in Result.Err when a recipient has no address on
// any configured channel.
var ErrNoChannel = errors.New("no delivery channel available")

// Recipient is where a message goes. Phone is optional.
type Recipient struct {
	Email string
	Phone *string
}

// Message is a channel-agnostic notification. Email uses Subject and Body;
// SMS uses Body only.
type Message struct {
	Subject string
	Body    string
}

// Result reports per-channel delivery. Err aggregates every channel failure
// and is nil only when all attempted channels succeeded.
type Result struct {
	Email bool
	SMS   bool
	Err   error
}

// Any reports whether at least one channel delivered.
func (r Result) Any() bool { return r.Email || r.SMS }

// Dispatcher is the single outbound notification path.
type Dispatcher interface {
	Send(ctx context.Context, to Recipient, msg Message) Result
}

type dispatcher struct {
	mailer smtp.Mailer
	sms    sns.SMSSender
}

// NewDispatcher builds a Dispatcher. sms may be nil when SMS is disabled.
func NewDispatcher(mailer smtp.Mailer, sms sns.SMSSender) Dispatcher {
	return &dispatcher{mailer: mailer, sms: sms}
}

// Send attempts email whenever an address is present, then SMS when a phone
// is present and a sender is configured. One channel failing never stops the
// other.
func (d *dispatcher) Send(ctx context.Context, to Recipient, msg Message) Result {
	var res Result

	if d.mailer != nil && to.Email != "" {
		err := d.mailer.SendEmail(ctx, to.Email, msg.Subject, msg.Body)
		metrics.Deliveries.WithLabelValues("email", metrics.Result(err)).Inc()
		if err != nil {
			slog.Warn("email delivery failed", "to", to.Email, "err", err)
			res.Err = multierr.Append(res.Err, fmt.Errorf("email: %w", err))
		} else {
			res.Email = true
		}
	}

	if d.sms != nil && to.Phone != nil && *to.Phone != "" {
		err := d.sms.SendSMS(ctx, *to.Phone, msg.Body)
		metrics.Deliveries.WithLabelValues("sms", metrics.Result(err)).Inc()
		if err != nil {
			slog.Warn("sms delivery failed", "to", to.Email, "err", err)
			res.Err = multierr.Append(res.Err, fmt.Errorf("sms: %w", err))
		} else {
			res.SMS = true
		}
	}

	if !res.Any() && res.Err == nil {
		res.Err = ErrNoChannel
	}
	return res
}
