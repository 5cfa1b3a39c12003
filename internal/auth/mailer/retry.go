package mailer

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/sessionauth/pkg/slogx"
	"github.com/sethvargo/go-retry"
)

// Retrying retries failed sends with exponential backoff.
type Retrying struct {
	Next        Sender
	MaxRetries  uint64        // retries after the first attempt
	BaseDelay   time.Duration // first backoff
	MaxDelay    time.Duration // backoff cap
	SendTimeout time.Duration // per attempt; zero means none
}

// NewRetrying returns a Retrying with three retries starting at 500ms.
func NewRetrying(next Sender) *Retrying {
	return &Retrying{
		Next:        next,
		MaxRetries:  3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		SendTimeout: 15 * time.Second,
	}
}

func (r *Retrying) Send(ctx context.Context, msg Message) error {
	base := r.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	b := retry.NewExponential(base)
	if r.MaxDelay > 0 {
		b = retry.WithCappedDuration(r.MaxDelay, b)
	}
	b = retry.WithMaxRetries(r.MaxRetries, b)

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := r.sendOnce(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return err
		}
		slogx.FromContext(ctx).Warn("email send failed", "kind", msg.Kind, "attempt", attempt, "err", err)
		return retry.RetryableError(err)
	})
}

func (r *Retrying) sendOnce(ctx context.Context, msg Message) error {
	if r.SendTimeout <= 0 {
		return r.Next.Send(ctx, msg)
	}
	ctx, cancel := context.WithTimeout(ctx, r.SendTimeout)
	defer cancel()
	return r.Next.Send(ctx, msg)
}
