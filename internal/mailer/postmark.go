package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
	"github.com/rs/zerolog"
)

// ErrSendFailed wraps any provider-side delivery failure.
var ErrSendFailed = errors.New("email delivery failed")

// Postmark delivers messages through the Postmark transactional API.
type Postmark struct {
	client *postmark.Client
	from   string
}

// NewPostmark builds a Postmark sender. Both tokens and the sender address
// are required; a half-configured mailer should fail at startup, not at the
// first signup.
func NewPostmark(serverToken, accountToken, from string) (*Postmark, error) {
	if serverToken == "" || accountToken == "" {
		return nil, errors.New("postmark tokens are required")
	}
	if from == "" {
		return nil, errors.New("sender email is required")
	}
	return &Postmark{
		client: postmark.NewClient(serverToken, accountToken),
		from:   from,
	}, nil
}

func (p *Postmark) Send(ctx context.Context, msg Message) error {
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       msg.To,
		Subject:  msg.Subject,
		Tag:      msg.Tag,
		TextBody: msg.TextBody,
		HTMLBody: msg.HTMLBody,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return fmt.Errorf("%w: postmark %d %s", ErrSendFailed, resp.ErrorCode, resp.Message)
	}
	return nil
}

// LogSender is the development stand-in: it logs instead of delivering.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("tag", msg.Tag).
		Msg("email (not sent, development mode)")
	return nil
}
