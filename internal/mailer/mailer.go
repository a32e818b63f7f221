// Package mailer renders email jobs and delivers them. The queue worker is
// the only caller; the auth service never touches this package.
package mailer

import (
	"context"
	"fmt"

	"github.com/rooftopdev/accountd/internal/mailqueue"
)

// Sender delivers one rendered email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a rendered, ready-to-deliver email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
	// Tag groups deliveries by job kind in the provider dashboard.
	Tag string
}

// Render turns a queued job into a deliverable message.
func Render(job mailqueue.Job) (Message, error) {
	msg := Message{To: job.To, Tag: string(job.Kind)}

	switch job.Kind {
	case mailqueue.KindUserRegistration:
		msg.Subject = "Activate your account"
		msg.TextBody = fmt.Sprintf(
			"Hi %s,\n\nWelcome! Activate your account within the next hour:\n\n%s\n",
			job.FirstName, job.Link)
		msg.HTMLBody = fmt.Sprintf(
			`<p>Hi %s,</p><p>Welcome! <a href="%s">Activate your account</a> within the next hour.</p>`,
			job.FirstName, job.Link)

	case mailqueue.KindForgotPassword:
		msg.Subject = "Reset your password"
		msg.TextBody = fmt.Sprintf(
			"Hi %s,\n\nA password reset was requested for your account. The link below expires in one hour:\n\n%s\n\nIf this wasn't you, you can ignore this email.\n",
			job.FirstName, job.Link)
		msg.HTMLBody = fmt.Sprintf(
			`<p>Hi %s,</p><p>A password reset was requested for your account. <a href="%s">Reset your password</a> within the next hour.</p><p>If this wasn't you, you can ignore this email.</p>`,
			job.FirstName, job.Link)

	case mailqueue.KindResetPasswordSuccess:
		msg.Subject = "Your password was changed"
		msg.TextBody = fmt.Sprintf(
			"Hi %s,\n\nYour password was just changed and all open sessions were signed out. If this wasn't you, reset your password immediately.\n",
			job.FirstName)
		msg.HTMLBody = fmt.Sprintf(
			`<p>Hi %s,</p><p>Your password was just changed and all open sessions were signed out. If this wasn't you, reset your password immediately.</p>`,
			job.FirstName)

	default:
		return Message{}, fmt.Errorf("unknown email kind %q", job.Kind)
	}
	return msg, nil
}
