// Package mailqueue is the redis-backed email dispatch queue. Producers
// enqueue Job values; a worker pool drains them and hands each one to a
// mailer. Delivery is at-least-once with a bounded retry budget.
package mailqueue

import "github.com/google/uuid"

// JobKind selects the email template a job renders to.
type JobKind string

const (
	KindUserRegistration     JobKind = "USER_REGISTRATION"
	KindForgotPassword       JobKind = "FORGOT_PASSWORD"
	KindResetPasswordSuccess JobKind = "RESET_PASSWORD_SUCCESS"
)

// Job is one pending email. The auth service produces jobs as plain values
// and never touches the mailer; whoever owns the queue decides when and how
// they are delivered.
type Job struct {
	ID        string  `json:"id"`
	Kind      JobKind `json:"kind"`
	To        string  `json:"to"`
	FirstName string  `json:"firstName"`
	// Link is the full frontend URL embedded in the email body; empty for
	// kinds that carry no call to action.
	Link string `json:"link,omitempty"`
	// Attempts counts delivery tries already made for this job.
	Attempts int `json:"attempts"`
}

// NewJob assigns a fresh id so retries of the same job stay correlated in
// the logs.
func NewJob(kind JobKind, to, firstName, link string) Job {
	return Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		To:        to,
		FirstName: firstName,
		Link:      link,
	}
}
