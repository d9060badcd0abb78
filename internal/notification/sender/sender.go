// Package sender contains the per-channel delivery adapters the worker
// dispatches to. Adapters never panic across the boundary and never return
// Go errors: every outcome is folded into a Result so one channel's failure
// cannot abort a sweep.
package sender

import (
	"context"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
)

// Result is the outcome of one delivery attempt.
type Result struct {
	Success bool
	Error   string
	// Permanent marks failures that retrying cannot fix (malformed
	// payload, expired push subscription). The worker fails such jobs
	// immediately instead of backing off.
	Permanent bool
}

// Succeeded returns a successful Result.
func Succeeded() Result {
	return Result{Success: true}
}

// Failed returns a transient failure Result.
func Failed(err error) Result {
	return Result{Error: err.Error()}
}

// FailedPermanently returns a failure Result that must not be retried.
func FailedPermanently(err error) Result {
	return Result{Error: err.Error(), Permanent: true}
}

// Sender delivers a notification over one channel.
type Sender interface {
	Channel() domain.Channel
	Deliver(ctx context.Context, job *domain.Job) Result
}

// Registry maps channels to their senders.
type Registry struct {
	senders map[domain.Channel]Sender
}

// NewRegistry builds a registry from the given senders. A later sender for
// the same channel replaces an earlier one.
func NewRegistry(senders ...Sender) *Registry {
	r := &Registry{senders: make(map[domain.Channel]Sender)}
	for _, s := range senders {
		r.senders[s.Channel()] = s
	}
	return r
}

// For returns the sender registered for a channel.
func (r *Registry) For(channel domain.Channel) (Sender, bool) {
	s, ok := r.senders[channel]
	return s, ok
}

// Channels lists the channels with a registered sender.
func (r *Registry) Channels() []domain.Channel {
	channels := make([]domain.Channel, 0, len(r.senders))
	for ch := range r.senders {
		channels = append(channels, ch)
	}
	return channels
}
