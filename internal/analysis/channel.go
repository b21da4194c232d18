package analysis

import "context"

// Handlers is the observer set registered on a Channel. Callbacks run on the
// channel's delivery goroutine, one at a time, in arrival order.
type Handlers struct {
	OnOpen     func()
	OnProgress func(msg string)
	OnComplete func(result string)
	OnError    func(f *Fault)
}

// Channel is the event channel to the analysis service for one session.
//
// A Channel delivers zero or more progress events followed by exactly one
// terminal event (complete or error); nothing is delivered after that, even
// if the transport still holds buffered data. A failed Connect surfaces as a
// single OnError carrying a ConnectionFault. Connect never retries.
type Channel interface {
	// Connect establishes the channel. It is a no-op when already connected.
	Connect(ctx context.Context)
	// Subscribe registers the single observer set. A second Subscribe without
	// an Unsubscribe in between returns ErrAlreadySubscribed.
	Subscribe(h Handlers) error
	Unsubscribe()
	// Disconnect releases the channel. It is idempotent, safe from any phase
	// and from inside a handler, and does not wait for delivery to drain.
	Disconnect()
}

// ChannelFactory opens a Channel bound to one session ID.
type ChannelFactory func(sessionID string) Channel

// Request is the triggering request for one session.
type Request struct {
	SessionID string
	Subject   string
}

// Trigger issues the triggering request and blocks until it settles. A
// non-success response must be reported as a *StatusError.
type Trigger interface {
	Trigger(ctx context.Context, req Request) (report string, err error)
}
