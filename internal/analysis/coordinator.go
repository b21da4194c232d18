package analysis

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout fails a session that is still active after d. Zero disables
// the timeout, which is the default: a silent channel leaves the session in
// Connecting or Analyzing until the caller resubmits or cancels.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithIDs overrides the session ID source (uuid by default).
func WithIDs(next func() string) Option {
	return func(c *Coordinator) { c.newID = next }
}

// generation is everything owned by one submit: the session, its channel and
// the context of its in-flight request.
type generation struct {
	n        uint64
	session  *Session
	channel  Channel
	cancel   context.CancelFunc
	timer    *time.Timer
	teardown sync.Once
}

func (g *generation) close() {
	g.teardown.Do(func() {
		g.cancel()
		if g.timer != nil {
			g.timer.Stop()
		}
		g.channel.Unsubscribe()
		g.channel.Disconnect()
	})
}

// Coordinator is the single entry point for running analyses. It keeps
// exactly one current session, owns the channel of the current generation,
// and applies an event only when it carries the current generation.
type Coordinator struct {
	trigger    Trigger
	newChannel ChannelFactory
	log        *slog.Logger
	timeout    time.Duration
	newID      func() string
	now        func() time.Time

	mu      sync.Mutex
	gen     uint64
	current *generation
	session *Session
	closed  bool

	changed chan struct{}
	wg      sync.WaitGroup
}

func NewCoordinator(trigger Trigger, newChannel ChannelFactory, opts ...Option) *Coordinator {
	c := &Coordinator{
		trigger:    trigger,
		newChannel: newChannel,
		log:        slog.Default(),
		newID:      uuid.NewString,
		now:        time.Now,
		session:    idleSession(),
		changed:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "coordinator")
	return c
}

// RunAnalysis starts a session for subject, superseding the current one. It
// returns immediately; progress is observed through Snapshot and Changed.
func (c *Coordinator) RunAnalysis(subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return ErrEmptySubject
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	// The previous generation releases its channel before the next one is
	// created, so two generations never hold live subscriptions together.
	prev := c.current
	if prev != nil {
		prev.close()
	}
	c.gen++
	n := c.gen
	id := c.newID()
	ctx, cancel := context.WithCancel(context.Background())
	g := &generation{
		n:       n,
		session: newSession(n, id, subject, c.now()),
		channel: c.newChannel(id),
		cancel:  cancel,
	}
	if c.timeout > 0 {
		g.timer = time.AfterFunc(c.timeout, func() {
			c.settle(n, "timeout", func(s *Session) error {
				return s.fail(NewFault(TimeoutFault, "analysis timed out after "+c.timeout.String(), nil), c.now())
			})
		})
	}
	c.current = g
	c.session = g.session
	subErr := g.channel.Subscribe(c.handlers(n))
	if subErr != nil {
		g.session.fail(NewFault(ConnectionFault, "", subErr), c.now())
	} else {
		c.wg.Add(2)
	}
	c.mu.Unlock()

	if prev != nil {
		c.log.Info("superseded session", "generation", prev.n, "subject", prev.session.subject)
	}
	c.notify()
	if subErr != nil {
		c.log.Warn("channel subscribe failed", "generation", n, "err", subErr)
		g.close()
		return nil
	}
	c.log.Info("analysis started", "generation", n, "session", id, "subject", subject)

	go func() {
		defer c.wg.Done()
		g.channel.Connect(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.runTrigger(ctx, n, Request{SessionID: id, Subject: subject})
	}()
	return nil
}

func (c *Coordinator) runTrigger(ctx context.Context, n uint64, req Request) {
	report, err := c.trigger.Trigger(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// The generation was torn down under the request.
			c.log.Debug("trigger aborted", "generation", n, "err", err)
			return
		}
		f := classifyTriggerError(err)
		c.settle(n, "trigger failed", func(s *Session) error { return s.fail(f, c.now()) })
		return
	}
	c.settle(n, "trigger complete", func(s *Session) error { return s.complete(report, c.now()) })
}

func (c *Coordinator) handlers(n uint64) Handlers {
	return Handlers{
		OnOpen: func() {
			c.apply(n, "channel opened", false, func(s *Session) error { return s.opened() })
		},
		OnProgress: func(msg string) {
			c.apply(n, "progress", false, func(s *Session) error { return s.appendProgress(msg) })
		},
		OnComplete: func(result string) {
			c.settle(n, "channel complete", func(s *Session) error { return s.complete(result, c.now()) })
		},
		OnError: func(f *Fault) {
			c.settle(n, "channel error", func(s *Session) error { return s.fail(f, c.now()) })
		},
	}
}

// settle applies a terminal signal. The first terminal signal for a
// generation wins; later ones only make sure the channel is closed.
func (c *Coordinator) settle(n uint64, event string, fn func(*Session) error) error {
	return c.apply(n, event, true, fn)
}

func (c *Coordinator) apply(n uint64, event string, terminal bool, fn func(*Session) error) error {
	c.mu.Lock()
	g := c.current
	if g == nil || g.n != n {
		c.mu.Unlock()
		c.log.Debug("stale event discarded", "generation", n, "event", event)
		return ErrStaleEvent
	}
	err := fn(g.session)
	done := g.session.phase.IsTerminal()
	phase := g.session.phase
	c.mu.Unlock()

	if terminal && done {
		g.close()
	}
	if err != nil {
		c.log.Debug("event ignored", "generation", n, "event", event, "phase", phase.String(), "err", err)
		return err
	}
	if done {
		c.log.Info("analysis finished", "generation", n, "phase", phase.String())
	}
	c.notify()
	return nil
}

// Cancel fails the current session with a CanceledFault and tears down its
// channel. It reports false when there was no active session.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	g := c.current
	if g == nil || !g.session.phase.IsActive() {
		c.mu.Unlock()
		return false
	}
	n := g.n
	c.mu.Unlock()

	err := c.settle(n, "cancel", func(s *Session) error {
		return s.fail(NewFault(CanceledFault, "analysis cancelled", nil), c.now())
	})
	return err == nil
}

// Close tears down the current generation and waits for its goroutines.
// RunAnalysis fails with ErrCoordinatorClosed afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	g := c.current
	c.mu.Unlock()

	if g != nil {
		g.close()
	}
	c.wg.Wait()
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

// Progress returns a lazy view of the current session's progress log. The
// view stays bound to that session after it is superseded.
func (c *Coordinator) Progress() iter.Seq[string] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Progress().Notices()
}

// Changed delivers a coalesced signal whenever the snapshot may have changed.
func (c *Coordinator) Changed() <-chan struct{} {
	return c.changed
}

func (c *Coordinator) notify() {
	select {
	case c.changed <- struct{}{}:
	default:
	}
}

// IsStale reports whether err is the internal stale-event marker.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleEvent)
}
