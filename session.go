package easyduplex

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"github.com/DarthPestilane/easyduplex/internal/queue"
	"github.com/DarthPestilane/easyduplex/internal/task"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"net"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the default size of the transport's read and write buffers.
const DefaultBufferSize = 4096

// SessionOption is the extra options for Session.
type SessionOption struct {
	// Name is used in logs, in String and in StateError messages.
	Name string

	// Logger overrides the package logger Log.
	Logger logrus.Ext1FieldLogger

	// Dial opens the connection for Connect. Defaults to Dial.
	Dial DialFunc

	// ReadBufferSize and WriteBufferSize size the transport buffers.
	// Default to DefaultBufferSize.
	ReadBufferSize  int
	WriteBufferSize int

	// OnRunstateChange is an event hook, invoked on every Runstate transition.
	// It is called with the session's internal lock held: it may call Runstate,
	// but must not call any other Session method.
	OnRunstateChange func(old, new Runstate)
}

// cycle is everything belonging to one connect/disconnect cycle.
type cycle[T any] struct {
	bh   *bottomHalf[T]
	join *task.Task
	dc   *task.Task
}

// Session manages one full-duplex connection speaking Protocol[T]:
// it connects, runs a reader and a writer loop concurrently,
// and tears everything down exactly once.
//
// Session's exported methods form the upper half: they only schedule and
// await the background work of the bottom half, never run it themselves.
// A Session is reusable across successive Connect/Disconnect cycles.
type Session[T any] struct {
	id    string
	name  string
	proto Protocol[T]
	opt   SessionOption
	log   logrus.Ext1FieldLogger

	state atomic.Int32 // Runstate, written with mu held

	mu      sync.Mutex
	changed chan struct{}
	cur     *cycle[T]
}

// NewSession creates an Idle Session running proto.
func NewSession[T any](proto Protocol[T], opt *SessionOption) *Session[T] {
	if opt == nil {
		opt = &SessionOption{}
	}
	o := *opt
	if o.Dial == nil {
		o.Dial = Dial
	}
	if o.Logger == nil {
		o.Logger = Log
	}
	id := uuid.NewString()
	log := o.Logger.WithField("scope", "session").WithField("sid", id)
	if o.Name != "" {
		log = log.WithField("name", o.Name)
	}
	return &Session[T]{
		id:      id,
		name:    o.Name,
		proto:   proto,
		opt:     o,
		log:     log,
		changed: make(chan struct{}),
	}
}

// ID returns the session's ID. It's a UUID.
func (s *Session[T]) ID() string {
	return s.id
}

// Name returns the session's name, possibly empty.
func (s *Session[T]) Name() string {
	return s.name
}

// Runstate returns the current lifecycle phase.
func (s *Session[T]) Runstate() Runstate {
	return Runstate(s.state.Load())
}

// RunstateChanged returns a channel which is closed on the next Runstate transition.
func (s *Session[T]) RunstateChanged() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *Session[T]) String() string {
	if s.name != "" {
		return fmt.Sprintf("<Session name=%q runstate=%s>", s.name, s.Runstate())
	}
	return fmt.Sprintf("<Session runstate=%s>", s.Runstate())
}

// Connect connects to addr, with TLS when tlsConfig is not nil, and starts the session.
//
// Connect is only valid in Idle, otherwise a *StateError is returned.
// On success the session is Running. On failure the session is back to Idle,
// and the error is a *ConnectError wrapping the root cause, unless it is
// ctx's cancellation or a fatal Error, which are returned as they are.
func (s *Session[T]) Connect(ctx context.Context, addr Address, tlsConfig *tls.Config) error {
	return s.newSession(ctx, func(ctx context.Context) (net.Conn, error) {
		return s.opt.Dial(ctx, addr, tlsConfig)
	})
}

// Accept listens on addr, accepts exactly one peer, then starts the session.
// The listener is closed once the peer is accepted. Errors are as for Connect.
func (s *Session[T]) Accept(ctx context.Context, addr Address, tlsConfig *tls.Config) error {
	return s.newSession(ctx, func(ctx context.Context) (net.Conn, error) {
		lis, err := Listen(ctx, addr)
		if err != nil {
			return nil, err
		}
		defer lis.Close() // nolint
		s.log.Debugf("awaiting connection on %s", addr)
		return AcceptConn(ctx, lis, tlsConfig)
	})
}

// Send puts msg to the outgoing queue. Messages are sent in the order they were put.
// Returns ErrSessionNotRunning unless the session's loops are running.
func (s *Session[T]) Send(msg T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.Runstate()
	if (state != Running && state != Connecting) || s.cur == nil || s.cur.join == nil {
		return ErrSessionNotRunning
	}
	s.cur.bh.outgoing.Put(msg)
	return nil
}

// Disconnect tears the session down and waits until it's done.
//
// It's valid in any Runstate and idempotent: concurrent callers observe the
// same teardown and get the same result. The returned error is the first
// failure of the reader or writer loop, if any (a *Fault).
// The session is always Idle when Disconnect returns.
//
// If ctx is done before the teardown completed, the teardown is forced
// (pending output is dropped), and ctx.Err() is returned once it completed.
func (s *Session[T]) Disconnect(ctx context.Context) error {
	c := s.scheduleDisconnect(nil)
	return s.waitDisconnect(ctx, c)
}

func (s *Session[T]) subject() string {
	if s.name != "" {
		return s.name
	}
	return "Session"
}

// setState must be called with mu held.
func (s *Session[T]) setState(state Runstate) {
	old := s.Runstate()
	if old == state {
		return
	}
	s.log.Tracef("runstate changed: %s -> %s", old, state)
	s.state.Store(int32(state))
	close(s.changed)
	s.changed = make(chan struct{})
	if s.opt.OnRunstateChange != nil {
		s.opt.OnRunstateChange(old, state)
	}
}

// begin moves an Idle session to Connecting and opens a new cycle.
func (s *Session[T]) begin() (*cycle[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch state := s.Runstate(); state {
	case Idle:
	case Connecting:
		return nil, &StateError{Message: fmt.Sprintf("%s is currently connecting.", s.subject()), State: state, Required: Idle}
	case Running:
		return nil, &StateError{Message: fmt.Sprintf("%s is already connected and running.", s.subject()), State: state, Required: Idle}
	default:
		return nil, &StateError{
			Message:  fmt.Sprintf("%s is disconnecting. Call Disconnect() to return to IDLE state.", s.subject()),
			State:    state,
			Required: Idle,
		}
	}
	c := &cycle[T]{bh: &bottomHalf[T]{proto: s.proto, log: s.log}}
	c.bh.schedule = func() { s.scheduleDisconnect(c) }
	s.cur = c
	s.setState(Connecting)
	return c, nil
}

func (s *Session[T]) newSession(ctx context.Context, open func(context.Context) (net.Conn, error)) (err error) {
	c, err := s.begin()
	if err != nil {
		return err
	}

	phase := "connection"
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
		if err == nil {
			return
		}
		emsg := fmt.Sprintf("Failed to establish %s", phase)
		s.log.Errorf("%s: %s", emsg, err)
		if dcErr := s.abort(c); dcErr != nil {
			s.log.Debugf("disconnect after failed %s: %s", phase, dcErr)
			if errors.Is(err, ErrInterrupted) {
				err = dcErr // a loop failed while negotiating
			}
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}
		if isCancellation(err) || isFatal(err) {
			return
		}
		err = &ConnectError{Message: emsg, Err: err}
	}()

	conn, err := open(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.cur != c || c.dc != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return ErrInterrupted
	}
	c.bh.t = newTransport(conn, s.opt.ReadBufferSize, s.opt.WriteBufferSize)
	s.mu.Unlock()
	s.log.Debugf("connected to %s", conn.RemoteAddr())

	phase = "session"
	return s.establishSession(ctx, c)
}

// establishSession runs the protocol's negotiation, if any, around startLoops.
func (s *Session[T]) establishSession(ctx context.Context, c *cycle[T]) error {
	started := false
	start := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !started {
			started = true
			s.startLoops(c)
		}
	}

	stop := c.bh.t.interruptOn(ctx)
	if est, ok := s.proto.(SessionEstablisher); ok {
		if err := est.EstablishSession(ctx, c.bh.t, start); err != nil {
			stop()
			return err
		}
	}
	if !stop() {
		return ctx.Err() // the transport has been interrupted
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != c || c.dc != nil {
		return ErrInterrupted
	}
	if !started {
		started = true
		s.startLoops(c)
	}
	s.setState(Running)
	return nil
}

// startLoops spawns the reader and writer loops, and the join task over them.
// It must be called with mu held.
func (s *Session[T]) startLoops(c *cycle[T]) {
	if c.dc != nil {
		return // torn down while negotiating
	}
	b := c.bh
	b.outgoing = queue.New[T]()
	b.reader = task.Spawn(b.runReader)
	b.writer = task.Spawn(b.runWriter)
	c.join = task.Gather(b.reader, b.writer)
	s.log.Tracef("reader and writer loops started")
}

// scheduleDisconnect creates the disconnect task of the current cycle,
// unless it exists already. It is called both by the upper half and by
// a failing loop; c is the caller's cycle, nil meaning "whatever is current".
// Returns nil if c is not current anymore.
func (s *Session[T]) scheduleDisconnect(c *cycle[T]) *cycle[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c != nil && c != s.cur {
		return nil // that cycle is over already
	}
	if s.cur == nil {
		s.cur = &cycle[T]{bh: &bottomHalf[T]{proto: s.proto, log: s.log}}
	}
	cur := s.cur
	if cur.dc == nil {
		s.setState(Disconnecting)
		cur.dc = task.Spawn(cur.bh.disconnect)
	}
	return cur
}

// abort tears down the cycle c after a failed connect.
// If someone else is tearing it down already, it only waits for that.
func (s *Session[T]) abort(c *cycle[T]) error {
	if cur := s.scheduleDisconnect(c); cur != nil {
		return s.waitDisconnect(context.Background(), cur)
	}
	s.mu.Lock()
	dc := c.dc
	s.mu.Unlock()
	if dc != nil {
		<-dc.Done()
	}
	return nil
}

// waitDisconnect waits for c's disconnect task, then surfaces the first
// loop failure. The cycle is cleaned up on every path.
func (s *Session[T]) waitDisconnect(ctx context.Context, c *cycle[T]) error {
	defer s.cleanup(c)

	var interrupted error
	select {
	case <-c.dc.Done():
	case <-ctx.Done():
		interrupted = ctx.Err()
		s.log.Warnf("disconnect interrupted, forcing teardown: %s", interrupted)
		c.dc.Cancel()
		<-c.dc.Done()
	}

	var joinErr error
	if c.join != nil {
		joinErr = c.join.Wait(context.Background()) // both loops are done by now
	}
	// a loop fault is the cause of anything the teardown itself ran into.
	switch {
	case interrupted != nil:
		return interrupted
	case joinErr != nil:
		return joinErr
	default:
		return c.dc.Err()
	}
}

// cleanup retires c's task handles and transport, and returns to Idle.
// It runs once per cycle: later callers find c is no longer current.
func (s *Session[T]) cleanup(c *cycle[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != c {
		return
	}
	retire(c.dc)
	retire(c.bh.reader)
	retire(c.bh.writer)
	retire(c.join)
	s.cur = nil
	s.setState(Idle)
}

// retire asserts that t is done before its handle is dropped.
func retire(t *task.Task) {
	if t != nil && !t.IsDone() {
		panic("easyduplex: retiring a task which is still running")
	}
}
