package easyduplex

import (
	"context"
)

// Protocol gives a meaning to the bytes flowing over a Session's Transport.
// T is the message type of the protocol.
type Protocol[T any] interface {
	// Recv blocks until one message has been read from t.
	// It should return a *StreamError on I/O failure or unexpected end of stream.
	Recv(ctx context.Context, t *Transport) (T, error)

	// Send writes msg to t. The session flushes t whenever the
	// outgoing queue becomes empty, so Send need not flush itself.
	// It should return a *StreamError on I/O failure.
	Send(ctx context.Context, t *Transport, msg T) error

	// OnMessage is called for every received message, in arrival order,
	// from inside the reader loop.
	// It must not wait on the session's loops, nor call Disconnect: doing so deadlocks.
	// A returned error terminates the session.
	OnMessage(ctx context.Context, msg T) error
}

// SessionEstablisher is implemented by protocols which negotiate
// before and/or after the reader and writer loops start.
//
// EstablishSession may use t directly until it calls start, which spawns the loops.
// If start is never called, the loops are started after EstablishSession returns nil.
// Any returned error fails the Connect or Accept call.
type SessionEstablisher interface {
	EstablishSession(ctx context.Context, t *Transport, start func()) error
}

// NopHandler implements a no-op OnMessage. Embed it to ignore inbound messages.
type NopHandler[T any] struct{}

// OnMessage does nothing.
func (NopHandler[T]) OnMessage(context.Context, T) error {
	return nil
}
