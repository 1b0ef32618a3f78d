package easyduplex

import (
	"context"
	"errors"
	"github.com/DarthPestilane/easyduplex/internal/queue"
	"github.com/DarthPestilane/easyduplex/internal/task"
	"github.com/sirupsen/logrus"
	"sync/atomic"
)

// bottomHalf is the part of a session which runs in background goroutines:
// the reader loop, the writer loop and the disconnect task.
// It handles its own faults, and talks to the upper half only through schedule.
type bottomHalf[T any] struct {
	proto    Protocol[T]
	log      logrus.Ext1FieldLogger
	t        *Transport
	outgoing *queue.Queue[T]
	reader   *task.Task
	writer   *task.Task
	failed   atomic.Bool

	// schedule asks the upper half for a disconnect. Idempotent.
	schedule func()
}

// loopForever runs unit until it fails or ctx is cancelled.
// Cancellation is a clean exit. Any other failure schedules a disconnect
// and is returned as a *Fault tagged with origin.
func (b *bottomHalf[T]) loopForever(ctx context.Context, origin Origin, unit func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		} else if err == nil || ctx.Err() != nil {
			b.log.Tracef("%s loop stopped", origin)
			err = nil
			return
		}
		b.log.Errorf("%s loop failed: %s", origin, err)
		b.failed.Store(true)
		b.schedule()
		err = &Fault{Origin: origin, Err: err}
	}()
	for {
		if err := unit(ctx); err != nil {
			return err
		}
	}
}

func (b *bottomHalf[T]) runReader(ctx context.Context) error {
	stop := b.t.interruptReadOn(ctx)
	defer stop()
	return b.loopForever(ctx, OriginReader, b.recvMessage)
}

func (b *bottomHalf[T]) runWriter(ctx context.Context) error {
	stop := b.t.interruptWriteOn(ctx)
	defer stop()
	return b.loopForever(ctx, OriginWriter, b.sendMessage)
}

// recvMessage receives one message and dispatches it to OnMessage.
func (b *bottomHalf[T]) recvMessage(ctx context.Context) error {
	msg, err := b.proto.Recv(ctx, b.t)
	if err != nil {
		return err
	}
	b.log.Debugf("<-- %v", msg)
	return b.proto.OnMessage(ctx, msg)
}

// sendMessage waits for one outgoing message and sends it.
// The message is acknowledged whether or not sending succeeded.
func (b *bottomHalf[T]) sendMessage(ctx context.Context) error {
	msg, err := b.outgoing.Get(ctx)
	if err != nil {
		return err
	}
	defer b.outgoing.Done()

	b.log.Debugf("--> %v", msg)
	if err := b.proto.Send(ctx, b.t, msg); err != nil {
		return err
	}
	if b.outgoing.Len() == 0 {
		if err := b.t.Flush(); err != nil {
			return &StreamError{Op: "flush", Err: err}
		}
	}
	return nil
}

// disconnect tears the cycle down: writer, reader, then transport.
// Cancelling ctx turns a graceful teardown into a forced one.
func (b *bottomHalf[T]) disconnect(ctx context.Context) error {
	forced := b.failed.Load() || isDone(b.reader) || isDone(b.writer)

	drained := b.stopWriter(ctx, forced)
	b.stopReader()

	if b.t == nil {
		return nil
	}
	// closing the output side closes the input side too.
	// after a forced stop the write deadline is in the past, so unflushed output is dropped.
	if drained {
		b.t.Close()
	} else {
		b.t.Abort()
	}
	err := b.t.WaitClosed()
	if err == nil {
		return nil
	}
	for _, tk := range []*task.Task{b.reader, b.writer} {
		var f *Fault
		if tk != nil && errors.As(tk.Err(), &f) && f.sameCause(err) {
			b.log.Tracef("transport close error already reported by %s loop: %s", f.Origin, err)
			return nil
		}
	}
	return &Fault{Origin: OriginTransport, Err: err}
}

// stopWriter stops the writer loop, after draining the outgoing queue unless force.
// It reports whether every queued message has been flushed.
func (b *bottomHalf[T]) stopWriter(ctx context.Context, force bool) (drained bool) {
	if b.writer == nil {
		return true // no loop ever wrote to the transport
	}
	if !b.writer.IsDone() && !force {
		drained = b.drain(ctx)
	}
	b.writer.Cancel()
	<-b.writer.Done() // its error is collected by the join task
	return drained
}

// drain waits for the outgoing queue to be fully sent, then flushes the transport.
// It gives up when ctx is done or the writer stops, and reports whether it succeeded.
func (b *bottomHalf[T]) drain(ctx context.Context) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.writer.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := b.outgoing.Join(ctx); err != nil {
		b.log.Debugf("outgoing queue not drained: %s", err)
		return false
	}
	stop := b.t.interruptWriteOn(ctx)
	defer stop()
	if err := b.t.Flush(); err != nil {
		b.log.Debugf("flush before disconnect failed: %s", err)
		return false
	}
	return true
}

func (b *bottomHalf[T]) stopReader() {
	if b.reader == nil || b.reader.IsDone() {
		return
	}
	b.reader.Cancel()
	<-b.reader.Done() // its error is collected by the join task
}

func isDone(t *task.Task) bool {
	return t != nil && t.IsDone()
}
