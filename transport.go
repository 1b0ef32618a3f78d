package easyduplex

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Address is a stream socket address: a TCP host:port, or a unix socket path.
type Address struct {
	Network string // "tcp" or "unix"
	Addr    string
}

// TCPAddress returns the Address of a TCP host and port.
func TCPAddress(host string, port int) Address {
	return Address{Network: "tcp", Addr: net.JoinHostPort(host, strconv.Itoa(port))}
}

// UnixAddress returns the Address of a unix socket path.
func UnixAddress(path string) Address {
	return Address{Network: "unix", Addr: path}
}

// ParseAddress parses s as "unix:/path/to/socket", a bare socket path
// (anything containing a slash), or a TCP "host:port".
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Address{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	case strings.HasPrefix(s, "unix:"):
		return UnixAddress(strings.TrimPrefix(s, "unix:")), nil
	case strings.Contains(s, "/"):
		return UnixAddress(s), nil
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return Address{}, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	return Address{Network: "tcp", Addr: s}, nil
}

func (a Address) String() string {
	if a.Network == "unix" {
		return "unix:" + a.Addr
	}
	return a.Addr
}

func (a Address) validate() error {
	if a.Network != "tcp" && a.Network != "unix" {
		return fmt.Errorf("%w: unsupported network %q", ErrInvalidAddress, a.Network)
	}
	if a.Addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	return nil
}

// DialFunc opens the connection used by Session.Connect.
type DialFunc func(ctx context.Context, addr Address, tlsConfig *tls.Config) (net.Conn, error)

// Dial connects to addr, wrapping the connection in TLS when tlsConfig is not nil.
func Dial(ctx context.Context, addr Address, tlsConfig *tls.Config) (net.Conn, error) {
	if err := addr.validate(); err != nil {
		return nil, err
	}
	d := &net.Dialer{}
	if tlsConfig != nil {
		td := &tls.Dialer{NetDialer: d, Config: tlsConfig}
		return td.DialContext(ctx, addr.Network, addr.Addr)
	}
	return d.DialContext(ctx, addr.Network, addr.Addr)
}

// Listen listens on addr.
func Listen(ctx context.Context, addr Address) (net.Listener, error) {
	if err := addr.validate(); err != nil {
		return nil, err
	}
	lc := &net.ListenConfig{}
	return lc.Listen(ctx, addr.Network, addr.Addr)
}

// AcceptConn accepts one connection from lis, and runs the TLS server handshake
// when tlsConfig is not nil. It returns ctx.Err() if ctx is done first,
// in which case lis has been closed.
func AcceptConn(ctx context.Context, lis net.Listener, tlsConfig *tls.Config) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = lis.Close() })
	conn, err := lis.Accept()
	if !stop() {
		if conn != nil {
			_ = conn.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if tlsConfig == nil {
		return conn, nil
	}
	tc := tls.Server(conn, tlsConfig)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tc, nil
}

// aLongTimeAgo is a deadline in the past, used to interrupt blocked I/O.
var aLongTimeAgo = time.Unix(1, 0)

// Transport is the bound stream of a session.
// Reads go through a bufio.Reader; writes are buffered until Flush.
type Transport struct {
	conn net.Conn
	r    *bufio.Reader

	wmu sync.Mutex
	w   *bufio.Writer

	closeOnce sync.Once
	closing   chan struct{}
	closed    chan struct{}
	closeErr  error
}

func newTransport(conn net.Conn, readBufferSize, writeBufferSize int) *Transport {
	if readBufferSize <= 0 {
		readBufferSize = DefaultBufferSize
	}
	if writeBufferSize <= 0 {
		writeBufferSize = DefaultBufferSize
	}
	return &Transport{
		conn:    conn,
		r:       bufio.NewReaderSize(conn, readBufferSize),
		w:       bufio.NewWriterSize(conn, writeBufferSize),
		closing: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Read reads from the buffered input side.
func (t *Transport) Read(p []byte) (int, error) {
	return t.r.Read(p)
}

// Reader returns the buffered input side, for line or delimiter based protocols.
// Only the goroutine receiving messages may use it.
func (t *Transport) Reader() *bufio.Reader {
	return t.r
}

// Write appends p to the output buffer. The buffer is written to the
// connection when it fills up, or on Flush.
func (t *Transport) Write(p []byte) (int, error) {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.w.Write(p)
}

// Flush writes every buffered byte to the connection.
func (t *Transport) Flush() error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.w.Flush()
}

// Buffered returns the number of bytes written but not yet flushed.
func (t *Transport) Buffered() int {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	return t.w.Buffered()
}

// LocalAddr returns the local network address.
func (t *Transport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}

// Close starts closing the transport: pending output is flushed,
// then the connection is closed, which closes both directions.
// Close does not wait, use WaitClosed.
func (t *Transport) Close() {
	t.shutdown(true)
}

// Abort starts closing the transport like Close, but drops pending output.
func (t *Transport) Abort() {
	t.shutdown(false)
}

func (t *Transport) shutdown(flush bool) {
	t.closeOnce.Do(func() {
		close(t.closing)
		go func() {
			defer close(t.closed)
			var flushErr error
			t.wmu.Lock()
			if flush {
				flushErr = t.w.Flush()
			} else {
				t.w.Reset(t.conn)
			}
			t.wmu.Unlock()
			t.closeErr = errors.Join(flushErr, t.conn.Close())
		}()
	})
}

// IsClosing reports whether Close has been called.
func (t *Transport) IsClosing() bool {
	select {
	case <-t.closing:
		return true
	default:
		return false
	}
}

// WaitClosed blocks until the transport is closed, and returns the error
// encountered while flushing or closing it.
// If the output side already failed, that same error is returned here again.
func (t *Transport) WaitClosed() error {
	<-t.closed
	return t.closeErr
}

// interruptOn makes blocked reads and writes return once ctx is done.
// The returned stop reports false if the interruption already happened.
func (t *Transport) interruptOn(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() { _ = t.conn.SetDeadline(aLongTimeAgo) })
}

func (t *Transport) interruptReadOn(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() { _ = t.conn.SetReadDeadline(aLongTimeAgo) })
}

func (t *Transport) interruptWriteOn(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() { _ = t.conn.SetWriteDeadline(aLongTimeAgo) })
}
