package easyduplex

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net"
	"os"
	"testing"
	"time"
)

func TestParseAddress(t *testing.T) {
	t.Run("when address is a tcp host and port", func(t *testing.T) {
		addr, err := ParseAddress("localhost:4444")
		assert.NoError(t, err)
		assert.Equal(t, TCPAddress("localhost", 4444), addr)
		assert.Equal(t, "localhost:4444", addr.String())
	})
	t.Run("when address is a unix socket", func(t *testing.T) {
		addr, err := ParseAddress("unix:/tmp/qmp.sock")
		assert.NoError(t, err)
		assert.Equal(t, UnixAddress("/tmp/qmp.sock"), addr)
		assert.Equal(t, "unix:/tmp/qmp.sock", addr.String())

		addr, err = ParseAddress("/tmp/qmp.sock")
		assert.NoError(t, err)
		assert.Equal(t, UnixAddress("/tmp/qmp.sock"), addr)
	})
	t.Run("when address is invalid", func(t *testing.T) {
		_, err := ParseAddress("")
		assert.ErrorIs(t, err, ErrInvalidAddress)
		_, err = ParseAddress("no-port")
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})
}

func TestDial(t *testing.T) {
	t.Run("when address is invalid", func(t *testing.T) {
		_, err := Dial(context.Background(), Address{Network: "udp", Addr: "x:1"}, nil)
		assert.ErrorIs(t, err, ErrInvalidAddress)
		_, err = Dial(context.Background(), Address{Network: "tcp"}, nil)
		assert.ErrorIs(t, err, ErrInvalidAddress)
	})
	t.Run("when listener is up", func(t *testing.T) {
		lis, err := Listen(context.Background(), TCPAddress("127.0.0.1", 0))
		require.NoError(t, err)
		defer lis.Close() // nolint

		accepted := make(chan net.Conn, 1)
		go func() {
			conn, err := AcceptConn(context.Background(), lis, nil)
			if err == nil {
				accepted <- conn
			}
		}()
		conn, err := Dial(context.Background(), Address{Network: "tcp", Addr: lis.Addr().String()}, nil)
		require.NoError(t, err)
		defer conn.Close() // nolint
		peer := <-accepted
		defer peer.Close() // nolint
		assert.Equal(t, conn.LocalAddr().String(), peer.RemoteAddr().String())
	})
}

func TestAcceptConn(t *testing.T) {
	lis, err := Listen(context.Background(), TCPAddress("127.0.0.1", 0))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(time.Millisecond * 10)
		cancel()
	}()
	conn, err := AcceptConn(ctx, lis, nil)
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = lis.Accept()
	assert.Error(t, err) // closed
}

func TestTransport(t *testing.T) {
	p1, p2 := net.Pipe()
	tr := newTransport(p1, 0, 0)
	assert.Equal(t, DefaultBufferSize, tr.r.Size())
	assert.Equal(t, DefaultBufferSize, tr.w.Size())
	assert.Equal(t, p1.LocalAddr(), tr.LocalAddr())
	assert.Equal(t, p1.RemoteAddr(), tr.RemoteAddr())

	n, err := tr.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, tr.Buffered())

	got := make(chan []byte, 1)
	go func() {
		b := make([]byte, 5)
		_, _ = io.ReadFull(p2, b)
		got <- b
	}()
	assert.NoError(t, tr.Flush())
	assert.Equal(t, []byte("hello"), <-got)
	assert.Zero(t, tr.Buffered())

	go func() { _, _ = p2.Write([]byte("world\n")) }()
	line, err := tr.Reader().ReadString('\n')
	assert.NoError(t, err)
	assert.Equal(t, "world\n", line)

	assert.False(t, tr.IsClosing())
	tr.Close()
	tr.Close() // idempotent
	assert.True(t, tr.IsClosing())
	assert.NoError(t, tr.WaitClosed())

	_, err = p2.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestTransport_Close(t *testing.T) {
	t.Run("when pending output can not be flushed", func(t *testing.T) {
		p1, p2 := net.Pipe()
		_ = p2.Close()
		tr := newTransport(p1, 16, 16)
		_, err := tr.Write([]byte("lost"))
		require.NoError(t, err)
		tr.Close()
		assert.ErrorIs(t, tr.WaitClosed(), io.ErrClosedPipe)
	})
}

func TestTransport_Abort(t *testing.T) {
	t.Run("when the write deadline has passed", func(t *testing.T) {
		p1, p2 := net.Pipe()
		defer p2.Close() // nolint
		tr := newTransport(p1, 16, 16)
		_, err := tr.Write([]byte("dropped"))
		require.NoError(t, err)
		require.NoError(t, p1.SetWriteDeadline(aLongTimeAgo))

		tr.Abort()
		tr.Close() // no-op once aborted
		assert.True(t, tr.IsClosing())
		assert.NoError(t, tr.WaitClosed())
		assert.Zero(t, tr.Buffered())

		n, err := p2.Read(make([]byte, 16))
		assert.Zero(t, n)
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestTransport_interruptOn(t *testing.T) {
	t.Run("when ctx is done while reading", func(t *testing.T) {
		p1, p2 := net.Pipe()
		defer p2.Close() // nolint
		tr := newTransport(p1, 0, 0)
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*10)
		defer cancel()
		stop := tr.interruptReadOn(ctx)
		_, err := tr.Read(make([]byte, 1))
		assert.True(t, errors.Is(err, os.ErrDeadlineExceeded))
		assert.False(t, stop())
	})
	t.Run("when stopped before ctx is done", func(t *testing.T) {
		p1, _ := net.Pipe()
		tr := newTransport(p1, 0, 0)
		ctx, cancel := context.WithCancel(context.Background())
		stop := tr.interruptOn(ctx)
		assert.True(t, stop())
		cancel()
		tr.Close()
		assert.NoError(t, tr.WaitClosed())
	})
}
