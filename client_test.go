package easyduplex

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type greet struct {
	Text string `json:"text"`
}

func pipeClients(t *testing.T, a, b *ClientOption) (*Client, *Client) {
	p1, p2 := net.Pipe()
	a.Dial = func(context.Context, Address, *tls.Config) (net.Conn, error) { return p1, nil }
	b.Dial = func(context.Context, Address, *tls.Config) (net.Conn, error) { return p2, nil }
	a.Logger, b.Logger = MuteLogger(), MuteLogger()
	return NewClient(a), NewClient(b)
}

func tempSocket(t *testing.T) Address {
	dir, err := os.MkdirTemp("", "ed")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return UnixAddress(filepath.Join(dir, "c.sock"))
}

func TestNewClient(t *testing.T) {
	c := NewClient(nil)
	assert.IsType(t, &DefaultPacker{}, c.packer)
	assert.Nil(t, c.Codec())
	assert.NotNil(t, c.Router())
	assert.Equal(t, Idle, c.Runstate())
	assert.Nil(t, c.PeerGreeting())
}

func TestClient_Send(t *testing.T) {
	t.Run("when client is idle", func(t *testing.T) {
		c := NewClient(nil)
		assert.ErrorIs(t, c.Send(1, []byte("x")), ErrSessionNotRunning)
	})
	t.Run("when codec is nil and data is not bytes", func(t *testing.T) {
		c := NewClient(nil)
		assert.Error(t, c.Send(1, greet{}))
	})
	t.Run("when message ID is invalid", func(t *testing.T) {
		c := NewClient(&ClientOption{Codec: &JsonCodec{}})
		assert.Error(t, c.Send("x", greet{}))
		assert.Error(t, c.Send([]int{1}, greet{}))
	})
}

func TestMessageID(t *testing.T) {
	t.Run("when id converts to uint32", func(t *testing.T) {
		var testIdInt = 1
		var testIdInt32 int32 = 1
		var testIdInt64 int64 = 1
		var testIdUint uint = 1
		var testIdUint32 uint32 = 1
		var testIdUint64 uint64 = 1

		ids := []interface{}{
			testIdInt, testIdInt32, testIdInt64,
			testIdUint, testIdUint32, testIdUint64,
			"1",
		}
		for _, id := range ids {
			key, err := messageID(id)
			assert.NoError(t, err)
			assert.Equal(t, uint32(1), key)
		}
	})
	t.Run("when id is invalid", func(t *testing.T) {
		for _, id := range []interface{}{"x", []int{1}, nil} {
			_, err := messageID(id)
			assert.Error(t, err)
		}
	})
}

func TestClient_roundTrip(t *testing.T) {
	server, client := pipeClients(t,
		&ClientOption{Codec: &JsonCodec{}},
		&ClientOption{Codec: &JsonCodec{}},
	)
	server.AddRoute(1, func(ctx *Context) (*Message, error) {
		var req greet
		if err := ctx.Bind(&req); err != nil {
			return nil, err
		}
		return ctx.Response(2, greet{Text: "hello " + req.Text})
	})
	server.AddRoute(3, func(ctx *Context) (*Message, error) {
		return nil, fmt.Errorf("handler err")
	})
	replies := make(chan string, 10)
	client.AddRoute(2, func(ctx *Context) (*Message, error) {
		var resp greet
		if err := ctx.Bind(&resp); err != nil {
			return nil, err
		}
		replies <- resp.Text
		return nil, nil
	})

	require.NoError(t, server.Connect(context.Background(), Address{}, nil))
	require.NoError(t, client.Connect(context.Background(), Address{}, nil))

	require.NoError(t, client.Send(3, greet{})) // a failing handler doesn't stop the session
	require.NoError(t, client.Send(1, greet{Text: "steve"}))
	select {
	case text := <-replies:
		assert.Equal(t, "hello steve", text)
	case <-time.After(time.Second * 3):
		t.Fatal("timeout waiting for reply")
	}
	assert.Equal(t, Running, server.Runstate())

	assert.NoError(t, client.Disconnect(context.Background()))
	require.Eventually(t, func() bool {
		return server.Runstate() == Disconnecting
	}, time.Second*3, time.Millisecond*5)
	assert.Error(t, server.Disconnect(context.Background())) // peer went away
}

func TestClient_greeting(t *testing.T) {
	t.Run("when greetings match", func(t *testing.T) {
		addr := tempSocket(t)
		server := NewClient(&ClientOption{
			SessionOption: SessionOption{Name: "server", Logger: MuteLogger()},
			Greeting:      NewMessage(100, []byte("server")),
		})
		client := NewClient(&ClientOption{
			SessionOption: SessionOption{Name: "client", Logger: MuteLogger()},
			Greeting:      NewMessage(100, []byte("client")),
		})

		accepted := make(chan error, 1)
		go func() { accepted <- server.Accept(context.Background(), addr, nil) }()
		require.Eventually(t, func() bool {
			return client.Connect(context.Background(), addr, nil) == nil
		}, time.Second*3, time.Millisecond*10)
		require.NoError(t, <-accepted)

		require.NotNil(t, client.PeerGreeting())
		assert.Equal(t, []byte("server"), client.PeerGreeting().Data())
		require.NotNil(t, server.PeerGreeting())
		assert.Equal(t, []byte("client"), server.PeerGreeting().Data())

		assert.NoError(t, client.Disconnect(context.Background()))
		_ = server.Disconnect(context.Background())
	})
	t.Run("when greetings do not match", func(t *testing.T) {
		addr := tempSocket(t)
		server := NewClient(&ClientOption{
			SessionOption: SessionOption{Logger: MuteLogger()},
			Greeting:      NewMessage(100, nil),
		})
		client := NewClient(&ClientOption{
			SessionOption: SessionOption{Logger: MuteLogger()},
			Greeting:      NewMessage(101, nil),
		})

		accepted := make(chan error, 1)
		go func() { accepted <- server.Accept(context.Background(), addr, nil) }()
		var err error
		require.Eventually(t, func() bool {
			err = client.Connect(context.Background(), addr, nil)
			var ce *ConnectError
			return errors.As(err, &ce) && ce.Message == "Failed to establish session"
		}, time.Second*3, time.Millisecond*10)
		assert.Contains(t, err.Error(), "unexpected greeting")
		assert.Error(t, <-accepted)
		assert.Equal(t, Idle, client.Runstate())
		assert.Equal(t, Idle, server.Runstate())
		assert.Nil(t, client.PeerGreeting())
	})
}
