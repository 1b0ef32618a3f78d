package easyduplex

import (
	"context"
	"errors"
	"fmt"
	"github.com/spf13/cast"
	"io"
)

// ClientOption is the extra options for Client.
type ClientOption struct {
	SessionOption

	// Packer is the message packer. Defaults to DefaultPacker.
	Packer Packer

	// Codec encodes the values given to Send, and decodes them in Context.Bind.
	// If nil, only []byte values can be sent.
	Codec Codec

	// Greeting, when set, is sent as soon as the connection is up,
	// and the peer's greeting, with the same ID, is awaited
	// before the session is started.
	Greeting *Message
}

// Client is a Session exchanging Message frames: messages are packed with a Packer,
// their data encoded with a Codec, and inbound messages are dispatched by a Router.
type Client struct {
	*Session[*Message]

	packer       Packer
	codec        Codec
	router       *Router
	greeting     *Message
	peerGreeting *Message
}

// NewClient creates an Idle Client.
func NewClient(opt *ClientOption) *Client {
	if opt == nil {
		opt = &ClientOption{}
	}
	if opt.Packer == nil {
		opt.Packer = NewDefaultPacker()
	}
	c := &Client{
		packer:   opt.Packer,
		codec:    opt.Codec,
		router:   NewRouter(),
		greeting: opt.Greeting,
	}
	c.Session = NewSession[*Message](&clientProtocol{c: c}, &opt.SessionOption)
	return c
}

// Codec returns the client's codec, possibly nil.
func (c *Client) Codec() Codec {
	return c.codec
}

// Router returns the router dispatching inbound messages.
func (c *Client) Router() *Router {
	return c.router
}

// AddRoute registers handler and middlewares for the message ID id.
func (c *Client) AddRoute(id interface{}, handler HandlerFunc, middlewares ...MiddlewareFunc) {
	c.router.AddRoute(id, handler, middlewares...)
}

// Use registers global middlewares.
func (c *Client) Use(middlewares ...MiddlewareFunc) {
	c.router.Use(middlewares...)
}

// NotFoundHandler sets the handler of messages with no route.
func (c *Client) NotFoundHandler(handler HandlerFunc) {
	c.router.NotFoundHandler(handler)
}

// PeerGreeting returns the greeting received from the peer during the last
// successful Connect or Accept, if a Greeting is configured.
func (c *Client) PeerGreeting() *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerGreeting
}

// Send encodes v with the codec and enqueues it as a message with ID id.
func (c *Client) Send(id, v interface{}) error {
	msg, err := c.newMessage(id, v)
	if err != nil {
		return err
	}
	return c.Session.Send(msg)
}

// SendMessage enqueues msg as it is.
func (c *Client) SendMessage(msg *Message) error {
	return c.Session.Send(msg)
}

// Route dispatches msg through the router as if it was received,
// and returns the handler's response.
func (c *Client) Route(ctx context.Context, msg *Message) (*Message, error) {
	return c.router.handle(newContext(ctx, c, msg))
}

// messageID converts any integer, or a numeric string, to a message ID.
func messageID(id interface{}) (uint32, error) {
	key, err := cast.ToUint32E(id)
	if err != nil {
		return 0, fmt.Errorf("invalid message ID: %s", err)
	}
	return key, nil
}

func (c *Client) newMessage(rawID, v interface{}) (*Message, error) {
	id, err := messageID(rawID)
	if err != nil {
		return nil, err
	}
	if c.codec == nil {
		data, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("message codec is nil, can not send %T", v)
		}
		return NewMessage(id, data), nil
	}
	data, err := c.codec.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode message data err: %s", err)
	}
	return NewMessage(id, data), nil
}

// clientProtocol is the Protocol[*Message] of a Client.
type clientProtocol struct {
	c *Client
}

var (
	_ Protocol[*Message] = &clientProtocol{}
	_ SessionEstablisher = &clientProtocol{}
)

func (p *clientProtocol) Recv(_ context.Context, t *Transport) (*Message, error) {
	msg, err := p.c.packer.Unpack(t)
	if err != nil {
		if errors.Is(err, ErrMessageTooLarge) {
			return nil, err
		}
		return nil, &StreamError{Op: "recv", Err: err}
	}
	return msg, nil
}

func (p *clientProtocol) Send(_ context.Context, t *Transport, msg *Message) error {
	b, err := p.c.packer.Pack(msg)
	if err != nil {
		return fmt.Errorf("pack message err: %w", err)
	}
	if _, err := t.Write(b); err != nil {
		return &StreamError{Op: "send", Err: err}
	}
	return nil
}

// OnMessage routes msg. Handler errors are logged, and leave the session running.
func (p *clientProtocol) OnMessage(ctx context.Context, msg *Message) error {
	resp, err := p.c.Route(ctx, msg)
	if err != nil {
		p.c.log.Errorf("router handle message err: %s", err)
		return nil
	}
	if resp == nil {
		return nil
	}
	if err := p.c.SendMessage(resp); err != nil {
		p.c.log.Errorf("router send response err: %s", err)
	}
	return nil
}

// EstablishSession exchanges greetings, when the client has one.
func (p *clientProtocol) EstablishSession(ctx context.Context, t *Transport, _ func()) error {
	p.c.mu.Lock()
	p.c.peerGreeting = nil
	p.c.mu.Unlock()

	greeting := p.c.greeting
	if greeting == nil {
		return nil
	}
	if err := p.Send(ctx, t, greeting); err != nil {
		return err
	}
	if err := t.Flush(); err != nil {
		return &StreamError{Op: "flush", Err: err}
	}
	peer, err := p.Recv(ctx, t)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("peer closed the connection before greeting: %w", err)
		}
		return err
	}
	if peer.ID() != greeting.ID() {
		return fmt.Errorf("unexpected greeting: got ID %d, want %d", peer.ID(), greeting.ID())
	}
	p.c.log.Debugf("greeted by peer: %v", peer)

	p.c.mu.Lock()
	p.c.peerGreeting = peer
	p.c.mu.Unlock()
	return nil
}
