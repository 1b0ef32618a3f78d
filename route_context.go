package easyduplex

import (
	"context"
	"fmt"
)

// Context is passed through handlers and middlewares for one inbound message.
// It carries the reader loop's context, so it's done when the session stops.
type Context struct {
	context.Context
	client *Client
	req    *Message
}

func newContext(ctx context.Context, client *Client, req *Message) *Context {
	return &Context{Context: ctx, client: client, req: req}
}

// Client returns the client which received the request.
func (c *Context) Client() *Client {
	return c.client
}

// Request returns request message.
func (c *Context) Request() *Message {
	return c.req
}

// Bind decodes request data to v with the client's codec.
func (c *Context) Bind(v interface{}) error {
	codec := c.client.codec
	if codec == nil {
		return fmt.Errorf("message codec is nil")
	}
	return codec.Decode(c.req.Data(), v)
}

// Response encodes v with the client's codec and returns a Message to be
// returned by the handler.
func (c *Context) Response(id, v interface{}) (*Message, error) {
	return c.client.newMessage(id, v)
}

// Get retrieves a value stored on the request.
func (c *Context) Get(key string) (interface{}, bool) {
	return c.req.Get(key)
}

// Set stores a value on the request, visible to the next handlers.
func (c *Context) Set(key string, value interface{}) {
	c.req.Set(key, value)
}

// Value looks up string keys in the request storage first.
func (c *Context) Value(key interface{}) interface{} {
	if k, ok := key.(string); ok {
		if v, ok := c.req.Get(k); ok {
			return v
		}
	}
	return c.Context.Value(key)
}
