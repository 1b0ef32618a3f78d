package easyduplex

import (
	"fmt"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cast"
	"io"
	"reflect"
	"runtime"
	"sort"
	"sync"
)

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{
		handlers:    make(map[uint32]HandlerFunc),
		middlewares: make(map[uint32][]MiddlewareFunc),
	}
}

// Router routes inbound messages to their handler and middlewares by message ID.
// Routes are keyed by the uint32 form of the ID, as put on the wire by DefaultPacker.
type Router struct {
	mu sync.RWMutex

	// handlers maps message's ID to handler.
	// Handler will be called around middlewares.
	handlers map[uint32]HandlerFunc

	// middlewares maps message's ID to a list of middlewares.
	// These middlewares will be called before the handler in handlers.
	middlewares map[uint32][]MiddlewareFunc

	// globalMiddlewares will be called before the ones in middlewares.
	globalMiddlewares []MiddlewareFunc

	notFoundHandler HandlerFunc
}

// HandlerFunc is the function type for handlers.
// A non-nil returned Message is sent back on the same session.
type HandlerFunc func(ctx *Context) (*Message, error)

// MiddlewareFunc is the function type for middlewares.
// A common pattern is like:
//
//	var md MiddlewareFunc = func(next HandlerFunc) HandlerFunc {
//		return func(ctx *Context) (*Message, error) {
//			return next(ctx)
//		}
//	}
type MiddlewareFunc func(next HandlerFunc) HandlerFunc

var nilHandler HandlerFunc = func(ctx *Context) (*Message, error) {
	return nil, nil
}

// AddRoute registers handler and middlewares for the message ID id.
// Panics if id can not be converted to uint32.
func (r *Router) AddRoute(id interface{}, handler HandlerFunc, middlewares ...MiddlewareFunc) {
	key := routeKey(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if handler != nil {
		r.handlers[key] = handler
	}
	ms := make([]MiddlewareFunc, 0, len(middlewares))
	for _, m := range middlewares {
		if m != nil {
			ms = append(ms, m)
		}
	}
	if len(ms) != 0 {
		r.middlewares[key] = ms
	}
}

// Use registers global middlewares, applied to every route.
func (r *Router) Use(middlewares ...MiddlewareFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range middlewares {
		if m != nil {
			r.globalMiddlewares = append(r.globalMiddlewares, m)
		}
	}
}

// NotFoundHandler sets the handler of messages with no route.
func (r *Router) NotFoundHandler(handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFoundHandler = handler
}

// handle routes ctx's request through the handlers stack.
func (r *Router) handle(ctx *Context) (*Message, error) {
	key := ctx.Request().ID()

	r.mu.RLock()
	handler := r.handlers[key]
	mws := make([]MiddlewareFunc, 0, len(r.globalMiddlewares)+len(r.middlewares[key]))
	mws = append(mws, r.globalMiddlewares...)
	mws = append(mws, r.middlewares[key]...)
	notFound := r.notFoundHandler
	r.mu.RUnlock()

	if handler == nil {
		handler = notFound
	}
	return wrapHandlers(handler, mws)(ctx)
}

// wrapHandlers wraps handler and middlewares into a right order call stack.
// Makes something like:
//
//	var wrapped HandlerFunc = m1(m2(m3(handle)))
func wrapHandlers(handler HandlerFunc, middles []MiddlewareFunc) (wrapped HandlerFunc) {
	if handler == nil {
		handler = nilHandler
	}
	wrapped = handler
	for i := len(middles) - 1; i >= 0; i-- {
		wrapped = middles[i](wrapped)
	}
	return wrapped
}

// PrintRoutes writes the route table to w.
func (r *Router) PrintRoutes(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint32, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Message ID", "Route Handler", "Middlewares"})
	table.SetAutoFormatHeaders(false)
	for _, id := range ids {
		table.Append([]string{
			fmt.Sprintf("%d", id),
			funcName(r.handlers[id]),
			fmt.Sprintf("%d", len(r.globalMiddlewares)+len(r.middlewares[id])),
		})
	}
	table.Render()
}

func routeKey(id interface{}) uint32 {
	key, err := cast.ToUint32E(id)
	if err != nil {
		panic(fmt.Errorf("invalid route ID %v: %s", id, err))
	}
	return key
}

func funcName(fn interface{}) string {
	return runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
}
