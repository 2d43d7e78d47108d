package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/mitplan/raidsocket/src/types"
	"github.com/valyala/fasthttp"
)

// RaidRoomPattern matches the websocket path of a raid room. The leading
// slash is stripped before matching.
const RaidRoomPattern = `^ws/raid/(?P<room_name>\w+)/$`

// RoomNameKey is the path parameter holding the room identifier.
const RoomNameKey = "room_name"

// Scope carries per-connection data collected before a handler is built.
type Scope struct {
	Path     string
	Params   map[string]string
	Identity types.Identity
}

// Param returns a named path parameter, or "".
func (s *Scope) Param(name string) string {
	return s.Params[name]
}

// ConnHandler services a websocket upgrade request.
type ConnHandler func(ctx *fasthttp.RequestCtx, scope *Scope)

// Middleware decorates a ConnHandler. It either calls next with an enriched
// scope or rejects the request itself.
type Middleware func(next ConnHandler) ConnHandler

// Chain wraps h so that mws run in the given order before it.
func Chain(h ConnHandler, mws ...Middleware) ConnHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Route pairs a compiled path pattern with the factory that builds a
// handler for matching connections.
type Route struct {
	Pattern *regexp.Regexp
	Handler ConnHandler
}

// URLRouter evaluates routes in registration order; the first match wins.
type URLRouter struct {
	routes []Route
}

// NewURLRouter creates an empty router.
func NewURLRouter() *URLRouter { return &URLRouter{} }

// Handle registers a route. The pattern uses Go regexp syntax with named
// groups for parameters.
func (r *URLRouter) Handle(pattern string, h ConnHandler) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compile route %q: %w", pattern, err)
	}
	r.routes = append(r.routes, Route{Pattern: re, Handler: h})
	return nil
}

// MustHandle is Handle that panics on an invalid pattern.
func (r *URLRouter) MustHandle(pattern string, h ConnHandler) {
	if err := r.Handle(pattern, h); err != nil {
		panic(err)
	}
}

// Match finds the first route matching path and returns its named parameters.
func (r *URLRouter) Match(path string) (Route, map[string]string, bool) {
	path = strings.TrimPrefix(path, "/")
	for _, route := range r.routes {
		m := route.Pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		params := make(map[string]string)
		for i, name := range route.Pattern.SubexpNames() {
			if i > 0 && name != "" {
				params[name] = m[i]
			}
		}
		return route, params, true
	}
	return Route{}, nil, false
}

// Serve dispatches the connection to the matching route. Unmatched paths are
// rejected with 404 and no handler is built.
func (r *URLRouter) Serve(ctx *fasthttp.RequestCtx, scope *Scope) {
	route, params, ok := r.Match(scope.Path)
	if !ok {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"not_found","message":"no websocket route for path"}`)
		return
	}
	scope.Params = params
	route.Handler(ctx, scope)
}

// ProtocolRouter sends websocket upgrades to the websocket stack and every
// other request to the HTTP application.
type ProtocolRouter struct {
	HTTP      fasthttp.RequestHandler
	WebSocket ConnHandler
}

// Handler returns the fasthttp entry point.
func (p *ProtocolRouter) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if p.WebSocket != nil && websocket.FastHTTPIsWebSocketUpgrade(ctx) {
			p.WebSocket(ctx, &Scope{Path: string(ctx.Path())})
			return
		}
		if p.HTTP == nil {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		p.HTTP(ctx)
	}
}
