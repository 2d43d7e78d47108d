package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mitplan/raidsocket/src/router"
	"github.com/mitplan/raidsocket/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type failingStore struct{}

func (failingStore) Lookup(context.Context, string) (types.Identity, error) {
	return types.Identity{}, errors.New("connection refused")
}

func newStore(t *testing.T) *MemorySessionStore {
	t.Helper()
	s := NewMemorySessionStore()
	require.NoError(t, s.Put(context.Background(), "good-token", types.Identity{UserID: "u1", Name: "Thrall"}))
	return s
}

// run executes the middleware stack and reports the identity reaching the handler.
func run(t *testing.T, store SessionStore, setup func(*fasthttp.RequestCtx), mws ...router.Middleware) (*types.Identity, *fasthttp.RequestCtx) {
	t.Helper()
	var got *types.Identity
	stack := append([]router.Middleware{Middleware(store, time.Second, zerolog.Nop())}, mws...)
	h := router.Chain(func(_ *fasthttp.RequestCtx, scope *router.Scope) {
		id := scope.Identity
		got = &id
	}, stack...)

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/ws/raid/alpha1/")
	if setup != nil {
		setup(ctx)
	}
	h(ctx, &router.Scope{Path: "/ws/raid/alpha1/"})
	return got, ctx
}

func TestAnonymousWithoutCredentials(t *testing.T) {
	id, _ := run(t, newStore(t), nil)
	require.NotNil(t, id)
	assert.True(t, id.Anonymous)
}

func TestBearerToken(t *testing.T) {
	id, _ := run(t, newStore(t), func(ctx *fasthttp.RequestCtx) {
		ctx.Request.Header.Set("Authorization", "Bearer good-token")
	})
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.UserID)
	assert.False(t, id.Anonymous)
}

func TestQueryToken(t *testing.T) {
	id, _ := run(t, newStore(t), func(ctx *fasthttp.RequestCtx) {
		ctx.Request.SetRequestURI("/ws/raid/alpha1/?token=good-token")
	})
	require.NotNil(t, id)
	assert.Equal(t, "Thrall", id.Name)
}

func TestCookieToken(t *testing.T) {
	id, _ := run(t, newStore(t), func(ctx *fasthttp.RequestCtx) {
		ctx.Request.Header.SetCookie(SessionCookie, "good-token")
	})
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.UserID)
}

func TestInvalidTokenRejectedBeforeHandler(t *testing.T) {
	id, ctx := run(t, newStore(t), func(ctx *fasthttp.RequestCtx) {
		ctx.Request.Header.Set("Authorization", "Bearer stale")
	})
	assert.Nil(t, id)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestMalformedAuthorizationRejected(t *testing.T) {
	id, ctx := run(t, newStore(t), func(ctx *fasthttp.RequestCtx) {
		ctx.Request.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	})
	assert.Nil(t, id)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	id, ctx := run(t, failingStore{}, func(ctx *fasthttp.RequestCtx) {
		ctx.Request.Header.Set("Authorization", "Bearer any")
	})
	assert.Nil(t, id)
	assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
}

func TestRequireAuth(t *testing.T) {
	id, ctx := run(t, newStore(t), nil, RequireAuth())
	assert.Nil(t, id)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())

	id, _ = run(t, newStore(t), func(ctx *fasthttp.RequestCtx) {
		ctx.Request.Header.SetCookie(SessionCookie, "good-token")
	}, RequireAuth())
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.UserID)
}

func TestTokenFromRequestPrecedence(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/ws/raid/a/?token=from-query")
	ctx.Request.Header.SetCookie(SessionCookie, "from-cookie")

	tok, err := TokenFromRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-query", tok)

	ctx.Request.Header.Set("Authorization", "Bearer from-header")
	tok, err = TokenFromRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from-header", tok)
}

func TestMemorySessionStoreUnknown(t *testing.T) {
	_, err := NewMemorySessionStore().Lookup(context.Background(), "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRejectionBodyIsValidJSON(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	reject(ctx, fasthttp.StatusUnauthorized, "unauthorized", `token "x\y" refused`)

	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Equal(t, "application/json", string(ctx.Response.Header.ContentType()))
	var body Rejection
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	assert.Equal(t, Rejection{Error: "unauthorized", Message: `token "x\y" refused`}, body)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name                  string
		header, query, cookie string
		want                  string
		err                   error
	}{
		{name: "bearer wins", header: "Bearer  h ", query: "q", cookie: "c", want: "h"},
		{name: "query before cookie", query: "q", cookie: "c", want: "q"},
		{name: "cookie", cookie: "c", want: "c"},
		{name: "nothing", err: ErrNoCredentials},
		{name: "basic auth", header: "Basic Zm9v", query: "q", err: ErrInvalidToken},
		{name: "empty bearer", header: "Bearer ", err: ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractToken(tt.header, tt.query, tt.cookie)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
