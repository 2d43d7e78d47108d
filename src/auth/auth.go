package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mitplan/raidsocket/src/router"
	"github.com/mitplan/raidsocket/src/types"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// SessionCookie is the cookie carrying a session token.
const SessionCookie = "sessionid"

var (
	// ErrInvalidToken is returned when a presented credential is unknown or expired.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrNoCredentials is returned by TokenFromRequest when nothing was presented.
	ErrNoCredentials = errors.New("no credentials")
)

// SessionStore resolves session tokens to identities.
type SessionStore interface {
	Lookup(ctx context.Context, token string) (types.Identity, error)
}

// TokenFromRequest extracts a session token from a raw request. See
// ExtractToken for the order of sources.
func TokenFromRequest(ctx *fasthttp.RequestCtx) (string, error) {
	return ExtractToken(
		string(ctx.Request.Header.Peek("Authorization")),
		string(ctx.QueryArgs().Peek("token")),
		string(ctx.Request.Header.Cookie(SessionCookie)),
	)
}

// ExtractToken picks the session token out of the three places a client may
// put it. Sources are checked in order: bearer Authorization header, "token"
// query parameter, session cookie. An Authorization header that is not a
// bearer token is an invalid credential, not a missing one.
func ExtractToken(authorization, query, cookie string) (string, error) {
	if authorization != "" {
		if tok, ok := strings.CutPrefix(authorization, "Bearer "); ok && strings.TrimSpace(tok) != "" {
			return strings.TrimSpace(tok), nil
		}
		return "", ErrInvalidToken
	}
	if query != "" {
		return query, nil
	}
	if cookie != "" {
		return cookie, nil
	}
	return "", ErrNoCredentials
}

// Middleware resolves the caller's identity before any handler is built.
// Requests without credentials continue as anonymous; requests with a bad
// credential are rejected with 401.
func Middleware(store SessionStore, timeout time.Duration, logger zerolog.Logger) router.Middleware {
	logger = logger.With().Str("component", "auth").Logger()
	return func(next router.ConnHandler) router.ConnHandler {
		return func(ctx *fasthttp.RequestCtx, scope *router.Scope) {
			token, err := TokenFromRequest(ctx)
			switch {
			case errors.Is(err, ErrNoCredentials):
				scope.Identity = types.AnonymousIdentity
				next(ctx, scope)
				return
			case err != nil:
				reject(ctx, fasthttp.StatusUnauthorized, "unauthorized", err.Error())
				return
			}

			lookupCtx, cancel := context.WithTimeout(context.Background(), timeout)
			id, err := store.Lookup(lookupCtx, token)
			cancel()
			if err != nil {
				logger.Debug().Err(err).Str("path", scope.Path).Msg("session rejected")
				if errors.Is(err, ErrInvalidToken) {
					reject(ctx, fasthttp.StatusUnauthorized, "unauthorized", err.Error())
				} else {
					reject(ctx, fasthttp.StatusServiceUnavailable, "session_lookup_failed", "session store unavailable")
				}
				return
			}
			scope.Identity = id
			next(ctx, scope)
		}
	}
}

// RequireAuth rejects anonymous identities with 403. It must run after
// Middleware.
func RequireAuth() router.Middleware {
	return func(next router.ConnHandler) router.ConnHandler {
		return func(ctx *fasthttp.RequestCtx, scope *router.Scope) {
			if scope.Identity.Anonymous || scope.Identity.UserID == "" {
				reject(ctx, fasthttp.StatusForbidden, "forbidden", "authentication required")
				return
			}
			next(ctx, scope)
		}
	}
}

// Rejection is the JSON body of a refused request.
type Rejection struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func reject(ctx *fasthttp.RequestCtx, status int, code, message string) {
	body, err := json.Marshal(Rejection{Error: code, Message: message})
	if err != nil {
		ctx.Error(message, status)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
