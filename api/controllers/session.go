package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/storefront-session/api/middleware"
	"github.com/angelmondragon/storefront-session/internal/session"
	pkgerrors "github.com/angelmondragon/storefront-session/pkg/errors"
)

// SessionStore resolves the live session for a signed-in shopper.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*session.Session, error)
}

func sessionFor(r *http.Request, store SessionStore) (*session.Session, error) {
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session store unavailable")
	}
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "please sign in to continue")
	}
	return store.Get(r.Context(), userID)
}
