package httpserver

import (
	"context"

	"github.com/holte-dev/safetyflash/internal/model"
)

type ctxKey string

const (
	ctxKeyUser    ctxKey = "user"
	ctxKeySession ctxKey = "session"
)

func withIdentity(ctx context.Context, u *model.User, s *model.Session) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUser, u)
	return context.WithValue(ctx, ctxKeySession, s)
}

func userFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(ctxKeyUser).(*model.User)
	return u
}

func sessionFrom(ctx context.Context) *model.Session {
	s, _ := ctx.Value(ctxKeySession).(*model.Session)
	return s
}
