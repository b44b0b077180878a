package shop

import (
	"context"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/techshop/internal/backend"
	"github.com/xenking/techshop/internal/domain/session"
)

// Login authenticates with email and password. On success the token is
// stored and the session user is set; the display name is the local part of
// the email unless ResolveProfileOnLogin finds the account name.
func (s *Store) Login(ctx context.Context, email, password string) bool {
	ctx, span := s.tracer.Start(ctx, "shop.Login")
	defer span.End()

	token, err := s.backend.Login(ctx, email, password)
	if err != nil {
		s.fail(ctx, span, "login", err)
		s.logAuthFailure("Login failed", err)
		return false
	}

	user := session.User{Email: email, Name: session.NameFromEmail(email)}
	if s.opts.ResolveProfileOnLogin {
		if u, err := s.backend.Me(ctx, token); err != nil {
			s.lg.Debug("Profile lookup after login failed, using derived name", zap.Error(err))
		} else if u.Name != "" {
			user.Name = u.Name
		}
	}

	s.startSession(ctx, token, user)
	return true
}

// Register creates an account and signs in as it.
func (s *Store) Register(ctx context.Context, name, email, password string) bool {
	ctx, span := s.tracer.Start(ctx, "shop.Register")
	defer span.End()

	token, err := s.backend.Register(ctx, name, email, password)
	if err != nil {
		s.fail(ctx, span, "register", err)
		s.logAuthFailure("Register failed", err)
		return false
	}

	s.startSession(ctx, token, session.User{Email: email, Name: name})
	return true
}

// Logout discards the token and the session user. The cart is kept.
func (s *Store) Logout(ctx context.Context) {
	if err := s.tokens.Remove(ctx); err != nil {
		s.lg.Warn("Remove session token failed", zap.Error(err))
	}
	s.update(func() bool {
		changed := s.token != "" || s.user != nil
		s.token = ""
		s.user = nil
		return changed
	})
}

// Restore resumes a session from a previously stored token and resolves its
// account. It reports whether a token was found. When the account cannot be
// resolved the token is kept but the user stays unknown.
func (s *Store) Restore(ctx context.Context) bool {
	ctx, span := s.tracer.Start(ctx, "shop.Restore")
	defer span.End()

	token, err := s.tokens.Load(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNoToken) {
			s.fail(ctx, span, "restore", err)
			s.lg.Warn("Load session token failed", zap.Error(err))
		}
		return false
	}

	s.update(func() bool {
		s.token = token
		return true
	})

	u, err := s.backend.Me(ctx, token)
	if err != nil {
		s.fail(ctx, span, "restore", err)
		s.lg.Warn("Resolve restored session failed", zap.Error(err))
		return true
	}
	s.update(func() bool {
		if s.token != token {
			return false
		}
		s.user = &u
		return true
	})
	return true
}

// UpdateProfile applies a partial profile update. It requires a session
// token; on failure the session is left unchanged.
func (s *Store) UpdateProfile(ctx context.Context, upd session.ProfileUpdate) bool {
	ctx, span := s.tracer.Start(ctx, "shop.UpdateProfile")
	defer span.End()

	token := s.currentToken()
	u, err := s.backend.UpdateMe(ctx, token, upd)
	if err != nil {
		s.fail(ctx, span, "update_profile", err)
		s.logAuthFailure("Update profile failed", err)
		return false
	}

	return s.applyUser(token, u)
}

// applyUser replaces the session user if the session that issued the request
// is still current.
func (s *Store) applyUser(token string, u session.User) bool {
	applied := false
	s.update(func() bool {
		if s.token != token {
			return false
		}
		s.user = &u
		applied = true
		return true
	})
	if !applied {
		s.lg.Info("Session changed while request was in flight, dropping result")
	}
	return applied
}

func (s *Store) startSession(ctx context.Context, token string, user session.User) {
	if err := s.tokens.Save(ctx, token); err != nil {
		// The session still works for this process; it just won't survive
		// a restart.
		s.lg.Warn("Persist session token failed", zap.Error(err))
	}
	s.update(func() bool {
		s.token = token
		s.user = &user
		return true
	})
	s.lg.Info("Signed in", zap.String("email", user.Email))
}

func (s *Store) logAuthFailure(msg string, err error) {
	if backend.IsUnauthorized(err) {
		s.lg.Info(msg, zap.Error(err))
		return
	}
	s.lg.Warn(msg, zap.Error(err))
}
