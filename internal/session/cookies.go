package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikequentel/xcli/internal/credentials"
	"github.com/mikequentel/xcli/internal/xerr"
)

// CookieSource yields the browser session used for reads.
type CookieSource interface {
	Cookies(ctx context.Context) (credentials.Cookies, error)
	// Invalidate drops a session the platform rejected.
	Invalidate() error
}

// CookieStore is where a session is cached. *credentials.Store implements it.
type CookieStore interface {
	LoadSessionCookies() (credentials.Cookies, error)
	SaveSessionCookies(c credentials.Cookies) error
	ClearSessionCookies() error
}

// Extractor obtains a fresh session, eg: from a browser profile.
type Extractor interface {
	Extract(ctx context.Context) (credentials.Cookies, error)
}

// CachedSource serves the cached session and falls back to Extractor,
// caching what it finds. Without an Extractor a missing session is
// ErrNotLoggedIn.
type CachedSource struct {
	Store     CookieStore
	Extractor Extractor
}

func (s *CachedSource) Cookies(ctx context.Context) (credentials.Cookies, error) {
	c, err := s.Store.LoadSessionCookies()
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, xerr.ErrNotLoggedIn) || s.Extractor == nil {
		return c, err
	}
	c, err = s.Extractor.Extract(ctx)
	if err != nil {
		return c, fmt.Errorf("%w: %w", xerr.ErrNotLoggedIn, err)
	}
	if err := s.Store.SaveSessionCookies(c); err != nil {
		return c, err
	}
	return c, nil
}

func (s *CachedSource) Invalidate() error {
	return s.Store.ClearSessionCookies()
}
