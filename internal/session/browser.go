package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/mikequentel/xcli/internal/credentials"
	"github.com/mikequentel/xcli/internal/transport"
	"github.com/mikequentel/xcli/internal/xerr"
)

const (
	loginURL = "https://x.com/login"
	homeURL  = "https://x.com/home"
)

// BrowserLogin captures auth_token and ct0 from a Chrome profile. Visible,
// it opens the login page and waits for the user; headless, it reuses the
// profile of an earlier visible login.
type BrowserLogin struct {
	// ProfileDir keeps the browser profile between runs. Empty means a
	// throwaway profile.
	ProfileDir   string
	Headless     bool
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *slog.Logger
}

func (b *BrowserLogin) options() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.Headless),
		// navigator.webdriver gives automation away to x.com
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(transport.UserAgent),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if !b.Headless {
		opts = append(opts, chromedp.Flag("disable-gpu", false), chromedp.Flag("start-maximized", true))
	}
	if b.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(b.ProfileDir))
	}
	return opts
}

// Extract returns the session cookies once the browser holds them.
func (b *BrowserLogin) Extract(ctx context.Context) (credentials.Cookies, error) {
	timeout, start := b.Timeout, loginURL
	if b.Headless {
		start = homeURL
		if timeout == 0 {
			timeout = 30 * time.Second
		}
	} else if timeout == 0 {
		timeout = 5 * time.Minute
	}
	poll := b.PollInterval
	if poll == 0 {
		poll = 2 * time.Second
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, b.options()...)
	defer cancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(start)); err != nil {
		return credentials.Cookies{}, fmt.Errorf("opening %s: %w", start, err)
	}
	logger.Info("waiting for x.com session", "url", start, "timeout", timeout)

	deadline := time.After(timeout)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return credentials.Cookies{}, ctx.Err()
		case <-deadline:
			return credentials.Cookies{}, fmt.Errorf("%w: no session after %s", xerr.ErrNotLoggedIn, timeout)
		case <-ticker.C:
			var all []*network.Cookie
			err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				all, err = storage.GetCookies().Do(ctx)
				return err
			}))
			if err != nil {
				logger.Debug("reading cookies", "err", err)
				continue
			}
			if c, ok := sessionCookies(all); ok {
				return c, nil
			}
		}
	}
}

// sessionCookies picks auth_token and ct0 set for x.com or twitter.com.
func sessionCookies(all []*network.Cookie) (credentials.Cookies, bool) {
	var c credentials.Cookies
	for _, ck := range all {
		d := strings.TrimPrefix(ck.Domain, ".")
		if d != "x.com" && d != "twitter.com" {
			continue
		}
		switch ck.Name {
		case "auth_token":
			if c.AuthToken == "" {
				c.AuthToken = ck.Value
			}
		case "ct0":
			if c.CT0 == "" {
				c.CT0 = ck.Value
			}
		}
	}
	return c, c.Valid()
}
