package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/adrg/xdg"
	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"

	"github.com/mikequentel/xcli/internal/compose"
	"github.com/mikequentel/xcli/internal/credentials"
	"github.com/mikequentel/xcli/internal/media"
	"github.com/mikequentel/xcli/internal/session"
	"github.com/mikequentel/xcli/internal/store"
	"github.com/mikequentel/xcli/internal/xapi"
)

// threadPacing spaces thread posts so a long thread does not trip the
// per-window write limit.
const threadPacing = 1500 * time.Millisecond

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.App{
		Name:    "xcli",
		Usage:   "post to X and read it from the terminal",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				Value:   "warn",
				EnvVars: []string{"XCLI_LOG_LEVEL", "LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "credentials file (default $XDG_CONFIG_HOME/xcli/config.json)",
				EnvVars: []string{"XCLI_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "local post history and cache (default $XDG_DATA_HOME/xcli/history.db)",
				EnvVars: []string{"XCLI_DB"},
			},
		},
		Before: func(cctx *cli.Context) error {
			slog.SetDefault(configLogger(cctx, os.Stderr))
			return nil
		},
	}
	app.Commands = []*cli.Command{
		cmdSetup,
		cmdPost,
		cmdThread,
		cmdCheck,
		cmdHistory,
		cmdLogin,
		cmdLogout,
		cmdWhoami,
		cmdSearch,
		cmdTimeline,
		cmdRead,
		cmdBookmarks,
		cmdLikes,
		cmdFollowers,
		cmdFollowing,
		cmdUser,
		cmdMentions,
		cmdRefreshIDs,
	}
	return app.RunContext(ctx, args)
}

func configLogger(cctx *cli.Context, writer io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	}))
}

func openCredentials(cctx *cli.Context) (*credentials.Store, error) {
	return credentials.Open(cctx.String("config"))
}

func openLedger(cctx *cli.Context) (*store.Store, error) {
	path := cctx.String("db")
	if path == "" {
		p, err := store.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("locating history database: %w", err)
		}
		path = p
	}
	return store.Open(path)
}

// loadAPIClient builds the signed v2 client from stored credentials.
func loadAPIClient(cctx *cli.Context) (*xapi.Client, *credentials.Store, error) {
	creds, err := openCredentials(cctx)
	if err != nil {
		return nil, nil, err
	}
	secrets, err := creds.LoadCredentials()
	if err != nil {
		return nil, nil, err
	}
	client, err := xapi.New(secrets)
	if err != nil {
		return nil, nil, err
	}
	return client, creds, nil
}

// newEngine wires the compose path: signed client, media uploader and the
// local ledger. The returned func closes the ledger.
func newEngine(cctx *cli.Context) (*compose.Engine, func(), error) {
	client, _, err := loadAPIClient(cctx)
	if err != nil {
		return nil, nil, err
	}
	ledger, err := openLedger(cctx)
	if err != nil {
		return nil, nil, err
	}
	uploader := media.NewUploader(client)
	engine := compose.New(uploader, client,
		compose.WithRecorder(ledger),
		compose.WithPacing(threadPacing),
	)
	return engine, func() { ledger.Close() }, nil
}

func browserProfileDir() string {
	return filepath.Join(xdg.StateHome, "xcli", "browser-profile")
}

// loadSession builds the cookie-authenticated read client. A missing
// session is captured headlessly from the profile of an earlier 'xcli login'.
func loadSession(cctx *cli.Context) (*session.Client, func(), error) {
	creds, err := openCredentials(cctx)
	if err != nil {
		return nil, nil, err
	}
	ledger, err := openLedger(cctx)
	if err != nil {
		return nil, nil, err
	}
	src := &session.CachedSource{
		Store: creds,
		Extractor: &session.BrowserLogin{
			ProfileDir: browserProfileDir(),
			Headless:   true,
		},
	}
	c := session.New(src, session.WithResolver(session.NewResolver(session.WithQueryIDCache(ledger))))
	return c, func() { ledger.Close() }, nil
}

// postURL is where a post can be viewed without knowing its author.
func postURL(id string) string {
	return "https://x.com/i/status/" + id
}
