package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/mikequentel/xcli/internal/media"
	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/oauth"
	"github.com/mikequentel/xcli/internal/thread"
	"github.com/mikequentel/xcli/internal/xapi"
	"github.com/mikequentel/xcli/internal/xerr"
)

const stdIOPath = "-"

var cmdSetup = &cli.Command{
	Name:  "setup",
	Usage: "store and verify API credentials",
	Description: "Secrets missing from flags and the environment are prompted for.\n" +
		"They are saved to the credentials file with mode 0600.",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "consumer-key", EnvVars: []string{"X_CONSUMER_KEY"}},
		&cli.StringFlag{Name: "consumer-secret", EnvVars: []string{"X_CONSUMER_SECRET"}},
		&cli.StringFlag{Name: "access-token", EnvVars: []string{"X_ACCESS_TOKEN"}},
		&cli.StringFlag{Name: "access-secret", EnvVars: []string{"X_ACCESS_SECRET"}},
	},
	Action: runSetup,
}

func runSetup(cctx *cli.Context) error {
	ctx := cctx.Context
	secrets := oauth.Credentials{
		ConsumerKey:       cctx.String("consumer-key"),
		ConsumerSecret:    cctx.String("consumer-secret"),
		AccessToken:       cctx.String("access-token"),
		AccessTokenSecret: cctx.String("access-secret"),
	}
	if err := promptMissing(&secrets, os.Stdin, os.Stderr); err != nil {
		return err
	}

	client, err := xapi.New(secrets)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "verifying credentials...")
	user, err := client.VerifyCredentials(ctx)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	creds, err := openCredentials(cctx)
	if err != nil {
		return err
	}
	if err := creds.SaveCredentials(secrets); err != nil {
		return err
	}
	if err := creds.CacheAccount(user.ID, user.Username); err != nil {
		return err
	}
	fmt.Printf("authenticated as @%s, credentials saved to %s\n", user.Username, creds.Path)
	return nil
}

// promptMissing asks for each empty secret, one line each. Without a
// terminal on stdin nothing is prompted and the set must already be
// complete.
func promptMissing(c *oauth.Credentials, in *os.File, out io.Writer) error {
	fields := []struct {
		label string
		dst   *string
	}{
		{"Consumer Key", &c.ConsumerKey},
		{"Consumer Secret", &c.ConsumerSecret},
		{"Access Token", &c.AccessToken},
		{"Access Token Secret", &c.AccessTokenSecret},
	}
	if !isatty.IsTerminal(in.Fd()) && !isatty.IsCygwinTerminal(in.Fd()) {
		return c.Validate()
	}
	r := bufio.NewReader(in)
	for _, f := range fields {
		if *f.dst != "" {
			continue
		}
		fmt.Fprintf(out, "%s: ", f.label)
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		*f.dst = strings.TrimSpace(line)
	}
	return c.Validate()
}

var cmdPost = &cli.Command{
	Name:      "post",
	Usage:     "publish a post, optionally with media or quoting another post",
	ArgsUsage: `<text|->`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "media",
			Aliases: []string{"m"},
			Usage:   "attach a file (repeat for up to 4 images, or one gif or video)",
		},
		&cli.StringFlag{
			Name:    "quote",
			Aliases: []string{"q"},
			Usage:   "id or URL of the post to quote",
		},
	},
	Action: runPost,
}

func runPost(cctx *cli.Context) error {
	if cctx.Args().Len() > 1 {
		return fmt.Errorf("post text must be a single argument (quote it)")
	}
	text, err := readText(cctx.Args().First(), os.Stdin)
	if err != nil {
		return err
	}
	attachments, err := media.Attachments(cctx.StringSlice("media"))
	if err != nil {
		return err
	}
	spec := model.PostSpec{
		Text:    text,
		Media:   attachments,
		QuoteID: cctx.String("quote"),
	}

	engine, done, err := newEngine(cctx)
	if err != nil {
		return err
	}
	defer done()

	id, err := engine.SubmitPost(cctx.Context, spec)
	if err != nil {
		return err
	}
	fmt.Println(postURL(id))
	return nil
}

// readText returns arg, or all of stdin when arg is "-".
func readText(arg string, stdin io.Reader) (string, error) {
	if arg != stdIOPath {
		return arg, nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

var cmdThread = &cli.Command{
	Name:      "thread",
	Usage:     "publish a thread of replies",
	ArgsUsage: `<text> <text>... | --from <file|->`,
	Description: "Thread files separate posts with a line holding only ---.\n" +
		"A line '@media: path' attaches a file to the post it appears in.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "from",
			Usage: "read the thread from a file, or stdin with '-'",
		},
	},
	Action: runThread,
}

func loadThread(from string, args []string, stdin io.Reader) ([]model.PostSpec, error) {
	var (
		specs []model.PostSpec
		err   error
	)
	switch {
	case from != "" && len(args) > 0:
		return nil, fmt.Errorf("use either inline text arguments or --from, not both")
	case from == stdIOPath:
		b, rerr := io.ReadAll(stdin)
		if rerr != nil {
			return nil, fmt.Errorf("reading stdin: %w", rerr)
		}
		specs, err = thread.Parse(string(b))
	case from != "":
		b, rerr := os.ReadFile(from)
		if rerr != nil {
			return nil, rerr
		}
		specs, err = thread.Parse(string(b))
	case len(args) > 0:
		specs, err = thread.FromTexts(args)
	default:
		return nil, fmt.Errorf("provide post texts as arguments or use --from")
	}
	if err != nil {
		return nil, err
	}
	if len(specs) < 2 {
		return nil, fmt.Errorf("a thread needs at least 2 posts, got %d", len(specs))
	}
	return specs, nil
}

func runThread(cctx *cli.Context) error {
	specs, err := loadThread(cctx.String("from"), cctx.Args().Slice(), os.Stdin)
	if err != nil {
		return err
	}

	engine, done, err := newEngine(cctx)
	if err != nil {
		return err
	}
	defer done()

	ids, err := engine.SubmitThread(cctx.Context, specs)
	for i, id := range ids {
		fmt.Printf("[%d/%d] %s\n", i+1, len(specs), postURL(id))
	}
	if err != nil {
		var te *xerr.ThreadError
		if errors.As(err, &te) && len(te.Posted) > 0 {
			fmt.Fprintf(os.Stderr, "thread is incomplete: %d of %d posted, nothing was deleted\n", len(te.Posted), len(specs))
		}
		return err
	}
	fmt.Printf("thread posted (%d posts)\n", len(ids))
	return nil
}

var cmdCheck = &cli.Command{
	Name:  "check",
	Usage: "show recent posts with metrics, mentions and DMs",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "replies", Usage: "only recent posts and mentions"},
		&cli.BoolFlag{Name: "dms", Usage: "only direct messages"},
		&cli.IntFlag{Name: "limit", Value: 10, Usage: "items per section"},
	},
	Action: runCheck,
}

// tierRestricted reports errors from endpoints the account's API tier
// does not cover.
func tierRestricted(err error) bool {
	return errors.Is(err, xerr.ErrForbidden) || errors.Is(err, xerr.ErrNotAvailable)
}

const skipMsg = "(skipped: your API tier may not support this endpoint)"

func runCheck(cctx *cli.Context) error {
	ctx := cctx.Context
	client, creds, err := loadAPIClient(cctx)
	if err != nil {
		return err
	}
	userID, _, err := creds.Account()
	if err != nil {
		return err
	}
	if userID == "" {
		user, err := client.VerifyCredentials(ctx)
		if err != nil {
			return fmt.Errorf("fetching account: %w", err)
		}
		userID = user.ID
		if err := creds.CacheAccount(user.ID, user.Username); err != nil {
			return err
		}
	}

	all := !cctx.Bool("replies") && !cctx.Bool("dms")
	n := cctx.Int("limit")
	w := os.Stdout

	if all || cctx.Bool("replies") {
		posts, err := client.RecentPosts(ctx, userID, n)
		if err != nil && !tierRestricted(err) {
			return err
		}
		printRecentPosts(w, posts, err)

		mentions, err := client.Mentions(ctx, userID, n)
		if err != nil && !tierRestricted(err) {
			return err
		}
		printMentions(w, mentions, err)
	}
	if all || cctx.Bool("dms") {
		dms, err := client.DMEvents(ctx, n)
		if err != nil && !tierRestricted(err) {
			return err
		}
		printDMs(w, dms, err)
	}
	return nil
}

var cmdHistory = &cli.Command{
	Name:  "history",
	Usage: "list posts made from this machine",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: 20},
		&cli.BoolFlag{Name: "json", Usage: "print JSON"},
	},
	Action: func(cctx *cli.Context) error {
		ledger, err := openLedger(cctx)
		if err != nil {
			return err
		}
		defer ledger.Close()
		recs, err := ledger.RecentPosts(cctx.Context, cctx.Int("limit"))
		if err != nil {
			return err
		}
		if cctx.Bool("json") {
			return printJSON(os.Stdout, recs)
		}
		printHistory(os.Stdout, recs)
		return nil
	},
}
