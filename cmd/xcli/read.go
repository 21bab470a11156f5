package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mikequentel/xcli/internal/credentials"
	"github.com/mikequentel/xcli/internal/model"
	"github.com/mikequentel/xcli/internal/session"
)

func readFlags(count int) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: count, Usage: "number of results"},
		&cli.BoolFlag{Name: "json", Usage: "print JSON"},
	}
}

var cmdLogin = &cli.Command{
	Name:  "login",
	Usage: "capture a browser session for reads",
	Description: "Opens Chrome on the x.com login page and waits until the session\n" +
		"cookies appear. The profile is kept, so later sessions can be renewed\n" +
		"without a window. --auth-token and --ct0 store cookies copied by hand.",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "auth-token", Usage: "auth_token cookie value"},
		&cli.StringFlag{Name: "ct0", Usage: "ct0 cookie value"},
		&cli.DurationFlag{Name: "timeout", Value: 5 * time.Minute, Usage: "how long to wait for the login"},
	},
	Action: runLogin,
}

func runLogin(cctx *cli.Context) error {
	ctx := cctx.Context
	creds, err := openCredentials(cctx)
	if err != nil {
		return err
	}

	cookies := credentials.Cookies{AuthToken: cctx.String("auth-token"), CT0: cctx.String("ct0")}
	switch {
	case cookies.Valid():
	case cookies.AuthToken != "" || cookies.CT0 != "":
		return fmt.Errorf("--auth-token and --ct0 go together")
	default:
		fmt.Fprintln(os.Stderr, "log into x.com in the browser window...")
		b := &session.BrowserLogin{
			ProfileDir: browserProfileDir(),
			Timeout:    cctx.Duration("timeout"),
		}
		if cookies, err = b.Extract(ctx); err != nil {
			return err
		}
	}
	if err := creds.SaveSessionCookies(cookies); err != nil {
		return err
	}

	client, done, err := loadSession(cctx)
	if err != nil {
		return err
	}
	defer done()
	me, err := client.Whoami(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as @%s\n", me.Username)
	return nil
}

var cmdLogout = &cli.Command{
	Name:  "logout",
	Usage: "forget the cached browser session",
	Action: func(cctx *cli.Context) error {
		creds, err := openCredentials(cctx)
		if err != nil {
			return err
		}
		if err := creds.ClearSessionCookies(); err != nil {
			return err
		}
		fmt.Println("browser session cleared")
		return nil
	},
}

var cmdWhoami = &cli.Command{
	Name:  "whoami",
	Usage: "show the account of the browser session",
	Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "print JSON"}},
	Action: func(cctx *cli.Context) error {
		client, done, err := loadSession(cctx)
		if err != nil {
			return err
		}
		defer done()
		me, err := client.Whoami(cctx.Context)
		if err != nil {
			return err
		}
		return emitProfile(cctx, me)
	},
}

var cmdSearch = &cli.Command{
	Name:      "search",
	Usage:     "search recent posts",
	ArgsUsage: `<query>`,
	Flags:     readFlags(10),
	Action: func(cctx *cli.Context) error {
		q := cctx.Args().First()
		if q == "" {
			return fmt.Errorf("need a search query")
		}
		return withSession(cctx, func(c *session.Client) error {
			tweets, err := c.Search(cctx.Context, q, cctx.Int("count"))
			if err != nil {
				return err
			}
			return emitTweets(cctx, tweets)
		})
	},
}

var cmdTimeline = &cli.Command{
	Name:  "timeline",
	Usage: "show the home timeline, latest first",
	Flags: readFlags(20),
	Action: func(cctx *cli.Context) error {
		return withSession(cctx, func(c *session.Client) error {
			tweets, err := c.Home(cctx.Context, cctx.Int("count"))
			if err != nil {
				return err
			}
			return emitTweets(cctx, tweets)
		})
	},
}

var cmdRead = &cli.Command{
	Name:      "read",
	Usage:     "show one post",
	ArgsUsage: `<id|url>`,
	Flags:     []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "print JSON"}},
	Action: func(cctx *cli.Context) error {
		ref := cctx.Args().First()
		if ref == "" {
			return fmt.Errorf("need a post id or URL")
		}
		return withSession(cctx, func(c *session.Client) error {
			t, err := c.ReadPost(cctx.Context, ref)
			if err != nil {
				return err
			}
			return emitTweets(cctx, []model.Tweet{t})
		})
	},
}

var cmdBookmarks = &cli.Command{
	Name:  "bookmarks",
	Usage: "show bookmarked posts",
	Flags: readFlags(10),
	Action: func(cctx *cli.Context) error {
		return withSession(cctx, func(c *session.Client) error {
			tweets, err := c.Bookmarks(cctx.Context, cctx.Int("count"))
			if err != nil {
				return err
			}
			return emitTweets(cctx, tweets)
		})
	},
}

var cmdLikes = &cli.Command{
	Name:      "likes",
	Usage:     "show posts liked by an account (default: yours)",
	ArgsUsage: `[@handle]`,
	Flags:     readFlags(10),
	Action: func(cctx *cli.Context) error {
		return withSession(cctx, func(c *session.Client) error {
			id, err := resolveUserID(cctx, c)
			if err != nil {
				return err
			}
			tweets, err := c.Likes(cctx.Context, id, cctx.Int("count"))
			if err != nil {
				return err
			}
			return emitTweets(cctx, tweets)
		})
	},
}

var cmdFollowers = &cli.Command{
	Name:      "followers",
	Usage:     "list followers of an account (default: yours)",
	ArgsUsage: `[@handle]`,
	Flags:     readFlags(20),
	Action: func(cctx *cli.Context) error {
		return withSession(cctx, func(c *session.Client) error {
			id, err := resolveUserID(cctx, c)
			if err != nil {
				return err
			}
			users, err := c.Followers(cctx.Context, id, cctx.Int("count"))
			if err != nil {
				return err
			}
			return emitProfiles(cctx, users)
		})
	},
}

var cmdFollowing = &cli.Command{
	Name:      "following",
	Usage:     "list accounts an account follows (default: yours)",
	ArgsUsage: `[@handle]`,
	Flags:     readFlags(20),
	Action: func(cctx *cli.Context) error {
		return withSession(cctx, func(c *session.Client) error {
			id, err := resolveUserID(cctx, c)
			if err != nil {
				return err
			}
			users, err := c.Following(cctx.Context, id, cctx.Int("count"))
			if err != nil {
				return err
			}
			return emitProfiles(cctx, users)
		})
	},
}

var cmdUser = &cli.Command{
	Name:      "user",
	Usage:     "show a profile and, with --posts, its recent posts",
	ArgsUsage: `<@handle>`,
	Flags: append(readFlags(10),
		&cli.BoolFlag{Name: "posts", Usage: "also list recent posts"},
	),
	Action: func(cctx *cli.Context) error {
		handle := cctx.Args().First()
		if handle == "" {
			return fmt.Errorf("need a handle")
		}
		return withSession(cctx, func(c *session.Client) error {
			if cctx.Bool("posts") {
				tweets, err := c.UserPosts(cctx.Context, handle, cctx.Int("count"))
				if err != nil {
					return err
				}
				return emitTweets(cctx, tweets)
			}
			p, err := c.UserByScreenName(cctx.Context, handle)
			if err != nil {
				return err
			}
			return emitProfile(cctx, p)
		})
	},
}

var cmdMentions = &cli.Command{
	Name:      "mentions",
	Usage:     "search posts addressed to an account (default: yours)",
	ArgsUsage: `[@handle]`,
	Flags:     readFlags(10),
	Action: func(cctx *cli.Context) error {
		return withSession(cctx, func(c *session.Client) error {
			handle := cctx.Args().First()
			if handle == "" {
				me, err := c.Whoami(cctx.Context)
				if err != nil {
					return err
				}
				handle = me.Username
			}
			tweets, err := c.Mentions(cctx.Context, handle, cctx.Int("count"))
			if err != nil {
				return err
			}
			return emitTweets(cctx, tweets)
		})
	},
}

var cmdRefreshIDs = &cli.Command{
	Name:  "refresh-ids",
	Usage: "rediscover GraphQL query ids from the web client",
	Action: func(cctx *cli.Context) error {
		ledger, err := openLedger(cctx)
		if err != nil {
			return err
		}
		defer ledger.Close()
		found, err := session.NewResolver(session.WithQueryIDCache(ledger)).RefreshAll(cctx.Context)
		if err != nil {
			return err
		}
		for _, op := range session.Operations() {
			id, ok := found[op]
			if !ok {
				id = "(not found, using built-in ids)"
			}
			fmt.Printf("%-20s %s\n", op, id)
		}
		return nil
	},
}

func withSession(cctx *cli.Context, fn func(c *session.Client) error) error {
	client, done, err := loadSession(cctx)
	if err != nil {
		return err
	}
	defer done()
	return fn(client)
}

// resolveUserID maps the optional handle argument to an account id; with
// no argument it is the session's own account.
func resolveUserID(cctx *cli.Context, c *session.Client) (string, error) {
	if handle := cctx.Args().First(); handle != "" {
		p, err := c.UserByScreenName(cctx.Context, handle)
		if err != nil {
			return "", err
		}
		return p.ID, nil
	}
	me, err := c.Whoami(cctx.Context)
	if err != nil {
		return "", err
	}
	return me.ID, nil
}

func emitTweets(cctx *cli.Context, tweets []model.Tweet) error {
	if cctx.Bool("json") {
		return printJSON(os.Stdout, tweets)
	}
	printTweets(os.Stdout, tweets)
	return nil
}

func emitProfiles(cctx *cli.Context, users []model.Profile) error {
	if cctx.Bool("json") {
		return printJSON(os.Stdout, users)
	}
	printProfiles(os.Stdout, users)
	return nil
}

func emitProfile(cctx *cli.Context, p model.Profile) error {
	if cctx.Bool("json") {
		return printJSON(os.Stdout, p)
	}
	printProfile(os.Stdout, p)
	return nil
}
