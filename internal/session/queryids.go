package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mikequentel/xcli/internal/transport"
)

// DefaultQueryIDTTL is how long discovered ids are trusted.
const DefaultQueryIDTTL = 24 * time.Hour

// fallbackQueryIDs are known-good ids per operation, tried after any
// discovered ones. The web client rotates them without notice.
var fallbackQueryIDs = map[string][]string{
	"SearchTimeline":     {"M1jEez78PEfVfbQLvlWMvQ", "6AAys3t42mosm_yTI_QENg"},
	"HomeTimeline":       {"edseUwk9sP5Phz__9TIRnA"},
	"HomeLatestTimeline": {"iOEZpOdfekFsxSlPQCQtPg"},
	"TweetDetail":        {"97JF30KziU00483E_8elBA", "_NvJCnIjOW__EP5-RF197A"},
	"Bookmarks":          {"RV1g3b8n_SGOHwkqKYSCFw", "tmd4ifV8RHltzn8ymGg1aw"},
	"Likes":              {"JR2gceKucIKcVNB_9JkhsA", "ETJflBunfqNa1uE1mBPCaw"},
	"Following":          {"BEkNpEt5pNETESoqMsTEGA"},
	"Followers":          {"kuFUYP9eV1FPoEy4N-pi7w"},
	"UserByScreenName":   {"xmU6X_CKHnXF_A26BfMEMQ", "qRednkZG-rn1P6b48NINmQ"},
	"UserTweets":         {"H8OOoI-5ZE4NxgRr8lfyPg", "CdG2Vuc1v6F5JyEngGpxVw"},
}

// Minified bundles spell the pair in either order and with or without
// spaces.
var queryIDPatterns = []struct {
	re           *regexp.Regexp
	idIdx, opIdx int
}{
	{regexp.MustCompile(`\{queryId:"([a-zA-Z0-9_-]{15,30})",operationName:"([A-Za-z]+)"`), 1, 2},
	{regexp.MustCompile(`\{queryId:\s*"([a-zA-Z0-9_-]{15,30})",\s*operationName:\s*"([A-Za-z]+)"`), 1, 2},
	{regexp.MustCompile(`operationName:"([A-Za-z]+)"[^}]*queryId:"([a-zA-Z0-9_-]{15,30})"`), 2, 1},
}

var inlineBundleRe = regexp.MustCompile(`"(https://abs\.twimg\.com/responsive-web/client-web[^"]+\.js)"`)

// QueryIDCache persists discovered ids. *store.Store implements it.
type QueryIDCache interface {
	QueryIDs(ctx context.Context, maxAge time.Duration) (map[string][]string, error)
	SaveQueryIDs(ctx context.Context, ids map[string][]string) error
}

// Resolver supplies the ids to try for an operation: cached discoveries
// first, then the built-in fallbacks.
type Resolver struct {
	http    transport.Doer
	cache   QueryIDCache
	pageURL string
	ttl     time.Duration
	logger  *slog.Logger
}

type ResolverOption func(*Resolver)

func WithQueryIDCache(c QueryIDCache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

// WithPageURL sets the page whose script tags name the JS bundles.
func WithPageURL(u string) ResolverOption {
	return func(r *Resolver) { r.pageURL = u }
}

func WithResolverHTTPClient(d transport.Doer) ResolverOption {
	return func(r *Resolver) { r.http = d }
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		pageURL: transport.DefaultWebBase,
		ttl:     DefaultQueryIDTTL,
		logger:  slog.Default().With("component", "queryids"),
	}
	for _, o := range opts {
		o(r)
	}
	if r.http == nil {
		r.http = transport.NewRetryingClient(transport.WithLogger(r.logger))
	}
	return r
}

// IDs is the fast path: no network.
func (r *Resolver) IDs(ctx context.Context, op string) []string {
	var cached []string
	if r.cache != nil {
		all, err := r.cache.QueryIDs(ctx, r.ttl)
		if err != nil {
			r.logger.Debug("query id cache unreadable", "err", err)
		}
		cached = all[op]
	}
	return merge(cached, fallbackQueryIDs[op])
}

// Refresh rediscovers every operation's id, caches the result and returns
// the ids to try for op.
func (r *Resolver) Refresh(ctx context.Context, op string) ([]string, error) {
	found, err := r.RefreshAll(ctx)
	if err != nil {
		return fallbackQueryIDs[op], err
	}
	var fresh []string
	if id, ok := found[op]; ok {
		fresh = []string{id}
	}
	return merge(fresh, fallbackQueryIDs[op]), nil
}

// RefreshAll rediscovers the ids and caches what it found.
func (r *Resolver) RefreshAll(ctx context.Context) (map[string]string, error) {
	found, err := r.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if len(found) > 0 && r.cache != nil {
		ids := make(map[string][]string, len(found))
		for k, v := range found {
			ids[k] = []string{v}
		}
		if err := r.cache.SaveQueryIDs(ctx, ids); err != nil {
			r.logger.Warn("could not cache query ids", "err", err)
		}
	}
	return found, nil
}

// Operations lists the GraphQL operations the client knows how to call.
func Operations() []string {
	ops := make([]string, 0, len(fallbackQueryIDs))
	for op := range fallbackQueryIDs {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Discover fetches the web client page, follows its JS bundles and returns
// the first id seen for each known operation.
func (r *Resolver) Discover(ctx context.Context) (map[string]string, error) {
	page, err := r.fetch(ctx, r.pageURL)
	if err != nil {
		return nil, err
	}
	bundles, err := bundleURLs(r.pageURL, page)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("scanning bundles", "count", len(bundles))

	found := make(map[string]string)
	for _, b := range bundles {
		js, err := r.fetch(ctx, b)
		if err != nil {
			r.logger.Debug("bundle fetch failed", "url", b, "err", err)
			continue
		}
		extractQueryIDs(js, found)
		if len(found) >= len(fallbackQueryIDs) {
			break
		}
	}
	return found, nil
}

func (r *Resolver) fetch(ctx context.Context, u string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", transport.UserAgent)
	resp, err := r.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: HTTP %d", u, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	return string(b), err
}

// bundleURLs lists the client-web bundles a page references, in document
// order and without repeats.
func bundleURLs(pageURL, html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var out []string
	seen := make(map[string]bool)
	add := func(ref string) {
		u, err := base.Parse(ref)
		if err != nil {
			return
		}
		s := u.String()
		if !strings.Contains(u.Path, "/responsive-web/client-web") || !strings.HasSuffix(u.Path, ".js") || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("src", ""))
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		add(s.AttrOr("href", ""))
	})
	// some bundles are only named inside inline loader scripts
	doc.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		for _, m := range inlineBundleRe.FindAllStringSubmatch(s.Text(), -1) {
			add(m[1])
		}
	})
	return out, nil
}

// extractQueryIDs adds to found every known operation in js not already
// present.
func extractQueryIDs(js string, found map[string]string) {
	for _, p := range queryIDPatterns {
		for _, m := range p.re.FindAllStringSubmatch(js, -1) {
			op, id := m[p.opIdx], m[p.idIdx]
			if _, known := fallbackQueryIDs[op]; !known {
				continue
			}
			if _, dup := found[op]; !dup {
				found[op] = id
			}
		}
	}
}

func merge(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range lists {
		for _, id := range l {
			if id != "" && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
