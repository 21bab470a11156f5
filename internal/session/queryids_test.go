package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikequentel/xcli/internal/store"
)

const bundleJS = `e.exports={queryId:"AAAAAAAAAAAAAAAAAAAAAA",operationName:"SearchTimeline",operationType:"query"};` +
	`e.exports={queryId: "BBBBBBBBBBBBBBBBBBBBBB", operationName: "TweetDetail"};` +
	`e.exports={operationName:"Bookmarks",operationType:"query",queryId:"CCCCCCCCCCCCCCCCCCCCCC"};` +
	`e.exports={queryId:"DDDDDDDDDDDDDDDDDDDDDD",operationName:"SomethingElse"};` +
	`e.exports={queryId:"EEEEEEEEEEEEEEEEEEEEEE",operationName:"SearchTimeline"};`

// newBundleServer serves a page naming two bundles, once by script tag and
// once by preload link, next to an unrelated script.
func newBundleServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head>
<script src="/responsive-web/client-web/main.abc.js"></script>
<script src="/responsive-web/client-web/main.abc.js"></script>
<script src="/static/analytics.js"></script>
<link rel="preload" href="/responsive-web/client-web/vendor.def.js">
</head></html>`)
	})
	mux.HandleFunc("/responsive-web/client-web/main.abc.js", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, bundleJS)
	})
	mux.HandleFunc("/responsive-web/client-web/vendor.def.js", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `var x=1;`)
	})
	return srv
}

func TestBundleURLs(t *testing.T) {
	page := `<script src="/responsive-web/client-web/main.js"></script>
<script src="https://cdn.example/other.js"></script>
<script src="/responsive-web/client-web/main.js"></script>
<script>load("https://abs.twimg.com/responsive-web/client-web/lazy.js")</script>`

	urls, err := bundleURLs("https://x.com/", page)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://x.com/responsive-web/client-web/main.js",
		"https://abs.twimg.com/responsive-web/client-web/lazy.js",
	}, urls)
}

func TestExtractQueryIDs(t *testing.T) {
	found := map[string]string{"TweetDetail": "KEEPKEEPKEEPKEEPKEEP"}
	extractQueryIDs(bundleJS, found)

	assert.Equal(t, "AAAAAAAAAAAAAAAAAAAAAA", found["SearchTimeline"], "first id wins")
	assert.Equal(t, "KEEPKEEPKEEPKEEPKEEP", found["TweetDetail"])
	assert.Equal(t, "CCCCCCCCCCCCCCCCCCCCCC", found["Bookmarks"])
	assert.NotContains(t, found, "SomethingElse")
}

func TestResolver_IDsWithoutCache(t *testing.T) {
	r := NewResolver()
	assert.Equal(t, fallbackQueryIDs["TweetDetail"], r.IDs(context.Background(), "TweetDetail"))
	assert.Empty(t, r.IDs(context.Background(), "NoSuchOperation"))
}

func TestResolver_RefreshCachesDiscoveries(t *testing.T) {
	srv := newBundleServer(t)
	db, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	r := NewResolver(WithPageURL(srv.URL+"/"), WithQueryIDCache(db), WithResolverHTTPClient(srv.Client()))
	ctx := context.Background()

	ids, err := r.Refresh(ctx, "SearchTimeline")
	require.NoError(t, err)
	assert.Equal(t, append([]string{"AAAAAAAAAAAAAAAAAAAAAA"}, fallbackQueryIDs["SearchTimeline"]...), ids)

	cached, err := db.QueryIDs(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"BBBBBBBBBBBBBBBBBBBBBB"}, cached["TweetDetail"])

	// cached ids are tried before the fallbacks without any network
	srv.Close()
	assert.Equal(t, []string{"CCCCCCCCCCCCCCCCCCCCCC", fallbackQueryIDs["Bookmarks"][0], fallbackQueryIDs["Bookmarks"][1]},
		r.IDs(ctx, "Bookmarks"))
}

func TestResolver_DiscoverPageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := NewResolver(WithPageURL(srv.URL), WithResolverHTTPClient(srv.Client()))
	ids, err := r.Refresh(context.Background(), "Likes")
	require.Error(t, err)
	assert.Equal(t, fallbackQueryIDs["Likes"], ids)
}

func TestMerge(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, merge([]string{"a", "", "b"}, []string{"b", "c", "a"}))
	assert.Nil(t, merge(nil, nil))
}
