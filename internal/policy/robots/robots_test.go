package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleRobots = `User-agent: *
Disallow: /private/
Crawl-delay: 2
`

func newRobotsServer(t *testing.T, body string, status int, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAllowedStrictMode(t *testing.T) {
	t.Parallel()

	srv := newRobotsServer(t, sampleRobots, http.StatusOK, nil)
	e := New(Config{Mode: ModeStrict, UserAgent: "webharvest-test"}, nil)

	ctx := context.Background()
	require.True(t, e.Allowed(ctx, srv.URL+"/public/page"))
	require.False(t, e.Allowed(ctx, srv.URL+"/private/page"))
	require.False(t, e.Allowed(ctx, srv.URL+"/private/deep/page?x=1"))
}

func TestAllowedIgnoreModeSkipsFetch(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newRobotsServer(t, sampleRobots, http.StatusOK, &hits)
	e := New(Config{Mode: ModeIgnore, UserAgent: "webharvest-test"}, nil)

	require.True(t, e.Allowed(context.Background(), srv.URL+"/private/page"))
	require.Equal(t, int64(0), hits.Load())
}

func TestAllowedAllowListBypassesDirectives(t *testing.T) {
	t.Parallel()

	srv := newRobotsServer(t, sampleRobots, http.StatusOK, nil)
	host := mustHostname(t, srv.URL)
	e := New(Config{
		Mode:             ModeAllowList,
		AllowListDomains: []string{host},
		UserAgent:        "webharvest-test",
	}, nil)

	require.True(t, e.Allowed(context.Background(), srv.URL+"/private/page"))

	delay, ok := e.CrawlDelay(context.Background(), srv.URL+"/private/page")
	require.False(t, ok)
	require.Zero(t, delay)
}

func TestAllowedPermissiveOnError(t *testing.T) {
	t.Parallel()

	srv := newRobotsServer(t, "", http.StatusInternalServerError, nil)

	permissive := New(Config{Mode: ModeStrict, UserAgent: "ua", PermissiveOnError: true}, nil)
	require.True(t, permissive.Allowed(context.Background(), srv.URL+"/anything"))

	denying := New(Config{Mode: ModeStrict, UserAgent: "ua", PermissiveOnError: false}, nil)
	require.False(t, denying.Allowed(context.Background(), srv.URL+"/anything"))
}

func TestAllowedCachesPerHost(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newRobotsServer(t, sampleRobots, http.StatusOK, &hits)
	e := New(Config{Mode: ModeStrict, UserAgent: "ua", TTL: time.Hour}, nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		e.Allowed(ctx, srv.URL+"/public/page")
	}
	require.Equal(t, int64(1), hits.Load())
}

func TestAllowedRefetchesAfterTTL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := newRobotsServer(t, sampleRobots, http.StatusOK, &hits)
	e := New(Config{Mode: ModeStrict, UserAgent: "ua", TTL: 10 * time.Millisecond}, nil)

	ctx := context.Background()
	e.Allowed(ctx, srv.URL+"/public/page")
	time.Sleep(25 * time.Millisecond)
	e.Allowed(ctx, srv.URL+"/public/page")
	require.Equal(t, int64(2), hits.Load())
}

func TestCrawlDelayReported(t *testing.T) {
	t.Parallel()

	srv := newRobotsServer(t, sampleRobots, http.StatusOK, nil)
	e := New(Config{Mode: ModeStrict, UserAgent: "ua"}, nil)

	delay, ok := e.CrawlDelay(context.Background(), srv.URL+"/page")
	require.True(t, ok)
	require.Equal(t, 2*time.Second, delay)
}

func TestCrawlDelayAbsent(t *testing.T) {
	t.Parallel()

	srv := newRobotsServer(t, "User-agent: *\nDisallow:\n", http.StatusOK, nil)
	e := New(Config{Mode: ModeStrict, UserAgent: "ua"}, nil)

	_, ok := e.CrawlDelay(context.Background(), srv.URL+"/page")
	require.False(t, ok)
}

func TestAllowedUnparseableURL(t *testing.T) {
	t.Parallel()

	e := New(Config{Mode: ModeStrict, UserAgent: "ua"}, nil)
	require.False(t, e.Allowed(context.Background(), "http://bad url\x7f"))
}

func mustHostname(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Hostname()
}
