package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strips fragment", "https://example.com/page#section-2", "https://example.com/page"},
		{"drops default https port", "https://example.com:443/x", "https://example.com/x"},
		{"drops default http port", "http://example.com:80/x", "http://example.com/x"},
		{"keeps explicit port", "https://example.com:8443/x", "https://example.com:8443/x"},
		{"collapses duplicate slashes", "https://example.com//a///b", "https://example.com/a/b"},
		{"preserves query", "https://example.com/search?q=go&page=2", "https://example.com/search?q=go&page=2"},
		{"unparseable returned unchanged", "http://bad url\x7f", "http://bad url\x7f"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Canonicalize(tc.in, false))
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"HTTP://Example.com:80//a//b?x=1#frag",
		"https://sub.example.org/path/",
		"http://example.com",
	}
	for _, in := range inputs {
		once := Canonicalize(in, true)
		require.Equal(t, once, Canonicalize(once, true))
	}
}

func TestCanonicalizeForceHTTPS(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://example.com/x", Canonicalize("http://example.com/x", true))
	require.Equal(t, "https://example.com/x", Canonicalize("https://example.com/x", true))
}

func TestFiltersDomainGate(t *testing.T) {
	t.Parallel()

	f, err := NewFilters([]string{"example.com"}, nil, nil)
	require.NoError(t, err)

	require.True(t, f.Allow("https://example.com/page"))
	require.True(t, f.Allow("https://docs.example.com/page"))
	require.False(t, f.Allow("https://example.org/page"))
	require.False(t, f.Allow("https://notexample.com/page"))
	require.False(t, f.Allow("ftp://example.com/file"))
	require.False(t, f.Allow("mailto:someone@example.com"))
}

func TestFiltersIncludeExclude(t *testing.T) {
	t.Parallel()

	f, err := NewFilters(nil, []string{"/docs/*"}, []string{"/docs/private/*"})
	require.NoError(t, err)

	require.True(t, f.Allow("https://example.com/docs/intro"))
	require.False(t, f.Allow("https://example.com/blog/post"))
	require.False(t, f.Allow("https://example.com/docs/private/key"))
}

func TestFiltersMatchAgainstQuery(t *testing.T) {
	t.Parallel()

	f, err := NewFilters(nil, nil, []string{`\?print=1`})
	require.NoError(t, err)

	require.True(t, f.Allow("https://example.com/page"))
	require.False(t, f.Allow("https://example.com/page?print=1"))
}

func TestFiltersBadPatternFails(t *testing.T) {
	t.Parallel()

	_, err := NewFilters(nil, []string{"[unclosed"}, nil)
	require.Error(t, err)
}

func TestSameOrSubdomain(t *testing.T) {
	t.Parallel()

	require.True(t, SameOrSubdomain("example.com", []string{"example.com"}))
	require.True(t, SameOrSubdomain("a.b.example.com", []string{"example.com"}))
	require.False(t, SameOrSubdomain("example.com.evil.org", []string{"example.com"}))
	require.False(t, SameOrSubdomain("example.com", nil))
}
