package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebFetchExtractsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><style>body{}</style><script>var x=1;</script></head>
<body><h1>Title</h1><p>Hello &amp; welcome</p></body></html>`))
	}))
	defer srv.Close()

	out, err := NewWebFetch().Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.Contains(t, out, "Title Hello & welcome")
	assert.NotContains(t, out, "var x")
	assert.NotContains(t, out, "body{}")
}

func TestWebFetchRejectsBadURLs(t *testing.T) {
	f := NewWebFetch()
	for _, u := range []string{"", "file:///etc/passwd", "ftp://example.com", "http://"} {
		_, err := f.Execute(context.Background(), map[string]any{"url": u})
		assert.Error(t, err, u)
	}
}

func TestWebFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewWebFetch().Execute(context.Background(), map[string]any{"url": srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWebSearchWithoutKey(t *testing.T) {
	_, err := NewWebSearch("", NewSearchLimiter(1)).Execute(context.Background(), map[string]any{"query": "go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
