package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocksLocalhost(t *testing.T) {
	c := New(5 * time.Second)

	_, err := c.Get("https://localhost/api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "localhost")

	_, err = c.Get("https://127.0.0.1/api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked")
}

func TestBlocksNonHTTPSScheme(t *testing.T) {
	c := New(5 * time.Second)

	_, err := c.Get("http://api.telegram.org/bot123/getMe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	_, err = c.Get("file:///etc/passwd")
	require.Error(t, err)
}

func TestBlocksUserinfo(t *testing.T) {
	c := New(5 * time.Second)

	_, err := c.Get("https://evil.com@internal/api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "userinfo")
}

func TestWrapClientAllowsTestServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := WrapClient(srv.Client())
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDoValidatesURL(t *testing.T) {
	c := New(5 * time.Second)
	req, err := http.NewRequest(http.MethodGet, "https://192.168.1.10/metrics", nil)
	require.NoError(t, err)

	_, err = c.Do(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request blocked")
}
