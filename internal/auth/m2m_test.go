package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSourceRequiresSettings(t *testing.T) {
	_, err := TokenSource(context.Background(), Config{ClientID: "id", ClientSecret: "secret"})
	assert.Error(t, err)

	_, err = TokenSource(context.Background(), Config{TokenURL: "http://issuer/token"})
	assert.Error(t, err)
}

func TestHTTPClientAttachesCachedToken(t *testing.T) {
	var tokenCalls atomic.Int32
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "https://m2m.example.com/", r.PostForm.Get("audience"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`))
	}))
	defer issuer.Close()

	var (
		mu   sync.Mutex
		seen []string
	)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
	}))
	defer api.Close()

	ts, err := TokenSource(context.Background(), Config{
		TokenURL:     issuer.URL,
		Audience:     "https://m2m.example.com/",
		ClientID:     "id",
		ClientSecret: "secret",
	})
	require.NoError(t, err)

	client := NewHTTPClient(ts, time.Second)
	for i := 0; i < 2; i++ {
		resp, err := client.Get(api.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Bearer tok-1", "Bearer tok-1"}, seen)
	assert.Equal(t, int32(1), tokenCalls.Load())
}

func TestProxyURLWins(t *testing.T) {
	var hits atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"via-proxy","token_type":"Bearer","expires_in":60}`))
	}))
	defer proxy.Close()

	ts, err := TokenSource(context.Background(), Config{
		TokenURL:     "http://127.0.0.1:1/unreachable",
		ProxyURL:     proxy.URL,
		ClientID:     "id",
		ClientSecret: "secret",
	})
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "via-proxy", tok.AccessToken)
	assert.Equal(t, int32(1), hits.Load())
}
