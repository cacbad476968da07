package identityapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bulk-record-processor/internal/apperr"
	"github.com/example/bulk-record-processor/internal/httpapi"
	"github.com/example/bulk-record-processor/internal/models"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	transport, err := httpapi.New("identity", srv.URL+"/v3/users", zerolog.New(io.Discard))
	require.NoError(t, err)
	return New(transport, zerolog.New(io.Discard))
}

func TestLookupByEmail(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/users", r.URL.Path)
		switch r.URL.Query().Get("filter") {
		case "email=alice@example.com":
			_, _ = w.Write([]byte(`{"result":{"content":[{"id":40051,"handle":"alice","email":"alice@example.com"}]}}`))
		case "email=dup@example.com":
			_, _ = w.Write([]byte(`{"result":{"content":[{"id":1},{"id":2}]}}`))
		default:
			_, _ = w.Write([]byte(`{"result":{"content":[]}}`))
		}
	})
	ctx := context.Background()

	user, err := client.LookupByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "40051", user.ID)
	assert.Equal(t, "alice", user.Handle)

	user, err = client.LookupByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)

	_, err = client.LookupByEmail(ctx, "dup@example.com")
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateWrapsParam(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Param map[string]any `json:"param"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bob", body.Param["handle"])
		assert.Equal(t, true, body.Param["active"])
		assert.Equal(t, map[string]any{"name": "Germany"}, body.Param["country"])
		_, _ = w.Write([]byte(`{"result":{"content":{"id":"77","handle":"bob","email":"bob@example.com"}}}`))
	})

	user, err := client.Create(context.Background(), models.NewExternalUser{
		Handle:      "bob",
		Email:       "bob@example.com",
		CountryName: "Germany",
	})
	require.NoError(t, err)
	assert.Equal(t, "77", user.ID)
}

func TestCreateWithoutIDFails(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"content":{}}}`))
	})

	_, err := client.Create(context.Background(), models.NewExternalUser{Handle: "bob"})
	require.ErrorIs(t, err, apperr.ErrUpstream)
}
