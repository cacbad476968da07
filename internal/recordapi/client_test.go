package recordapi

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
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	transport, err := httpapi.New("records", srv.URL, zerolog.New(io.Discard))
	require.NoError(t, err)
	return New(transport, zerolog.New(io.Discard))
}

func TestLookupSingle(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("name") {
		case "one":
			_, _ = w.Write([]byte(`[{"id":"1","name":"one"}]`))
		case "fuzzy":
			_, _ = w.Write([]byte(`[{"id":"1","name":"fuzzy match"},{"id":"2","name":"fuzzy"}]`))
		case "dup":
			_, _ = w.Write([]byte(`[{"id":"1","name":"dup"},{"id":"2","name":"dup"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	})
	ctx := context.Background()

	rec, err := client.LookupSingle(ctx, "skills", map[string]string{"name": "one"}, false)
	require.NoError(t, err)
	assert.Equal(t, "1", rec.ID())

	rec, err = client.LookupSingle(ctx, "skills", map[string]string{"name": "fuzzy"}, false)
	require.NoError(t, err)
	assert.Equal(t, "2", rec.ID())

	_, err = client.LookupSingle(ctx, "skills", map[string]string{"name": "dup"}, false)
	require.ErrorIs(t, err, apperr.ErrConflict)

	rec, err = client.LookupSingle(ctx, "skills", map[string]string{"name": "none"}, true)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = client.LookupSingle(ctx, "skills", map[string]string{"name": "none"}, false)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Contains(t, err.Error(), `skills with name="none" not found`)
}

func TestCreateAcceptsArrayResponse(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id":"u-9","handle":"alice"}]`))
	})

	rec, err := client.Create(context.Background(), "users", map[string]string{"handle": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "u-9", rec.ID())
}

func TestUpdatePatchesByID(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/users/u-1/skills/s-1", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "5", body["metricValue"])
		_, _ = w.Write([]byte(`{"userId":"u-1","skillId":"s-1","metricValue":"5"}`))
	})

	rec, err := client.Update(context.Background(), "users/u-1/skills", "s-1", map[string]string{"metricValue": "5"})
	require.NoError(t, err)
	assert.Equal(t, "s-1", rec.String("skillId"))
}

func TestUpstreamErrorPropagates(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.LookupSingle(context.Background(), "users", map[string]string{"handle": "x"}, true)
	require.ErrorIs(t, err, apperr.ErrUpstream)
}
