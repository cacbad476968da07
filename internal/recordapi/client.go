// Package recordapi talks to the primary record system: users and their
// skill, achievement and attribute sub-records, plus the lookup catalogues.
package recordapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/bulk-record-processor/internal/apperr"
	"github.com/example/bulk-record-processor/internal/httpapi"
	"github.com/example/bulk-record-processor/internal/models"
)

// Transport is the subset of httpapi.Client the record client needs.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
}

var _ Transport = (*httpapi.Client)(nil)

// Client implements lookups and writes against the record API.
type Client struct {
	transport Transport
	logger    zerolog.Logger
}

// New constructs a Client.
func New(transport Transport, logger zerolog.Logger) *Client {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Client{transport: transport, logger: logger}
}

// LookupSingle lists resource filtered by filter and expects one match. Zero
// matches yield (nil, nil) when optional, NotFound otherwise. Several matches
// are narrowed to the records whose filter fields equal the filter exactly;
// anything but one survivor is a Conflict.
func (c *Client) LookupSingle(ctx context.Context, resource string, filter map[string]string, optional bool) (models.Record, error) {
	query := url.Values{}
	for k, v := range filter {
		query.Set(k, v)
	}

	var records []models.Record
	if err := c.transport.Get(ctx, resource, query, &records); err != nil {
		return nil, err
	}

	switch len(records) {
	case 0:
		if optional {
			return nil, nil
		}
		return nil, apperr.NotFound("%s with %s not found", resource, describe(filter))
	case 1:
		return records[0], nil
	}

	var exact []models.Record
	for _, rec := range records {
		if matches(rec, filter) {
			exact = append(exact, rec)
		}
	}
	if len(exact) == 1 {
		return exact[0], nil
	}

	c.logger.Warn().
		Str("resource", resource).
		Str("filter", describe(filter)).
		Int("matches", len(records)).
		Msg("recordapi: ambiguous lookup")
	return nil, apperr.Conflict("%d %s records match %s", len(records), resource, describe(filter))
}

// Create posts body to resource and returns the created record.
func (c *Client) Create(ctx context.Context, resource string, body any) (models.Record, error) {
	var raw json.RawMessage
	if err := c.transport.Post(ctx, resource, body, &raw); err != nil {
		return nil, err
	}
	return decodeRecord(raw, "POST "+resource)
}

// Update patches resource/id with body and returns the updated record.
func (c *Client) Update(ctx context.Context, resource, id string, body any) (models.Record, error) {
	path := strings.TrimRight(resource, "/") + "/" + url.PathEscape(id)
	var raw json.RawMessage
	if err := c.transport.Patch(ctx, path, body, &raw); err != nil {
		return nil, err
	}
	return decodeRecord(raw, "PATCH "+path)
}

// decodeRecord accepts either an object or a one-element array; some
// deployments wrap created records in an array.
func decodeRecord(raw json.RawMessage, call string) (models.Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return models.Record{}, nil
	}
	if raw[0] == '[' {
		var list []models.Record
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, apperr.Upstream(err, "%s: decode response", call)
		}
		if len(list) == 0 {
			return models.Record{}, nil
		}
		return list[0], nil
	}
	var rec models.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apperr.Upstream(err, "%s: decode response", call)
	}
	return rec, nil
}

func matches(rec models.Record, filter map[string]string) bool {
	for k, v := range filter {
		if rec.String(k) != v {
			return false
		}
	}
	return true
}

func describe(filter map[string]string) string {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, filter[k]))
	}
	return strings.Join(parts, ", ")
}
