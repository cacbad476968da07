// Package identityapi talks to the secondary identity system that owns
// organisation members' login profiles.
package identityapi

import (
	"context"
	"net/url"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/bulk-record-processor/internal/apperr"
	"github.com/example/bulk-record-processor/internal/models"
)

// Transport is the subset of httpapi.Client the identity client needs.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// envelope mirrors the identity API's {"result":{"content":...}} wrapping.
type envelope[T any] struct {
	Result struct {
		Content T `json:"content"`
	} `json:"result"`
}

type newUserBody struct {
	Handle     string     `json:"handle"`
	FirstName  string     `json:"firstName,omitempty"`
	LastName   string     `json:"lastName,omitempty"`
	Email      string     `json:"email"`
	Active     bool       `json:"active"`
	Country    country    `json:"country"`
	Profile    *profile   `json:"profile,omitempty"`
	Credential credential `json:"credential"`
}

type country struct {
	Name string `json:"name,omitempty"`
}

type profile struct {
	ProviderType string `json:"providerType,omitempty"`
	Provider     string `json:"provider,omitempty"`
	UserID       string `json:"userId,omitempty"`
}

type credential struct {
	Password string `json:"password"`
}

// Client implements external user lookup and creation.
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

// LookupByEmail returns the user registered with email, or nil when there is none.
func (c *Client) LookupByEmail(ctx context.Context, email string) (*models.ExternalUser, error) {
	var resp envelope[[]models.Record]
	query := url.Values{"filter": {"email=" + email}}
	if err := c.transport.Get(ctx, "", query, &resp); err != nil {
		return nil, err
	}

	users := resp.Result.Content
	switch len(users) {
	case 0:
		return nil, nil
	case 1:
		return toUser(users[0]), nil
	default:
		return nil, apperr.Conflict("%d identity users registered with email %q", len(users), email)
	}
}

// Create registers a verified user in the identity system.
func (c *Client) Create(ctx context.Context, user models.NewExternalUser) (*models.ExternalUser, error) {
	body := newUserBody{
		Handle:    user.Handle,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Active:    true,
		Country:   country{Name: user.CountryName},
	}
	if user.ProviderType != "" || user.Provider != "" || user.UserID != "" {
		body.Profile = &profile{ProviderType: user.ProviderType, Provider: user.Provider, UserID: user.UserID}
	}

	var resp envelope[models.Record]
	if err := c.transport.Post(ctx, "", map[string]any{"param": body}, &resp); err != nil {
		return nil, err
	}

	created := toUser(resp.Result.Content)
	if created.ID == "" {
		return nil, apperr.Upstream(nil, "identity user %q created without id", user.Handle)
	}
	c.logger.Debug().Str("handle", created.Handle).Str("external_id", created.ID).Msg("identityapi: user created")
	return created, nil
}

func toUser(rec models.Record) *models.ExternalUser {
	return &models.ExternalUser{
		ID:     rec.ID(),
		Handle: rec.String("handle"),
		Email:  rec.String("email"),
	}
}
