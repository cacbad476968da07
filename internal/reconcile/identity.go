package reconcile

import (
	"context"
	"errors"

	"github.com/example/bulk-record-processor/internal/apperr"
	"github.com/example/bulk-record-processor/internal/models"
	"github.com/example/bulk-record-processor/internal/record"
	"github.com/example/bulk-record-processor/internal/util"
)

const (
	usersResource    = "users"
	linkCollection   = "externalProfiles"
	linkOrganization = "organizationId"
	linkExternalID   = "externalId"
)

var errNoIdentitySystem = errors.New("reconcile: organization batch without identity system")

// ResolveOrCreateUser returns the primary system id of the row's user.
//
// Without an organization the user is looked up by handle. With one, the
// identity system is searched by email first and the primary user is found
// through the returned handle; the organization link record is written when
// it is missing. Missing users are created only under CreateOnMissing. A
// partial creation (identity user created, primary user not) is not undone.
func (r *Reconciler) ResolveOrCreateUser(ctx context.Context, row *record.Row, organizationID string) (string, error) {
	if organizationID == "" {
		return r.resolveByHandle(ctx, row)
	}
	return r.resolveInOrganization(ctx, row, organizationID)
}

func (r *Reconciler) resolveByHandle(ctx context.Context, row *record.Row) (string, error) {
	if row.Handle == "" {
		return "", apperr.Validation("handle is required")
	}

	userID, err := r.lookupUser(ctx, row.Handle)
	if err != nil || userID != "" {
		return userID, err
	}
	if r.policy != CreateOnMissing {
		return "", apperr.NotFound("user with handle %s not found", row.Handle)
	}
	return r.createUser(ctx, row.Handle)
}

func (r *Reconciler) resolveInOrganization(ctx context.Context, row *record.Row, organizationID string) (string, error) {
	if r.users == nil {
		return "", errNoIdentitySystem
	}
	if row.Email == "" {
		return "", apperr.Validation("email is required")
	}
	email, err := util.NormalizeEmail(row.Email)
	if err != nil {
		return "", apperr.Validation("email %q: %v", row.Email, err)
	}

	ext, err := r.users.LookupByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	handle := row.Handle
	if ext != nil && ext.Handle != "" {
		handle = ext.Handle
	}

	var userID string
	if handle != "" {
		if userID, err = r.lookupUser(ctx, handle); err != nil {
			return "", err
		}
	}

	if ext != nil && userID != "" {
		return userID, r.ensureLink(ctx, userID, organizationID, ext.ID)
	}
	if r.policy != CreateOnMissing {
		return "", apperr.NotFound("user with email %s not found", row.Email)
	}

	if ext == nil {
		if row.Handle == "" {
			return "", apperr.Validation("handle is required to create user with email %s", row.Email)
		}
		ext, err = r.users.Create(ctx, models.NewExternalUser{
			Handle:       row.Handle,
			FirstName:    row.FirstName,
			LastName:     row.LastName,
			Email:        email,
			CountryName:  row.CountryName,
			ProviderType: row.ProviderType,
			Provider:     row.Provider,
			UserID:       row.UserID,
		})
		if err != nil {
			return "", err
		}
		handle = ext.Handle
		if handle == "" {
			handle = row.Handle
		}
	}

	if userID == "" {
		if userID, err = r.createUser(ctx, handle); err != nil {
			return "", err
		}
	}
	return userID, r.ensureLink(ctx, userID, organizationID, ext.ID)
}

func (r *Reconciler) lookupUser(ctx context.Context, handle string) (string, error) {
	user, err := r.records.LookupSingle(ctx, usersResource, map[string]string{"handle": handle}, true)
	if err != nil {
		return "", err
	}
	return user.ID(), nil
}

func (r *Reconciler) createUser(ctx context.Context, handle string) (string, error) {
	created, err := r.records.Create(ctx, usersResource, map[string]string{"handle": handle})
	if err != nil {
		return "", err
	}
	if created.ID() == "" {
		return "", apperr.Upstream(nil, "user %s created without id", handle)
	}
	r.logger.Info().Str("handle", handle).Str("user_id", created.ID()).Msg("reconcile: user created")
	return created.ID(), nil
}

// ensureLink upserts the {organizationId, externalId} record of a user.
func (r *Reconciler) ensureLink(ctx context.Context, userID, organizationID, externalID string) error {
	resource := userResource(userID, linkCollection)
	link, err := r.records.LookupSingle(ctx, resource, map[string]string{linkOrganization: organizationID}, true)
	if err != nil {
		return err
	}

	switch {
	case link == nil:
		_, err = r.records.Create(ctx, resource, map[string]string{
			linkOrganization: organizationID,
			linkExternalID:   externalID,
		})
	case link.String(linkExternalID) != externalID:
		_, err = r.records.Update(ctx, resource, organizationID, map[string]string{linkExternalID: externalID})
	}
	return err
}
