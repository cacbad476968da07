// Package reconcile applies one spreadsheet row to the record system: it
// resolves (or creates) the user and upserts the row's skill, achievement and
// attribute sub-records.
package reconcile

import (
	"context"
	"net/url"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/bulk-record-processor/internal/models"
	"github.com/example/bulk-record-processor/internal/record"
)

// RecordStore is the primary record system.
type RecordStore interface {
	LookupSingle(ctx context.Context, resource string, filter map[string]string, optional bool) (models.Record, error)
	Create(ctx context.Context, resource string, body any) (models.Record, error)
	Update(ctx context.Context, resource, id string, body any) (models.Record, error)
}

// ExternalUsers is the secondary identity system used by organization batches.
type ExternalUsers interface {
	LookupByEmail(ctx context.Context, email string) (*models.ExternalUser, error)
	Create(ctx context.Context, user models.NewExternalUser) (*models.ExternalUser, error)
}

// Policy decides what happens when a row's user does not exist.
type Policy int

const (
	// FailOnMissing fails the row with a not found error.
	FailOnMissing Policy = iota
	// CreateOnMissing creates the user (and its link record in organization batches).
	CreateOnMissing
)

func (p Policy) String() string {
	if p == CreateOnMissing {
		return "create"
	}
	return "fail"
}

// Action is what happened to one optional group of a row.
type Action string

const (
	ActionSkipped Action = "skipped"
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// GroupAction records the action taken for a named group.
type GroupAction struct {
	Group  string
	Action Action
}

// Outcome is the result of reconciling one row. The row succeeded when Err
// is nil.
type Outcome struct {
	Row     *record.Row
	UserID  string
	Err     error
	Actions []GroupAction
}

// OK reports whether the row was applied.
func (o Outcome) OK() bool { return o.Err == nil }

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithPolicy sets the missing user policy. The default is FailOnMissing.
func WithPolicy(p Policy) Option {
	return func(r *Reconciler) { r.policy = p }
}

// WithExternalUsers enables organization batches.
func WithExternalUsers(users ExternalUsers) Option {
	return func(r *Reconciler) { r.users = users }
}

// Reconciler applies rows against a RecordStore.
type Reconciler struct {
	records RecordStore
	users   ExternalUsers
	policy  Policy
	logger  zerolog.Logger
}

// New constructs a Reconciler.
func New(records RecordStore, logger zerolog.Logger, opts ...Option) *Reconciler {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	r := &Reconciler{records: records, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile resolves the row's user and upserts skill, achievement and every
// attribute tuple, in that order. The first failing step ends the row.
func (r *Reconciler) Reconcile(ctx context.Context, row *record.Row, organizationID string) Outcome {
	out := Outcome{Row: row}

	userID, err := r.ResolveOrCreateUser(ctx, row, organizationID)
	if err != nil {
		out.Err = err
		return out
	}
	out.UserID = userID

	for _, spec := range r.groups(row) {
		action, err := r.reconcileGroup(ctx, userID, spec)
		if err != nil {
			out.Err = err
			return out
		}
		out.Actions = append(out.Actions, GroupAction{Group: spec.group.GroupLabel(), Action: action})
	}

	r.logger.Debug().
		Int("line", row.Line).
		Str("row", row.Key()).
		Str("user_id", userID).
		Interface("actions", out.Actions).
		Msg("reconcile: row applied")
	return out
}

func userResource(userID, collection string) string {
	return "users/" + url.PathEscape(userID) + "/" + collection
}
