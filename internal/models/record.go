package models

import (
	"fmt"
	"strconv"
)

// Record is a generic resource returned by the record and identity APIs.
type Record map[string]any

// ID returns the record identifier or an empty string.
func (r Record) ID() string {
	return r.String("id")
}

// String returns the field rendered as a string. Numbers decoded from JSON
// are formatted without a trailing exponent.
func (r Record) String(field string) string {
	if r == nil {
		return ""
	}
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// ExternalUser is a user profile held by the identity system.
type ExternalUser struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Email  string `json:"email"`
}

// NewExternalUser carries the fields used when creating an identity system user.
type NewExternalUser struct {
	Handle       string
	FirstName    string
	LastName     string
	Email        string
	CountryName  string
	ProviderType string
	Provider     string
	UserID       string
}
