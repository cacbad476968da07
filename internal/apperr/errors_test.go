package apperr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationMessage(t *testing.T) {
	err := Validation("skill: %s is missing", "skillProviderName")

	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "skill: skillProviderName is missing", err.Error())
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestUpstreamKeepsCause(t *testing.T) {
	err := Upstream(context.DeadlineExceeded, "get %s failed", "/skills")

	require.ErrorIs(t, err, ErrUpstream)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "get /skills failed")
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
}

func TestKind(t *testing.T) {
	cases := map[string]error{
		"none":       nil,
		"validation": Validation("bad"),
		"not_found":  NotFound("missing"),
		"conflict":   Conflict("two"),
		"upstream":   Upstream(errors.New("boom"), "call"),
		"unknown":    errors.New("plain"),
	}
	for want, err := range cases {
		assert.Equal(t, want, Kind(err))
	}
}
