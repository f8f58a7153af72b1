package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"pending", "confirmed", "completed", "cancelled"} {
		st, err := ParseStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, Status(raw), st)
	}

	_, err := ParseStatus("shipped")
	require.ErrorIs(t, err, ErrUnknownStatus)

	_, err = ParseStatus("Pending")
	require.ErrorIs(t, err, ErrUnknownStatus, "statuses are case sensitive")
}

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusPending, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusConfirmed, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusCompleted, false},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.ok {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
			continue
		}

		var transErr *InvalidTransitionError
		require.ErrorAs(t, err, &transErr, "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.from, transErr.From)
		assert.Equal(t, tt.to, transErr.To)
	}
}

func TestValidateTransition_SameStateIsNoop(t *testing.T) {
	for _, st := range []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled} {
		assert.NoError(t, ValidateTransition(st, st), st)
	}
}
