package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfillWindowDefaults(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	req, err := backfillWindow(now, "", "")
	require.NoError(t, err)
	assert.Equal(t, now, req.Until)
	assert.Equal(t, time.Date(2025, time.February, 8, 9, 0, 0, 0, time.UTC), req.Since)
}

func TestBackfillWindowExplicitDates(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	req, err := backfillWindow(now, "2025-01-01", "2025-02-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), req.Since)
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), req.Until)

	_, err = backfillWindow(now, "last week", "")
	require.Error(t, err)
}
