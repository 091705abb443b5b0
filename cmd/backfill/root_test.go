package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDates(t *testing.T) {
	now := time.Date(2024, time.March, 2, 23, 0, 0, 0, time.UTC)

	start, end := resolveDates(options{days: 3}, now)
	assert.Equal(t, "2024-02-29", start)
	assert.Equal(t, "2024-03-02", end)

	start, end = resolveDates(options{startDate: "2024-01-01", endDate: "2024-01-05"}, now)
	assert.Equal(t, "2024-01-01", start)
	assert.Equal(t, "2024-01-05", end)
}

func TestRootCommand_RejectsConflictingFlags(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--days", "2", "--start", "2024-01-01"})
	cmd.SetOut(new(nopWriter))
	cmd.SetErr(new(nopWriter))

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "days")
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
