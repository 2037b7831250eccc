package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prudhvinik1/homepresence/internal/database"
	"github.com/prudhvinik1/homepresence/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHoldEvaluationLease_ReportRefusedWhileRunHoldsIt(t *testing.T) {
	pool, err := database.NewSQLitePool(filepath.Join(t.TempDir(), "agent.db"), 2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	leases := repositories.NewSQLiteLeaseStore(pool)
	logger := slog.New(slog.DiscardHandler)
	run := &agent{logger: logger, leases: leases, holder: "run"}
	report := &agent{logger: logger, leases: leases, holder: "report"}
	ctx := context.Background()

	// ARRANGE
	releaseRun, err := run.holdEvaluationLease(ctx, true)
	require.NoError(t, err)

	// ACT
	_, err = report.holdEvaluationLease(ctx, false)

	// ASSERT
	assert.ErrorIs(t, err, errAgentRunning)

	releaseRun()
	releaseReport, err := report.holdEvaluationLease(ctx, false)
	require.NoError(t, err)
	releaseReport()
}
