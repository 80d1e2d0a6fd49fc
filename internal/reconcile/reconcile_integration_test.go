//go:build integration

package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/groundsql/groundsql/internal/entity"
	"github.com/groundsql/groundsql/internal/knowledge"
	"github.com/groundsql/groundsql/internal/reconcile"
	"github.com/groundsql/groundsql/internal/repository"
	"github.com/groundsql/groundsql/internal/testutil"
	"github.com/groundsql/groundsql/internal/vector"
)

const (
	goldenCollection = "golden_sqls"
	connA            = "507f1f77bcf86cd799439011"
)

type reconcileFixture struct {
	assembler  *knowledge.Assembler
	golden     *repository.GoldenSQLs
	store      *vector.Store
	reconciler *reconcile.Reconciler
	db         *testutil.TestDBContainer
}

func setupReconciler(t *testing.T) (*reconcileFixture, func()) {
	t.Helper()

	db, cleanup := testutil.SetupTestDB(t)
	logger := testutil.DiscardLogger()

	store, err := vector.NewStore(db.Pool, &testutil.StaticEmbedder{}, logger,
		vector.WithEmbedOptions(nil))
	require.NoError(t, err)
	golden, err := repository.NewGoldenSQLs(db.Pool, logger)
	require.NoError(t, err)
	instructions, err := repository.NewInstructions(db.Pool, logger)
	require.NoError(t, err)

	assembler, err := knowledge.NewAssembler(golden, instructions, store, knowledge.Config{
		GoldenCollection:  goldenCollection,
		ContextCollection: "context_files",
	}, logger)
	require.NoError(t, err)

	reconciler, err := reconcile.NewReconciler(golden, store, goldenCollection, time.Minute, logger)
	require.NoError(t, err)

	return &reconcileFixture{
		assembler:  assembler,
		golden:     golden,
		store:      store,
		reconciler: reconciler,
		db:         db,
	}, cleanup
}

func (fx *reconcileFixture) addGolden(ctx context.Context, t *testing.T, prompt, sql string) *entity.GoldenSQL {
	t.Helper()
	records, err := fx.assembler.AddGoldenSQLs(ctx, []entity.GoldenSQLRequest{{
		PromptText:     prompt,
		SQL:            sql,
		DBConnectionID: connA,
	}})
	require.NoError(t, err)
	require.Len(t, records, 1)
	return records[0]
}

func TestReconciler_ReindexesLostVectors_Integration(t *testing.T) {
	ctx := context.Background()
	fx, cleanup := setupReconciler(t)
	defer cleanup()

	kept := fx.addGolden(ctx, t, "show all users", "SELECT * FROM users")
	lost := fx.addGolden(ctx, t, "count open invoices", "SELECT COUNT(*) FROM invoices WHERE status = 'open'")

	// Simulate a write that persisted but never reached the index.
	_, err := fx.db.Pool.Exec(ctx,
		"DELETE FROM vector_records WHERE collection = $1 AND id = $2",
		goldenCollection, lost.ID)
	require.NoError(t, err)

	report, err := fx.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Reindexed)
	require.Equal(t, 0, report.Removed)

	ids, err := fx.store.IDs(ctx, goldenCollection)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{kept.ID, lost.ID}, ids)

	samples, _, err := fx.assembler.RetrieveContextForQuestion(ctx, &entity.Prompt{
		ID:             entity.NewObjectID(),
		Text:           "count open invoices",
		DBConnectionID: connA,
	}, 3)
	require.NoError(t, err)

	found := false
	for _, s := range samples {
		if s.ID == lost.ID {
			found = true
		}
	}
	require.True(t, found, "reindexed golden sql must be retrievable again")
}

func TestReconciler_RemovesOrphanedVectors_Integration(t *testing.T) {
	ctx := context.Background()
	fx, cleanup := setupReconciler(t)
	defer cleanup()

	kept := fx.addGolden(ctx, t, "show all users", "SELECT * FROM users")

	// Simulate a record delete whose index half never happened.
	orphanID := entity.NewObjectID()
	err := fx.store.AddRecords(ctx, goldenCollection, []vector.Record{{
		ID:             orphanID,
		DBConnectionID: connA,
		Content:        "stale question",
		Metadata:       map[string]string{"sql": "SELECT 1"},
	}})
	require.NoError(t, err)

	report, err := fx.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, report.Reindexed)
	require.Equal(t, 1, report.Removed)

	ids, err := fx.store.IDs(ctx, goldenCollection)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{kept.ID}, ids)
}

func TestReconciler_SecondSweepIsAligned_Integration(t *testing.T) {
	ctx := context.Background()
	fx, cleanup := setupReconciler(t)
	defer cleanup()

	lost := fx.addGolden(ctx, t, "show all users", "SELECT * FROM users")
	_, err := fx.db.Pool.Exec(ctx,
		"DELETE FROM vector_records WHERE collection = $1 AND id = $2",
		goldenCollection, lost.ID)
	require.NoError(t, err)

	first, err := fx.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.Reindexed)

	second, err := fx.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, second.Reindexed)
	require.Equal(t, 0, second.Removed)
	require.NotEqual(t, first.RunID, second.RunID)
}
