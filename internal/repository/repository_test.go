package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{DSN: ":memory:"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func ptr(s string) *string { return &s }

func TestDialectFor(t *testing.T) {
	assert.Equal(t, Postgres, DialectFor("postgres://u:p@localhost:5432/idscan?sslmode=disable"))
	assert.Equal(t, Postgres, DialectFor("postgresql://localhost/idscan"))
	assert.Equal(t, SQLite, DialectFor("idscan.db"))
	assert.Equal(t, SQLite, DialectFor(":memory:"))
}

func TestRebind(t *testing.T) {
	pg := &DB{Dialect: Postgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.Rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	lite := &DB{Dialect: SQLite}
	assert.Equal(t, "a = ?", lite.Rebind("a = ?"))
}

func TestOpen_MigrateIsRepeatable(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.HealthCheck(context.Background(), time.Second))
}

func TestCaptureRunRepository_CreateUpdateGet(t *testing.T) {
	ctx := context.Background()
	repo := NewCaptureRunRepository(openTestDB(t), nil)

	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	run := &entity.CaptureRun{
		ID:           uuid.New(),
		DocumentType: constants.DocTypeCCCD,
		State:        constants.RunStateRunning,
		StartedAt:    started,
	}
	require.NoError(t, repo.Create(ctx, run))

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStateRunning, got.State)
	assert.Nil(t, got.FrontDocumentID)
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.Fields)
	assert.True(t, started.Equal(got.StartedAt))

	finished := started.Add(42 * time.Second)
	run.State = constants.RunStateOrphaned
	run.FrontDocumentID = ptr("101")
	run.FrontJobID = ptr("102")
	run.BackDocumentID = ptr("103")
	run.BackJobID = ptr("104")
	run.ErrorCode = ptr(common.CodeSaveFailed)
	run.ErrorMessage = ptr("database unavailable")
	run.NeedsReview = true
	run.Fields = entity.DisplayRecord{"Họ và tên": "NGUYỄN VĂN A", "Có giá trị đến": "15/03/2035"}
	run.FinishedAt = &finished
	require.NoError(t, repo.Update(ctx, run))

	got, err = repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStateOrphaned, got.State)
	assert.Equal(t, "101", got.DocumentIDFor(constants.SideFront))
	assert.Equal(t, "103", got.DocumentIDFor(constants.SideBack))
	require.NotNil(t, got.BackJobID)
	assert.Equal(t, "104", *got.BackJobID)
	require.NotNil(t, got.ErrorCode)
	assert.Equal(t, common.CodeSaveFailed, *got.ErrorCode)
	assert.True(t, got.NeedsReview)
	assert.Equal(t, run.Fields, got.Fields)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finished.Equal(*got.FinishedAt))
}

func TestCaptureRunRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewCaptureRunRepository(openTestDB(t), nil)

	_, err := repo.Get(ctx, uuid.New())
	require.ErrorIs(t, err, common.ErrNotFound)

	err = repo.Update(ctx, &entity.CaptureRun{ID: uuid.New(), State: constants.RunStateFailed})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCaptureRunRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	repo := NewCaptureRunRepository(openTestDB(t), nil)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	seed := []struct {
		doc   constants.DocType
		state constants.RunState
	}{
		{constants.DocTypeCCCD, constants.RunStateCompleted},
		{constants.DocTypeCCCD, constants.RunStateOrphaned},
		{constants.DocTypeBHYT, constants.RunStateCompleted},
		{constants.DocTypeGPLX, constants.RunStateFailed},
	}
	for i, s := range seed {
		require.NoError(t, repo.Create(ctx, &entity.CaptureRun{
			DocumentType: s.doc,
			State:        s.state,
			StartedAt:    base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := repo.List(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, constants.DocTypeGPLX, all[0].DocumentType, "newest first")

	completed, err := repo.List(ctx, RunFilter{State: constants.RunStateCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	cccd, err := repo.List(ctx, RunFilter{DocType: constants.DocTypeCCCD, Limit: 1})
	require.NoError(t, err)
	require.Len(t, cccd, 1)
	assert.Equal(t, constants.RunStateOrphaned, cccd[0].State)

	recent, err := repo.List(ctx, RunFilter{Since: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	counts, err := repo.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[constants.RunState]int{
		constants.RunStateCompleted: 2,
		constants.RunStateOrphaned:  1,
		constants.RunStateFailed:    1,
	}, counts)
}
