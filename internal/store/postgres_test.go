package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstheanurag/fnrunner/internal/database"
	"github.com/itstheanurag/fnrunner/internal/model"
)

func getTestDB(t *testing.T) *database.Database {
	t.Helper()
	url := os.Getenv("FNRUNNER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FNRUNNER_TEST_DATABASE_URL not set")
	}
	logger := zerolog.Nop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Open(ctx, url, &logger)
	if err != nil {
		t.Skipf("skipping DB test (cannot connect): %v", err)
	}
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.Migrate(context.Background()), "migrate must be idempotent")
	return db
}

func TestPostgres_FunctionCRUD(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	p := NewPostgres(db.Pool)

	route := "test-" + uuid.NewString()[:8]
	def := newDef(t, route)
	require.NoError(t, p.CreateFunction(ctx, def))
	t.Cleanup(func() { _ = p.DeleteFunction(ctx, def.ID) })

	assert.ErrorIs(t, p.CreateFunction(ctx, newDef(t, route)), ErrRouteTaken)

	got, err := p.GetFunctionByRoute(ctx, route)
	require.NoError(t, err)
	assert.Equal(t, def.ID, got.ID)
	assert.Equal(t, model.LanguagePython, got.Language)
	assert.Equal(t, def.TimeoutMS, got.TimeoutMS)

	got.Code = "print(2)"
	require.NoError(t, p.UpdateFunction(ctx, got))
	got, err = p.GetFunction(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, "print(2)", got.Code)

	require.NoError(t, p.DeleteFunction(ctx, def.ID))
	_, err = p.GetFunction(ctx, def.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, p.DeleteFunction(ctx, def.ID), ErrNotFound)
}

func TestPostgres_Records(t *testing.T) {
	db := getTestDB(t)
	ctx := context.Background()
	p := NewPostgres(db.Pool)

	fnID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, p.AppendRecord(ctx, &model.ExecutionRecord{
			ID:         uuid.NewString(),
			FunctionID: fnID,
			DurationMS: int64(i * 10),
			Status:     model.ExecutionError,
			Error:      "Function execution timed out",
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	recs, err := p.ListRecords(ctx, fnID, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(20), recs[0].DurationMS)
	assert.Equal(t, model.ExecutionError, recs[0].Status)
}
