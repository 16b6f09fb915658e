package localstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/angelmondragon/storefront-session/pkg/db"
	"github.com/angelmondragon/storefront-session/pkg/migrate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	client, err := db.New(ctx, config.DBConfig{
		Driver: config.DBDriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.SQL()
	require.NoError(t, err)
	require.NoError(t, migrate.Run(ctx, sqlDB, client.Dialect(), "up"))
	return NewRepository(client.DB())
}

func TestPutGetDelete(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	_, err := repo.Get(ctx, "u1", KeyCartBackup)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Put(ctx, "u1", KeyCartBackup, []byte(`[1]`)))
	require.NoError(t, repo.Put(ctx, "u1", KeyCartBackup, []byte(`[2]`)))
	require.NoError(t, repo.Put(ctx, "u2", KeyCartBackup, []byte(`[3]`)))

	got, err := repo.Get(ctx, "u1", KeyCartBackup)
	require.NoError(t, err)
	assert.Equal(t, `[2]`, string(got))

	require.NoError(t, repo.Delete(ctx, "u1", KeyCartBackup))
	require.NoError(t, repo.Delete(ctx, "u1", KeyCartBackup))
	_, err = repo.Get(ctx, "u1", KeyCartBackup)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = repo.Get(ctx, "u2", KeyCartBackup)
	require.NoError(t, err)
	assert.Equal(t, `[3]`, string(got))
}

func TestJSONRoundTripStampsUpdatedAt(t *testing.T) {
	repo := newRepo(t)
	fixed := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	ctx := context.Background()

	type backup struct {
		IDs []string `json:"ids"`
	}
	require.NoError(t, repo.PutJSON(ctx, "u1", KeyCartBackup, backup{IDs: []string{"a", "b"}}))

	var out backup
	require.NoError(t, repo.GetJSON(ctx, "u1", KeyCartBackup, &out))
	assert.Equal(t, []string{"a", "b"}, out.IDs)

	var row ClientState
	require.NoError(t, repo.db.Where("user_id = ?", "u1").Take(&row).Error)
	assert.True(t, fixed.Equal(row.UpdatedAt.UTC()))
}
