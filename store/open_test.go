package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/ledger"
)

func TestOpen_SQLite(t *testing.T) {
	cfg := config.Config{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "leave.db")}

	s, closeFn, err := Open(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	defer closeFn()

	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, ledger.User{ID: "u1", TenantID: "t1", Name: "U", Email: "u@t1.com"}))
	u, err := s.GetUserByEmail(ctx, "t1", "u@t1.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), config.Config{DBDriver: "mysql"}, slog.Default())
	assert.Error(t, err)
}
