package gormx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	defer os.Remove("test.db")

	db, err := Open("sqlite://test.db")
	require.NoError(t, err)
	require.NotEmpty(t, db)

	var enabled int
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&enabled).Error)
	require.Equal(t, 1, enabled)
}
