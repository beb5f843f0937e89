package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_ReadMissing(t *testing.T) {
	l := NewLocal(filepath.Join(t.TempDir(), "nested", "data"))

	_, err := l.Read(context.Background(), "connections.json")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.NoError(t, l.Ping(context.Background()), "missing dir is fine before first write")
}

func TestLocal_WriteCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	l := NewLocal(dir)
	ctx := context.Background()

	require.NoError(t, l.Write(ctx, "connections.json", []byte(`[]`)))
	require.NoError(t, l.Write(ctx, "connections.json", []byte(`[{"id":"a"}]`)))

	got, err := l.Read(ctx, "connections.json")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"a"}]`, string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestLocal_Delete(t *testing.T) {
	l := NewLocal(t.TempDir())
	ctx := context.Background()

	require.NoError(t, l.Write(ctx, "table-cache.json", []byte(`{}`)))
	require.NoError(t, l.Delete(ctx, "table-cache.json"))
	require.NoError(t, l.Delete(ctx, "table-cache.json"))

	_, err := l.Read(ctx, "table-cache.json")
	assert.True(t, errs.IsNotFound(err))
}

func TestLocal_RejectsEscapingNames(t *testing.T) {
	l := NewLocal(t.TempDir())
	for _, name := range []string{"", "../x.json", "a/b.json", ".hidden"} {
		err := l.Write(context.Background(), name, nil)
		assert.True(t, errs.IsInvalidInput(err), name)
	}
}

func TestLocal_PingNotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	assert.True(t, errs.IsInvalidInput(NewLocal(path).Ping(context.Background())))
}
