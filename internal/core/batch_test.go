package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatch(t *testing.T) {
	structure := tree{
		"shots": tree{
			"empty.png": "",
			"small.png": "1234",
			"large.png": "0123456789",
		},
	}
	rootDir := mkTree(t, structure)

	ft, err := BuildFiletree([]ParsedPath{{FullPath: filepath.Join(rootDir, "shots"), Kind: PathDir}})
	require.NoError(t, err)

	t.Run("size limit", func(t *testing.T) {
		batch := NewBatch(ft, 8)

		require.Len(t, batch.Files, 1)
		assert.Equal(t, "small.png", batch.Files[0].Name())
		assert.Equal(t, int64(4), batch.Size())

		require.Len(t, batch.Skipped, 2)
		reasons := map[string]string{}
		for _, s := range batch.Skipped {
			reasons[s.File.Name()] = s.Reason
		}
		assert.Equal(t, "empty file", reasons["empty.png"])
		assert.Equal(t, "larger than 8 bytes", reasons["large.png"])
	})

	t.Run("no limit", func(t *testing.T) {
		batch := NewBatch(ft, 0)

		assert.Len(t, batch.Files, 2)
		assert.Len(t, batch.Skipped, 1)
		assert.Equal(t, int64(14), batch.Size())
	})
}
