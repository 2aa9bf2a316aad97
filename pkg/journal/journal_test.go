package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_AppendAndRecent(t *testing.T) {
	ctx := context.Background()
	j, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(ctx, Entry{
		RunID:     "run-1",
		ImageFile: "cat.jpg",
		ImagePath: "/in/cat.jpg",
		Error:     "classification failed: status 500",
		ErrorType: "ClassificationError",
	}))
	require.NoError(t, j.Append(ctx, Entry{
		RunID:          "run-2",
		ImageFile:      "cat.jpg",
		ImagePath:      "/in/cat.jpg",
		Success:        true,
		Classification: "A cat",
		ResultFile:     "/out/cat_classification.json",
	}))
	require.NoError(t, j.Append(ctx, Entry{RunID: "run-3", ImageFile: "dog.jpg", ImagePath: "/in/dog.jpg", Success: true}))

	entries, err := j.Recent(ctx, "cat.jpg", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "run-2", entries[0].RunID, "newest first")
	assert.True(t, entries[0].Success)
	assert.Equal(t, "A cat", entries[0].Classification)
	assert.Empty(t, entries[0].Error)
	assert.False(t, entries[0].CreatedAt.IsZero())

	assert.Equal(t, "run-1", entries[1].RunID)
	assert.False(t, entries[1].Success)
	assert.Equal(t, "ClassificationError", entries[1].ErrorType)
}

func TestJournal_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, Entry{RunID: "a", ImageFile: "x.png", ImagePath: "x.png"}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(ctx, "x.png", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJournal_LastCaption(t *testing.T) {
	ctx := context.Background()
	j, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer j.Close()

	_, ok, err := j.LastCaption(ctx, "cat.jpg")
	require.NoError(t, err)
	assert.False(t, ok, "empty journal")

	require.NoError(t, j.Append(ctx, Entry{RunID: "1", ImageFile: "cat.jpg", ImagePath: "cat.jpg", Success: true, Classification: "old caption"}))
	require.NoError(t, j.Append(ctx, Entry{RunID: "2", ImageFile: "cat.jpg", ImagePath: "cat.jpg", Success: true, Classification: "new caption"}))
	require.NoError(t, j.Append(ctx, Entry{RunID: "3", ImageFile: "cat.jpg", ImagePath: "cat.jpg", ErrorType: "UploadError", Error: "status 500"}))

	text, ok, err := j.LastCaption(ctx, "cat.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "new caption", text, "failed runs are skipped")

	_, ok, err = j.LastCaption(ctx, "dog.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}
