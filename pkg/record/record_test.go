package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-caption/pkg/apperr"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/images/cat.jpg", "cat_classification.json"},
		{"dog.photo.png", "dog.photo_classification.json"},
		{"noext", "noext_classification.json"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.path))
		})
	}
}

func TestPersist_RoundTrip(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "results")

	path, err := Persist("/srv/uploads/кот.jpg", "Кот на диване <CAPTION>", out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "кот_classification.json"), path)

	rec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Кот на диване <CAPTION>", rec.Classification)
	assert.Equal(t, "кот.jpg", rec.ImageFile)
	assert.Equal(t, "/srv/uploads/кот.jpg", rec.ImagePath)
	assert.Equal(t, rec.Timestamp, rec.ProcessedAt)

	_, err = time.ParseInLocation(TimeLayout, rec.Timestamp, time.Local)
	assert.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "Кот на диване <CAPTION>"), "text must not be escaped")
	assert.True(t, strings.HasPrefix(string(raw), "{\n  \"timestamp\""), "pretty-printed with two spaces")
}

func TestPersist_Overwrites(t *testing.T) {
	out := t.TempDir()

	_, err := Persist("cat.jpg", "first", out)
	require.NoError(t, err)
	path, err := Persist("cat.jpg", "second", out)
	require.NoError(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	rec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "second", rec.Classification)
}

func TestPersist_OutputIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "taken")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := Persist("cat.jpg", "text", blocker)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrIO))
}

func TestNew(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 45, 123456000, time.Local)
	rec := New("a/b/c.png", "text", now)
	assert.Equal(t, "2026-03-01T12:30:45.123456", rec.Timestamp)
	assert.Equal(t, "c.png", rec.ImageFile)
}
