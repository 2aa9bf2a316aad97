package contenttype

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfer(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"png", "/photos/cat.png", "image/png"},
		{"upper case extension", "/photos/CAT.PNG", "image/png"},
		{"gif", "anim.gif", "image/gif"},
		{"webp", "shot.webp", "image/webp"},
		{"jpg", "a/b/c.jpg", "image/jpeg"},
		{"jpeg from mime table", "a/b/c.jpeg", "image/jpeg"},
		{"bmp", "scan.bmp", "image/bmp"},
		{"not an image", "notes.txt", Fallback},
		{"pdf is not an image", "doc.pdf", Fallback},
		{"no extension", "/tmp/upload", Fallback},
		{"unknown extension", "frame.zzzq", Fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Infer(tt.path))
		})
	}
}

func TestInfer_AlwaysImage(t *testing.T) {
	for _, p := range []string{"x.png", "x.tif", "x.svg", "x.avif", "x.json", "x.html", "x", ".hidden"} {
		assert.True(t, strings.HasPrefix(Infer(p), "image/"), p)
	}
}
