package utils

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name        string
		width       int
		height      int
		maxWidth    int
		wantResized bool
		wantWidth   int
		wantHeight  int
	}{
		{"disabled", 400, 200, 0, false, 0, 0},
		{"narrow enough", 400, 200, 400, false, 0, 0},
		{"wider than limit", 400, 200, 100, true, 100, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, resized, err := Downscale(bytes.NewReader(pngBytes(t, tt.width, tt.height)), tt.maxWidth, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantResized, resized)
			if !tt.wantResized {
				assert.Nil(t, out)
				return
			}

			cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, tt.wantWidth, cfg.Width)
			assert.Equal(t, tt.wantHeight, cfg.Height)
		})
	}
}

func TestDownscale_NotAnImage(t *testing.T) {
	_, _, err := Downscale(bytes.NewReader([]byte("definitely not pixels")), 100, 85)
	assert.Error(t, err)
}
