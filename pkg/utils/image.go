// Package utils предоставляет утилиты для подготовки изображений к загрузке.
package utils

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // Регистрируем GIF декодер
	"image/jpeg"
	_ "image/png" // Регистрируем PNG декодер
	"io"

	"github.com/nfnt/resize"
)

// DefaultJPEGQuality используется, если качество не задано в конфиге.
const DefaultJPEGQuality = 85

// Downscale уменьшает изображение до maxWidth, сохраняя пропорции, и кодирует в JPEG.
//
// Возвращает (nil, false, nil), если уменьшать не нужно: maxWidth <= 0
// или изображение и так не шире maxWidth. Тогда вызывающий отправляет исходный файл.
func Downscale(r io.Reader, maxWidth int, quality int) ([]byte, bool, error) {
	if maxWidth <= 0 {
		return nil, false, nil
	}
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	img, _, err := image.Decode(r)
	if err != nil {
		return nil, false, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxWidth {
		return nil, false, nil
	}

	// Высота 0: resize сам сохраняет aspect ratio
	resized := resize.Resize(uint(maxWidth), 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: quality}); err != nil {
		return nil, false, fmt.Errorf("encode resized image: %w", err)
	}

	return buf.Bytes(), true, nil
}
