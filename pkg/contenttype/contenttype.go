// Package contenttype определяет MIME тип изображения по пути к файлу.
package contenttype

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Fallback используется, когда тип не определён или это не изображение.
const Fallback = "image/jpeg"

// Infer возвращает MIME тип по расширению файла. Содержимое файла не читается.
//
// Порядок: таблица h2non/filetype, затем системная таблица mime.
// Результат всегда начинается с "image/".
func Infer(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return Fallback
	}

	if t := filetype.GetType(strings.TrimPrefix(ext, ".")); t != filetype.Unknown {
		if isImage(t.MIME.Value) {
			return t.MIME.Value
		}
		return Fallback
	}

	byExt := mime.TypeByExtension(ext)
	if i := strings.IndexByte(byExt, ';'); i >= 0 {
		byExt = strings.TrimSpace(byExt[:i])
	}
	if isImage(byExt) {
		return byExt
	}
	return Fallback
}

func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
