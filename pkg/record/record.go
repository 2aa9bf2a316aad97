// Package record сохраняет результат классификации в JSON файл рядом с другими результатами.
//
// На каждое изображение: один файл {имя без расширения}_classification.json.
// Повторный запуск перезаписывает файл целиком.
package record

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilkoid/poncho-caption/pkg/apperr"
)

// FileSuffix добавляется к имени изображения без расширения.
const FileSuffix = "_classification.json"

// TimeLayout: ISO-8601 с микросекундами, без зоны (локальное время).
const TimeLayout = "2006-01-02T15:04:05.000000"

// Record: содержимое файла результата.
type Record struct {
	Timestamp      string `json:"timestamp"`
	ImageFile      string `json:"image_file"`
	ImagePath      string `json:"image_path"`
	Classification string `json:"classification"`
	ProcessedAt    string `json:"processed_at"`
}

// New собирает запись; timestamp и processed_at совпадают.
func New(imagePath, text string, now time.Time) Record {
	ts := now.Format(TimeLayout)
	return Record{
		Timestamp:      ts,
		ImageFile:      filepath.Base(imagePath),
		ImagePath:      imagePath,
		Classification: text,
		ProcessedAt:    ts,
	}
}

// FileName возвращает имя файла результата для изображения.
func FileName(imagePath string) string {
	base := filepath.Base(imagePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + FileSuffix
}

// Persist пишет запись в outputDir и возвращает путь к файлу.
//
// outputDir создаётся вместе с родителями, если его нет.
// Ошибки файловой системы возвращаются как IOError.
func Persist(imagePath, text, outputDir string) (string, error) {
	return Write(New(imagePath, text, time.Now()), outputDir)
}

// Write сериализует готовую запись в outputDir.
func Write(rec Record, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", apperr.Wrapf(apperr.KindIO, err, "create output directory %s", outputDir)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // <CAPTION> и не-ASCII остаются как есть
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return "", apperr.Wrap(apperr.KindIO, err, "encode classification record")
	}

	path := filepath.Join(outputDir, FileName(rec.ImagePath))
	if err := os.WriteFile(path, bytes.TrimRight(buf.Bytes(), "\n"), 0644); err != nil {
		return "", apperr.Wrapf(apperr.KindIO, err, "write %s", path)
	}

	return path, nil
}

// Load читает запись из файла.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrapf(apperr.KindIO, err, "read %s", path)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperr.Wrapf(apperr.KindIO, err, "parse %s", path)
	}
	return &rec, nil
}
