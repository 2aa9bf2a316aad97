package response

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ArchiveEntrySuffix: суффикс файла с JSON ответом внутри архива.
const ArchiveEntrySuffix = ".response"

// CaptionMarker: директива, которую модель повторяет в начале текста из архива.
const CaptionMarker = "<CAPTION>"

var errNoEntry = errors.New("archive has no " + ArchiveEntrySuffix + " entry")

// parseArchive распаковывает архив во временную директорию и читает первый *.response.
//
// Директория удаляется на любом пути выхода. Все отказы: мягкие (UnknownResult).
func parseArchive(body []byte, contentType string) Result {
	fail := func(err error) Result {
		return UnknownResult{ContentType: contentType, Sentinel: SentinelArchive, Reason: err}
	}

	dir, err := os.MkdirTemp("", "nvcf-response-*")
	if err != nil {
		return fail(fmt.Errorf("create temp dir: %w", err))
	}
	defer os.RemoveAll(dir)

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return fail(fmt.Errorf("open archive: %w", err))
	}

	names, err := extractAll(zr, dir)
	if err != nil {
		return fail(err)
	}

	entry := ""
	for _, name := range names {
		if strings.HasSuffix(name, ArchiveEntrySuffix) {
			entry = name
			break
		}
	}
	if entry == "" {
		return fail(errNoEntry)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(entry)))
	if err != nil {
		return fail(fmt.Errorf("read %s: %w", entry, err))
	}

	content, err := extractContent(data)
	if err != nil {
		return fail(fmt.Errorf("parse %s: %w", entry, err))
	}

	return ArchiveResult{
		Content: strings.TrimPrefix(content, CaptionMarker),
		Entry:   entry,
	}
}

// extractAll распаковывает записи в dir и возвращает их имена в порядке архива.
//
// Записи, путь которых выходит за пределы dir (абсолютные, с ..), пропускаются.
func extractAll(zr *zip.Reader, dir string) ([]string, error) {
	names := make([]string, 0, len(zr.File))

	for _, f := range zr.File {
		if !filepath.IsLocal(filepath.FromSlash(f.Name)) {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(f.Name))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return nil, fmt.Errorf("create %s: %w", f.Name, err)
			}
			continue
		}

		if err := extractFile(f, target); err != nil {
			return nil, err
		}
		names = append(names, f.Name)
	}

	return names, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", f.Name, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", f.Name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return nil
}
