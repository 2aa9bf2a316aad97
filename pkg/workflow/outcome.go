package workflow

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/ilkoid/poncho-caption/pkg/apperr"
)

// ResultMarker предшествует JSON итога на stdout.
// По нему вызывающий процесс находит строку среди прочего вывода.
const ResultMarker = "CLASSIFICATION_RESULT:"

// UnknownImage подставляется в image_file, если файла изображения нет.
const UnknownImage = "unknown"

// Outcome: итог одного запуска.
type Outcome struct {
	Success        bool
	Classification string
	ResultFile     string
	ImageFile      string

	// Err заполнен только при неудаче.
	Err error
}

// ErrorType возвращает имя категории ошибки для поля error_type.
func (o Outcome) ErrorType() string {
	if o.Err == nil {
		return ""
	}
	return apperr.KindOf(o.Err).String()
}

// ExitCode: код завершения процесса: 0 при успехе, 1 при любой ошибке.
func (o Outcome) ExitCode() int {
	if o.Success {
		return 0
	}
	return 1
}

// Failure строит неуспешный итог для изображения imagePath.
//
// image_file: имя файла, если он существует, иначе UnknownImage.
func Failure(imagePath string, err error) Outcome {
	return Outcome{
		Success:   false,
		ImageFile: imageFileName(imagePath),
		Err:       err,
	}
}

// imageFileName: имя файла, если он существует, иначе UnknownImage.
func imageFileName(path string) string {
	if path == "" {
		return UnknownImage
	}
	if _, err := os.Stat(path); err != nil {
		return UnknownImage
	}
	return filepath.Base(path)
}

type successLine struct {
	Success        bool   `json:"success"`
	Classification string `json:"classification"`
	ResultFile     string `json:"result_file"`
	ImageFile      string `json:"image_file"`
}

type failureLine struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	ImageFile string `json:"image_file"`
}

// Emit пишет в w ровно одну строку ResultMarker + JSON.
func Emit(w io.Writer, o Outcome) error {
	var payload any
	if o.Success {
		payload = successLine{
			Success:        true,
			Classification: o.Classification,
			ResultFile:     o.ResultFile,
			ImageFile:      o.ImageFile,
		}
	} else {
		msg := ""
		if o.Err != nil {
			msg = o.Err.Error()
		}
		payload = failureLine{
			Success:   false,
			Error:     msg,
			ErrorType: o.ErrorType(),
			ImageFile: o.ImageFile,
		}
	}

	var buf bytes.Buffer
	buf.WriteString(ResultMarker)
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return err
	}

	_, err := w.Write(buf.Bytes())
	return err
}
