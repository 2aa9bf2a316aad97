// Package apperr описывает таксономию ошибок пайплайна классификации.
//
// Каждая ошибка несёт Kind: по нему workflow строит поле error_type
// итоговой строки CLASSIFICATION_RESULT. Стек вызовов сохраняется через
// github.com/pkg/errors и печатается форматом %+v.
//
// Rule 7: ошибки возвращаются вверх по стеку, никаких panic.
package apperr

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Kind: категория ошибки.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindValidation
	KindFileNotFound
	KindUpload
	KindClassification
	KindDecode
	KindIO
)

// String возвращает имя категории в том виде, в каком оно уходит в error_type.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindValidation:
		return "ValidationError"
	case KindFileNotFound:
		return "FileNotFoundError"
	case KindUpload:
		return "UploadError"
	case KindClassification:
		return "ClassificationError"
	case KindDecode:
		return "DecodeError"
	case KindIO:
		return "IOError"
	default:
		return "Error"
	}
}

// Error: ошибка с категорией.
type Error struct {
	Kind Kind
	Err  error
}

// Шаблоны для errors.Is: сравнивается только Kind.
var (
	ErrConfiguration  = &Error{Kind: KindConfiguration}
	ErrValidation     = &Error{Kind: KindValidation}
	ErrFileNotFound   = &Error{Kind: KindFileNotFound}
	ErrUpload         = &Error{Kind: KindUpload}
	ErrClassification = &Error{Kind: KindClassification}
	ErrDecode         = &Error{Kind: KindDecode}
	ErrIO             = &Error{Kind: KindIO}
)

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is сопоставляет ошибку с шаблоном того же Kind (шаблон: Error без Err).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Format поддерживает %+v: категория и стек вложенной ошибки.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') && e.Err != nil {
			fmt.Fprintf(s, "%s: %+v", e.Kind, e.Err)
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

// New создаёт ошибку категории kind со стеком в точке вызова.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// Newf: New с форматированием.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

// Wrap оборачивает err сообщением и присваивает категорию. nil остаётся nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrap(err, msg)}
}

// Wrapf: Wrap с форматированием.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: errors.Wrapf(err, format, args...)}
}

// KindOf возвращает категорию самой внешней Error в цепочке.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
