// Package response декодирует ответ vision модели в текст.
//
// Сервис сам выбирает кодировку ответа: небольшие ответы приходят JSON'ом,
// крупные приходят zip архивом с файлом *.response внутри. Parse сводит оба варианта
// к одному контракту Result.Text().
//
// Нераспознанный формат считается мягким отказом: Parse возвращает UnknownResult,
// текст которого (строка-маркер) уходит дальше как результат классификации.
// Жёсткая ошибка (DecodeError) возникает только у JSON ответа без ключа
// choices[0].message.content. Пустая строка в content считается обычным результатом.
package response

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/ilkoid/poncho-caption/pkg/apperr"
)

// Маркеры мягкого отказа.
const (
	SentinelUnknownFormat = "Classification failed - unknown response format"
	SentinelArchive       = "Classification failed - could not extract result from ZIP"
)

var (
	errNoChoices = errors.New("response has no choices")
	errNoContent = errors.New("choices[0].message.content is missing")
)

// Encoding: кодировка ответа по заявленному Content-Type.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingJSON
	EncodingArchive
)

// String возвращает имя кодировки для логов.
func (e Encoding) String() string {
	switch e {
	case EncodingJSON:
		return "json"
	case EncodingArchive:
		return "zip"
	default:
		return "unknown"
	}
}

// EncodingOf определяет кодировку. Сравнение без учёта регистра, по вхождению.
func EncodingOf(contentType string) Encoding {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/json"):
		return EncodingJSON
	case strings.Contains(ct, "application/zip"):
		return EncodingArchive
	default:
		return EncodingUnknown
	}
}

// Result: декодированный ответ: JSONResult, ArchiveResult или UnknownResult.
type Result interface {
	// Text возвращает текст классификации или строку-маркер отказа.
	Text() string
	// Encoding возвращает вариант ответа.
	Encoding() Encoding

	sealed()
}

// JSONResult: ответ пришёл JSON'ом.
type JSONResult struct {
	Content string
}

func (r JSONResult) Text() string       { return r.Content }
func (r JSONResult) Encoding() Encoding { return EncodingJSON }
func (JSONResult) sealed()              {}

// ArchiveResult: ответ пришёл архивом; Entry: имя прочитанного файла.
type ArchiveResult struct {
	Content string
	Entry   string
}

func (r ArchiveResult) Text() string       { return r.Content }
func (r ArchiveResult) Encoding() Encoding { return EncodingArchive }
func (ArchiveResult) sealed()              {}

// UnknownResult: полезного текста нет.
//
// Sentinel: строка-маркер, Reason: причина для логов (может быть nil).
type UnknownResult struct {
	ContentType string
	Sentinel    string
	Reason      error
}

func (r UnknownResult) Text() string       { return r.Sentinel }
func (r UnknownResult) Encoding() Encoding { return EncodingUnknown }
func (UnknownResult) sealed()              {}

// Parse разбирает тело ответа по заявленному Content-Type.
func Parse(body []byte, contentType string) (Result, error) {
	switch EncodingOf(contentType) {
	case EncodingJSON:
		content, err := extractContent(body)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDecode, err, "malformed json response")
		}
		return JSONResult{Content: content}, nil

	case EncodingArchive:
		return parseArchive(body, contentType), nil

	default:
		return UnknownResult{ContentType: contentType, Sentinel: SentinelUnknownFormat}, nil
	}
}

// Decode: Parse, сразу возвращающий текст.
func Decode(body []byte, contentType string) (string, error) {
	r, err := Parse(body, contentType)
	if err != nil {
		return "", err
	}
	return r.Text(), nil
}

// IsSentinel сообщает, что text является маркером мягкого отказа, а не результат модели.
func IsSentinel(text string) bool {
	return text == SentinelUnknownFormat || text == SentinelArchive
}

// chatResponse: часть OpenAI-совместимого ответа, которую читает декодер.
//
// Content хранится указателем, чтобы отличать отсутствующий или null ключ от пустой строки.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// extractContent читает choices[0].message.content.
//
// Пустая строка допустима; ошибка только если ключа нет или он null.
func extractContent(data []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}

	content := resp.Choices[0].Message.Content
	if content == nil {
		return "", errNoContent
	}
	return *content, nil
}
