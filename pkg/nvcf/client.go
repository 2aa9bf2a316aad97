// Package nvcf: клиент NVIDIA Cloud Functions для vision моделей.
//
// Протокол состоит из трёх последовательных вызовов:
//   - POST assets: авторизация загрузки, ответ: подписанный URL и assetId;
//   - PUT на подписанный URL: тело файла;
//   - POST invoke: запрос к модели со ссылкой на ассет.
//
// Каждый вызов выполняется ровно один раз: retry нет, не-2xx статус: сразу ошибка.
// Ответ модели не разбирается здесь: Classify возвращает сырое тело и
// заявленный Content-Type, декодирование: в pkg/response.
package nvcf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ilkoid/poncho-caption/pkg/apperr"
	"github.com/ilkoid/poncho-caption/pkg/config"
)

// maxErrorBody ограничивает тело ответа, попадающее в текст ошибки.
const maxErrorBody = 512

// HTTPClient интерфейс для выполнения HTTP запросов.
//
// Позволяет подменять транспорт в тестах.
// Стандартный *http.Client реализует этот интерфейс.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client выполняет загрузку ассетов и вызов модели.
type Client struct {
	apiKey      string
	invokeURL   string
	assetsURL   string
	description string

	authorizeTimeout time.Duration
	uploadTimeout    time.Duration
	invokeTimeout    time.Duration

	imageProc config.ImageProcConfig

	httpClient HTTPClient
	limiter    *rate.Limiter
	log        *zap.Logger
}

// Option настраивает Client.
type Option func(*Client)

// WithHTTPClient подменяет HTTP транспорт.
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger задаёт логгер; по умолчанию zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewFromConfig создаёт клиент из конфигурации.
//
// Поля VisionConfig с нулевыми значениями заменяются дефолтами через GetDefaults().
func NewFromConfig(cfg config.VisionConfig, img config.ImageProcConfig, opts ...Option) (*Client, error) {
	cfg = cfg.GetDefaults()

	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "vision.api_key is required")
	}

	c := &Client{
		apiKey:           cfg.APIKey,
		invokeURL:        cfg.InvokeURL,
		assetsURL:        cfg.AssetsURL,
		description:      cfg.Description,
		authorizeTimeout: cfg.AuthorizeTimeout,
		uploadTimeout:    cfg.UploadTimeout,
		invokeTimeout:    cfg.InvokeTimeout,
		imageProc:        img,
		httpClient:       &http.Client{},
		// rateLimit в запросах/минуту → rate.Limit в запросах/секунду
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimit)/60.0), cfg.BurstLimit),
		log:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// authHeader возвращает значение заголовка Authorization.
func (c *Client) authHeader() string {
	return "Bearer " + c.apiKey
}

// send ждёт разрешения лимитера и выполняет запрос с собственным таймаутом.
//
// Тело ответа читается целиком внутри таймаута. Не-2xx возвращается как ошибка
// со статусом и началом тела.
func (c *Client) send(ctx context.Context, timeout time.Duration, build func(ctx context.Context) (*http.Request, error)) (*http.Response, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := build(reqCtx)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read body: %w", err)
	}

	c.log.Debug("nvcf response",
		zap.String("method", req.Method),
		zap.String("host", req.URL.Host),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.Int("body_bytes", len(body)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, body, &StatusError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	return resp, body, nil
}

// StatusError: ответ с не-2xx статусом.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d, body: %s", e.StatusCode, e.Body)
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
