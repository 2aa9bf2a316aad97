// Package telegram отправляет результат классификации в чат через Bot API.
//
// Используются два метода Bot API: sendPhoto (фото с подписью) и sendMessage (текст).
// Notify пытается отправить фото и при неудаче отправляет текст.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/ilkoid/poncho-caption/pkg/config"
)

// DefaultBaseURL: адрес Bot API.
const DefaultBaseURL = "https://api.telegram.org"

const requestTimeout = 60 * time.Second

// Delivery: чем в итоге было доставлено уведомление.
type Delivery string

const (
	DeliveryNone    Delivery = ""
	DeliveryPhoto   Delivery = "photo"
	DeliveryMessage Delivery = "message"
)

// HTTPClient интерфейс для выполнения HTTP запросов.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client: клиент Bot API для одного токена.
type Client struct {
	token      string
	baseURL    string
	httpClient HTTPClient
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

// NewFromConfig создаёт клиент из секции telegram.
func NewFromConfig(cfg config.TelegramConfig, opts ...Option) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram.token is required (or TELEGRAM_BOT_TOKEN)")
	}

	c := &Client{
		token:      cfg.Token,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        zap.NewNop(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// apiResponse: общая обёртка ответов Bot API.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendPhoto отправляет изображение с подписью.
func (c *Client) SendPhoto(ctx context.Context, chatID, imagePath, caption string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", chatID); err != nil {
		return err
	}
	if err := mw.WriteField("caption", caption); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("photo", filepath.Base(imagePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	return c.call(ctx, "sendPhoto", mw.FormDataContentType(), &body)
}

// SendMessage отправляет текстовое сообщение.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) error {
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)

	return c.call(ctx, "sendMessage", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

// Notify отправляет фото с подписью, если imagePath задан и файл существует,
// иначе: текст. При ошибке отправки фото пробует отправить текст.
//
// Если не удалось ни то, ни другое, ошибки объединяются.
func (c *Client) Notify(ctx context.Context, chatID, imagePath, text string) (Delivery, error) {
	var result *multierror.Error

	if imagePath != "" {
		if _, err := os.Stat(imagePath); err == nil {
			c.log.Info("sending photo", zap.String("image", imagePath))
			err := c.SendPhoto(ctx, chatID, imagePath, text)
			if err == nil {
				return DeliveryPhoto, nil
			}
			c.log.Warn("photo delivery failed, falling back to text message", zap.Error(err))
			result = multierror.Append(result, err)
		} else {
			c.log.Warn("image file not found, sending text message", zap.String("image", imagePath))
		}
	}

	if err := c.SendMessage(ctx, chatID, text); err != nil {
		result = multierror.Append(result, err)
		return DeliveryNone, result.ErrorOrNil()
	}
	return DeliveryMessage, nil
}

// call выполняет метод Bot API и проверяет статус и поле ok.
func (c *Client) call(ctx context.Context, method, contentType string, body io.Reader) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Ошибка транспорта содержит URL с токеном
		return fmt.Errorf("telegram %s: %s", method, strings.ReplaceAll(err.Error(), c.token, "***"))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram %s: status %d: read body: %w", method, resp.StatusCode, err)
	}

	var api apiResponse
	if err := json.Unmarshal(raw, &api); err != nil {
		return fmt.Errorf("telegram %s: status %d: decode response %q: %w", method, resp.StatusCode, truncate(raw), err)
	}

	if resp.StatusCode != http.StatusOK || !api.OK {
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, api.Description)
	}

	c.log.Debug("telegram call succeeded", zap.String("method", method))
	return nil
}

// maxErrorBody ограничивает тело ответа в тексте ошибки.
const maxErrorBody = 256

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
