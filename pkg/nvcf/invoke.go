package nvcf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/ilkoid/poncho-caption/pkg/apperr"
	"github.com/ilkoid/poncho-caption/pkg/config"
)

// Заголовки NVCF: оба обязательны и оба ссылаются на один и тот же ассет.
const (
	HeaderInputAssetReferences = "NVCF-INPUT-ASSET-REFERENCES"
	HeaderFunctionAssetIDs     = "NVCF-FUNCTION-ASSET-IDS"
)

// RawResponse: ответ модели до декодирования.
type RawResponse struct {
	Body        []byte
	ContentType string // Значение Content-Type в нижнем регистре
	AssetID     AssetID
}

// invokeRequest: тело запроса к модели. Формат сообщений совпадает с OpenAI chat API.
type invokeRequest struct {
	Messages []openai.ChatCompletionMessage `json:"messages"`
}

// AssetContent собирает текст сообщения: директива и встроенная ссылка на ассет.
//
// Сервис разбирает тег img с data-URI вида data:image/jpeg;asset_id,<id>.
func AssetContent(task string, id AssetID) string {
	return fmt.Sprintf(`%s<img src="data:image/jpeg;asset_id,%s" />`, task, id)
}

// Classify загружает изображение и вызывает модель с директивой task.
//
// Пустой task заменяется на config.DefaultTask. Ошибка загрузки не приводит
// к вызову модели и возвращается как ClassificationError, внутри которой UploadError.
func (c *Client) Classify(ctx context.Context, path, task string) (*RawResponse, error) {
	if task == "" {
		task = config.DefaultTask
	}

	c.log.Debug("starting classification", zap.String("path", path), zap.String("task", task))

	assetID, err := c.UploadAsset(ctx, path, "")
	if err != nil {
		return nil, apperr.Wrap(apperr.KindClassification, err, "classification failed")
	}

	raw, err := c.invoke(ctx, task, assetID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindClassification, err, "classification failed")
	}
	return raw, nil
}

// invoke отправляет один запрос к модели.
func (c *Client) invoke(ctx context.Context, task string, assetID AssetID) (*RawResponse, error) {
	reqBody, err := json.Marshal(invokeRequest{
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: AssetContent(task, assetID),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal invoke request: %w", err)
	}

	c.log.Debug("sending classification request", zap.String("url", c.invokeURL))

	resp, body, err := c.send(ctx, c.invokeTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.invokeURL, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderInputAssetReferences, string(assetID))
		req.Header.Set(HeaderFunctionAssetIDs, string(assetID))
		req.Header.Set("Authorization", c.authHeader())
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invoke: %w", err)
	}

	return &RawResponse{
		Body:        body,
		ContentType: strings.ToLower(resp.Header.Get("Content-Type")),
		AssetID:     assetID,
	}, nil
}
