package nvcf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/ilkoid/poncho-caption/pkg/apperr"
	"github.com/ilkoid/poncho-caption/pkg/contenttype"
	"github.com/ilkoid/poncho-caption/pkg/utils"
)

// AssetID: непрозрачный идентификатор загруженного ассета.
//
// Используется один раз, в следующем за загрузкой вызове модели.
// Не кэшируется и явно не удаляется: срок жизни определяет NVCF.
type AssetID string

type authorizeRequest struct {
	ContentType string `json:"contentType"`
	Description string `json:"description"`
}

type authorizeResponse struct {
	UploadURL string `json:"uploadUrl"`
	AssetID   string `json:"assetId"`
}

// payload: подготовленное к загрузке тело.
type payload struct {
	body        io.Reader
	size        int64
	contentType string
	closer      io.Closer
}

// UploadAsset загружает файл в NVCF и возвращает идентификатор ассета.
//
// Алгоритм:
//  1. Определяет Content-Type по расширению (pkg/contenttype)
//  2. POST на assets_url: ответ содержит uploadUrl и assetId
//  3. PUT тела файла на uploadUrl
//
// Любая ошибка (файл, сеть, статус) возвращается как UploadError.
func (c *Client) UploadAsset(ctx context.Context, path, description string) (AssetID, error) {
	if description == "" {
		description = c.description
	}

	c.log.Debug("starting asset upload", zap.String("path", path))

	p, err := c.preparePayload(path)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpload, err, "failed to upload asset")
	}
	defer p.closer.Close()

	c.log.Debug("content type", zap.String("content_type", p.contentType), zap.Int64("size", p.size))

	auth, err := c.authorize(ctx, p.contentType, description)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpload, err, "failed to upload asset")
	}

	if err := c.put(ctx, auth.UploadURL, p, description); err != nil {
		return "", apperr.Wrap(apperr.KindUpload, err, "failed to upload asset")
	}

	c.log.Debug("asset uploaded", zap.String("asset_id", auth.AssetID))
	return AssetID(auth.AssetID), nil
}

// preparePayload открывает файл и при необходимости уменьшает изображение.
func (c *Client) preparePayload(path string) (*payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat image: %w", err)
	}

	p := &payload{
		body:        f,
		size:        info.Size(),
		contentType: contenttype.Infer(path),
		closer:      f,
	}

	if c.imageProc.MaxWidth <= 0 {
		return p, nil
	}

	resized, ok, err := utils.Downscale(f, c.imageProc.MaxWidth, c.imageProc.Quality)
	if err != nil {
		// Неизвестный декодеру формат уходит как есть
		c.log.Warn("downscale skipped", zap.String("path", path), zap.Error(err))
	}
	if ok {
		c.log.Debug("image downscaled",
			zap.Int64("original_bytes", info.Size()),
			zap.Int("resized_bytes", len(resized)))
		p.body = bytes.NewReader(resized)
		p.size = int64(len(resized))
		p.contentType = "image/jpeg"
		return p, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("rewind image: %w", err)
	}
	return p, nil
}

// authorize запрашивает подписанный URL для загрузки.
func (c *Client) authorize(ctx context.Context, contentType, description string) (*authorizeResponse, error) {
	reqBody, err := json.Marshal(authorizeRequest{ContentType: contentType, Description: description})
	if err != nil {
		return nil, fmt.Errorf("marshal authorize request: %w", err)
	}

	c.log.Debug("sending authorization request", zap.String("url", c.assetsURL))

	_, body, err := c.send(ctx, c.authorizeTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.assetsURL, bytes.NewReader(reqBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.authHeader())
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}

	var auth authorizeResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("authorize: unmarshal error: %w", err)
	}
	if auth.UploadURL == "" || auth.AssetID == "" {
		return nil, fmt.Errorf("authorize: response without uploadUrl or assetId")
	}

	return &auth, nil
}

// put отправляет тело файла на подписанный URL.
//
// Authorization сюда не передаётся: URL уже подписан.
func (c *Client) put(ctx context.Context, uploadURL string, p *payload, description string) error {
	c.log.Debug("uploading file", zap.Int64("size", p.size))

	_, _, err := c.send(ctx, c.uploadTimeout, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, p.body)
		if err != nil {
			return nil, err
		}
		req.ContentLength = p.size
		req.Header.Set("x-amz-meta-nvcf-asset-description", description)
		req.Header.Set("Content-Type", p.contentType)
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	return nil
}
