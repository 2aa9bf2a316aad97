// "Тупой" клиент: кладёт готовые файлы результатов в бакет, ничего не читает обратно.

package s3storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ilkoid/poncho-caption/pkg/config"
)

// objectPutter: часть minio API, которой пользуется клиент.
// *minio.Client реализует этот интерфейс; в тестах подменяется.
type objectPutter interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Client зеркалирует файлы результатов в S3-совместимое хранилище.
type Client struct {
	api    objectPutter
	bucket string
	prefix string
}

// StoredObject: то, что легло в бакет.
type StoredObject struct {
	Key  string
	Size int64
	ETag string
}

// New создает клиент, используя наш конфиг.
func New(cfg config.S3Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("s3.bucket is required")
	}

	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	return &Client{
		api:    minioClient,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// ObjectKey строит ключ объекта: prefix + имя файла.
func (c *Client) ObjectKey(localPath string) string {
	return path.Join(c.prefix, filepath.Base(localPath))
}

// MirrorFile загружает локальный файл результата в бакет.
//
// Объект с тем же ключом перезаписывается, как и локальный файл.
func (c *Client) MirrorFile(ctx context.Context, localPath string) (*StoredObject, error) {
	key := c.ObjectKey(localPath)

	info, err := c.api.FPutObject(ctx, c.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return &StoredObject{
		Key:  info.Key,
		Size: info.Size,
		ETag: info.ETag,
	}, nil
}
