// Package workflow проводит одно изображение через весь пайплайн:
// проверка входа, загрузка и вызов модели, декодирование ответа, запись результата.
//
// Run никогда не возвращает ошибку напрямую: любой отказ превращается в Outcome
// с Success=false, а Emit печатает его строкой CLASSIFICATION_RESULT.
//
// Зеркалирование в S3, журнал и уведомление в Telegram необязательны.
// Их ошибки только логируются и на итог не влияют.
package workflow

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ilkoid/poncho-caption/pkg/apperr"
	"github.com/ilkoid/poncho-caption/pkg/config"
	"github.com/ilkoid/poncho-caption/pkg/journal"
	"github.com/ilkoid/poncho-caption/pkg/nvcf"
	"github.com/ilkoid/poncho-caption/pkg/record"
	"github.com/ilkoid/poncho-caption/pkg/response"
	"github.com/ilkoid/poncho-caption/pkg/s3storage"
	"github.com/ilkoid/poncho-caption/pkg/telegram"
)

// Classifier загружает изображение и возвращает сырой ответ модели.
// *nvcf.Client реализует этот интерфейс.
type Classifier interface {
	Classify(ctx context.Context, path, task string) (*nvcf.RawResponse, error)
}

// Mirror копирует файл результата во внешнее хранилище.
type Mirror interface {
	MirrorFile(ctx context.Context, localPath string) (*s3storage.StoredObject, error)
}

// Journal сохраняет историю запусков.
type Journal interface {
	Append(ctx context.Context, e journal.Entry) error
}

// Notifier отправляет изображение с подписью.
type Notifier interface {
	Notify(ctx context.Context, chatID, imagePath, text string) (telegram.Delivery, error)
}

// Request: входные данные одного запуска.
type Request struct {
	ImagePath string
	OutputDir string
	Task      string // Пусто: config.DefaultTask
	Notify    bool
}

// Driver связывает компоненты пайплайна.
type Driver struct {
	cfg        *config.AppConfig
	classifier Classifier

	mirror   Mirror
	journal  Journal
	notifier Notifier
	chatID   string

	runID string
	log   *zap.SugaredLogger
}

// Option настраивает Driver.
type Option func(*Driver)

// WithMirror включает копирование файла результата.
func WithMirror(m Mirror) Option {
	return func(d *Driver) { d.mirror = m }
}

// WithJournal включает запись истории запусков.
func WithJournal(j Journal) Option {
	return func(d *Driver) { d.journal = j }
}

// WithNotifier включает уведомления в чат chatID (только для Request.Notify).
func WithNotifier(n Notifier, chatID string) Option {
	return func(d *Driver) {
		d.notifier = n
		d.chatID = chatID
	}
}

// WithRunID задаёт идентификатор запуска для журнала.
func WithRunID(id string) Option {
	return func(d *Driver) { d.runID = id }
}

// WithLogger задаёт логгер; по умолчанию zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.log = l.Sugar() }
}

// New создаёт драйвер. classifier может быть nil, если ключ API не задан:
// Run вернёт ConfigurationError до любого сетевого вызова.
func New(cfg *config.AppConfig, classifier Classifier, opts ...Option) *Driver {
	d := &Driver{
		cfg:        cfg,
		classifier: classifier,
		log:        zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run выполняет пайплайн и возвращает итог.
func (d *Driver) Run(ctx context.Context, req Request) Outcome {
	out := d.run(ctx, req)

	if out.Success {
		d.log.Infow("classification completed successfully",
			"image_file", out.ImageFile, "result_file", out.ResultFile)
	} else {
		d.log.Errorw("classification failed",
			"image_file", out.ImageFile, "error_type", out.ErrorType(), "error", out.Err)
	}

	d.appendJournal(ctx, req, out)
	return out
}

func (d *Driver) run(ctx context.Context, req Request) Outcome {
	d.log.Infow("starting image classification", "image", req.ImagePath, "output_dir", req.OutputDir)

	if err := d.validate(req); err != nil {
		return Failure(req.ImagePath, err)
	}

	raw, err := d.classifier.Classify(ctx, req.ImagePath, req.Task)
	if err != nil {
		return Failure(req.ImagePath, err)
	}
	d.log.Debugw("received model response",
		"content_type", raw.ContentType, "bytes", len(raw.Body), "asset_id", raw.AssetID)

	result, err := response.Parse(raw.Body, raw.ContentType)
	if err != nil {
		return Failure(req.ImagePath, err)
	}

	text := result.Text()
	if u, ok := result.(response.UnknownResult); ok {
		d.log.Warnw("model response could not be decoded, recording marker",
			"content_type", u.ContentType, "marker", u.Sentinel, "reason", u.Reason)
	} else {
		d.log.Debugw("decoded model response", "encoding", result.Encoding().String())
	}

	resultFile, err := record.Persist(req.ImagePath, text, req.OutputDir)
	if err != nil {
		return Failure(req.ImagePath, err)
	}
	d.log.Infow("classification saved", "result_file", resultFile)

	d.mirrorRecord(ctx, resultFile)
	if req.Notify {
		d.notify(ctx, req.ImagePath, text)
	}

	return Outcome{
		Success:        true,
		Classification: text,
		ResultFile:     resultFile,
		ImageFile:      filepath.Base(req.ImagePath),
	}
}

// validate проверяет вход до первого сетевого вызова.
func (d *Driver) validate(req Request) error {
	if d.cfg == nil {
		return apperr.New(apperr.KindConfiguration, "configuration is not loaded")
	}
	if err := d.cfg.RequireCredentials(); err != nil {
		return err
	}
	if d.classifier == nil {
		return apperr.New(apperr.KindConfiguration, "vision client is not configured")
	}

	info, err := os.Stat(req.ImagePath)
	if os.IsNotExist(err) {
		return apperr.Newf(apperr.KindFileNotFound, "image file not found: %s", req.ImagePath)
	}
	if err != nil {
		return apperr.Wrapf(apperr.KindValidation, err, "cannot access image file %s", req.ImagePath)
	}
	if !info.Mode().IsRegular() {
		return apperr.Newf(apperr.KindValidation, "image path is not a regular file: %s", req.ImagePath)
	}
	if info.Size() == 0 {
		return apperr.Newf(apperr.KindValidation, "image file is empty: %s", req.ImagePath)
	}
	return nil
}

func (d *Driver) mirrorRecord(ctx context.Context, resultFile string) {
	if d.mirror == nil {
		return
	}
	obj, err := d.mirror.MirrorFile(ctx, resultFile)
	if err != nil {
		d.log.Warnw("failed to mirror result file", "result_file", resultFile, "error", err)
		return
	}
	d.log.Infow("result file mirrored", "key", obj.Key, "size", obj.Size)
}

func (d *Driver) notify(ctx context.Context, imagePath, text string) {
	if d.notifier == nil {
		d.log.Warn("notification requested but telegram is not configured")
		return
	}
	delivery, err := d.notifier.Notify(ctx, d.chatID, imagePath, text)
	if err != nil {
		d.log.Warnw("failed to send notification", "error", err)
		return
	}
	d.log.Infow("notification sent", "delivery", string(delivery))
}

func (d *Driver) appendJournal(ctx context.Context, req Request, out Outcome) {
	if d.journal == nil {
		return
	}
	e := journal.Entry{
		RunID:          d.runID,
		ImageFile:      out.ImageFile,
		ImagePath:      req.ImagePath,
		Success:        out.Success,
		Classification: out.Classification,
		ResultFile:     out.ResultFile,
		ErrorType:      out.ErrorType(),
	}
	if out.Err != nil {
		e.Error = out.Err.Error()
	}
	if err := d.journal.Append(ctx, e); err != nil {
		d.log.Warnw("failed to append journal entry", "error", err)
	}
}
