// Package logger строит zap логгер для CLI утилит.
//
// Все логи идут в stderr (и опционально в файл): stdout зарезервирован
// под строку CLASSIFICATION_RESULT, которую парсит вызывающий процесс.
//
// Уровень задаётся явно через Options.Debug, глобального флага нет.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options: настройки логгера.
type Options struct {
	Debug   bool   // Включает уровень debug
	LogFile string // Дополнительный файл (append), пусто: только stderr
	RunID   string // Идентификатор запуска, добавляется в каждую запись
}

// New создаёт логгер. Вызывающий обязан вызвать Sync() перед выходом.
func New(opts Options) (*zap.Logger, error) {
	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.LevelKey = "level"

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}

	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		jsonCfg := zap.NewProductionEncoderConfig()
		jsonCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		jsonCfg.TimeKey = "timestamp"
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), zapcore.AddSync(f), level))
	}

	log := zap.New(zapcore.NewTee(cores...))
	if opts.RunID != "" {
		log = log.With(zap.String("run_id", opts.RunID))
	}
	return log, nil
}

// NewSugared: New, но сразу *zap.SugaredLogger для key/value вызовов.
func NewSugared(opts Options) (*zap.SugaredLogger, error) {
	log, err := New(opts)
	if err != nil {
		return nil, err
	}
	return log.Sugar(), nil
}
