// classify-image: подпись одного изображения через NVIDIA Florence-2.
//
// Использование:
//
//	classify-image IMAGE OUTPUT_DIR [--task "<CAPTION>"] [--debug] [--config config.yaml] [--notify]
//
// Результат пишется в OUTPUT_DIR/{имя}_classification.json, а на stdout
// печатается одна строка CLASSIFICATION_RESULT:{json}. Логи идут в stderr.
// Код выхода: 0 при успехе, 1 при любой ошибке.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ilkoid/poncho-caption/pkg/config"
	"github.com/ilkoid/poncho-caption/pkg/journal"
	"github.com/ilkoid/poncho-caption/pkg/logger"
	"github.com/ilkoid/poncho-caption/pkg/nvcf"
	"github.com/ilkoid/poncho-caption/pkg/s3storage"
	"github.com/ilkoid/poncho-caption/pkg/telegram"
	"github.com/ilkoid/poncho-caption/pkg/workflow"
)

var (
	taskFlag   string
	debugFlag  bool
	configFlag string
	notifyFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "classify-image IMAGE OUTPUT_DIR",
	Short: "Caption an image with NVIDIA Florence-2",
	Long: `Uploads IMAGE as an NVCF asset, asks the vision model for a caption
and saves the result to OUTPUT_DIR/{name}_classification.json.

The outcome is printed to stdout as a single CLASSIFICATION_RESULT:{json} line.`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(run(context.Background(), args[0], args[1]))
	},
}

func init() {
	rootCmd.Flags().StringVar(&taskFlag, "task", config.DefaultTask, "task directive for the model")
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&configFlag, "config", "", "path to config.yaml (default: ./config.yaml if present)")
	rootCmd.Flags().BoolVar(&notifyFlag, "notify", false, "send the image and caption to Telegram")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// run возвращает код выхода; defer'ы отрабатывают до os.Exit.
func run(ctx context.Context, imagePath, outputDir string) int {
	runID := uuid.NewString()

	cfg, cfgErr := config.LoadLayered(configFlag)

	opts := logger.Options{Debug: debugFlag, RunID: runID}
	if cfg != nil {
		opts.Debug = opts.Debug || cfg.App.Debug
		opts.LogFile = cfg.App.LogFile
	}
	log, err := logger.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v, logging to stderr only\n", err)
		opts.LogFile = ""
		log, _ = logger.New(opts)
	}
	defer log.Sync()

	var out workflow.Outcome
	if cfgErr != nil {
		out = workflow.Failure(imagePath, cfgErr)
	} else {
		driver, cleanup := buildDriver(cfg, runID, log)
		defer cleanup()

		out = driver.Run(ctx, workflow.Request{
			ImagePath: imagePath,
			OutputDir: outputDir,
			Task:      taskFlag,
			Notify:    notifyFlag,
		})
	}

	if !out.Success {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", out.Err)
		fmt.Fprintf(os.Stderr, "ERROR_TYPE: %s\n", out.ErrorType())
		fmt.Fprintf(os.Stderr, "%+v\n", out.Err)
	}

	if err := workflow.Emit(os.Stdout, out); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to write result: %v\n", err)
		return 1
	}
	return out.ExitCode()
}

// buildDriver собирает драйвер и необязательные компоненты из конфигурации.
// Ошибки необязательных компонентов только логируются.
func buildDriver(cfg *config.AppConfig, runID string, log *zap.Logger) (*workflow.Driver, func()) {
	cleanup := func() {}
	opts := []workflow.Option{
		workflow.WithLogger(log),
		workflow.WithRunID(runID),
	}

	var classifier workflow.Classifier
	client, err := nvcf.NewFromConfig(cfg.Vision, cfg.ImageProcessing, nvcf.WithLogger(log))
	if err == nil {
		classifier = client
	} else {
		// Driver.Run сам вернёт ConfigurationError
		log.Debug("vision client not created", zap.Error(err))
	}

	if cfg.S3.Enabled() {
		if mirror, err := s3storage.New(cfg.S3); err != nil {
			log.Warn("s3 mirror disabled", zap.Error(err))
		} else {
			opts = append(opts, workflow.WithMirror(mirror))
		}
	}

	if cfg.Journal.Path != "" {
		if j, err := journal.Open(cfg.Journal.Path); err != nil {
			log.Warn("journal disabled", zap.Error(err))
		} else {
			opts = append(opts, workflow.WithJournal(j))
			cleanup = func() {
				if err := j.Close(); err != nil {
					log.Warn("failed to close journal", zap.Error(err))
				}
			}
		}
	}

	if notifyFlag {
		if !cfg.Telegram.Enabled() {
			log.Warn("--notify set but telegram token or chat_id is missing")
		} else if tg, err := telegram.NewFromConfig(cfg.Telegram, telegram.WithLogger(log)); err != nil {
			log.Warn("telegram notifier disabled", zap.Error(err))
		} else {
			opts = append(opts, workflow.WithNotifier(tg, cfg.Telegram.ChatID))
		}
	}

	return workflow.New(cfg, classifier, opts...), cleanup
}
