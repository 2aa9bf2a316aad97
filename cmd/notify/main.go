// notify: отправляет изображение с подписью (или просто текст) в Telegram.
//
// Токен и чат берутся из config.yaml или TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID.
// Если изображение не найдено или не отправилось, отправляется только текст.
// С --from-journal подпись берётся из последней успешной классификации изображения
// в журнале (journal.path).
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ilkoid/poncho-caption/pkg/config"
	"github.com/ilkoid/poncho-caption/pkg/journal"
	"github.com/ilkoid/poncho-caption/pkg/logger"
	"github.com/ilkoid/poncho-caption/pkg/telegram"
)

const defaultMessage = "Image classification completed"

var (
	imageFlag   string
	messageFlag string
	configFlag  string
	debugFlag   bool
	fromJournal bool
)

var rootCmd = &cobra.Command{
	Use:           "notify",
	Short:         "Send an image and caption to Telegram",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(context.Background())
	},
}

func init() {
	rootCmd.Flags().StringVar(&imageFlag, "image", "", "path to the image to send")
	rootCmd.Flags().StringVar(&messageFlag, "message", defaultMessage, "caption or message text")
	rootCmd.Flags().StringVar(&configFlag, "config", "", "path to config.yaml (default: ./config.yaml if present)")
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&fromJournal, "from-journal", false, "use the last saved caption of --image as the message")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadLayered(configFlag)
	if err != nil {
		return err
	}

	log, err := logger.NewSugared(logger.Options{
		Debug:   debugFlag || cfg.App.Debug,
		LogFile: cfg.App.LogFile,
		RunID:   uuid.NewString(),
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	if !cfg.Telegram.Enabled() {
		return fmt.Errorf("telegram token and chat_id are required (TELEGRAM_BOT_TOKEN, TELEGRAM_CHAT_ID)")
	}

	message := messageFlag
	if fromJournal {
		if message, err = captionFromJournal(ctx, cfg.Journal.Path, imageFlag); err != nil {
			return err
		}
		log.Debugw("caption loaded from journal", "image", imageFlag, "journal", cfg.Journal.Path)
	}

	tg, err := telegram.NewFromConfig(cfg.Telegram, telegram.WithLogger(log.Desugar()))
	if err != nil {
		return err
	}

	delivery, err := tg.Notify(ctx, cfg.Telegram.ChatID, imageFlag, message)
	if err != nil {
		log.Errorw("notification failed", "error", err)
		return err
	}

	log.Infow("notification sent", "delivery", string(delivery))
	fmt.Printf("Message sent successfully (%s)\n", delivery)
	return nil
}

// captionFromJournal ищет последнюю успешную подпись изображения в журнале.
func captionFromJournal(ctx context.Context, journalPath, imagePath string) (string, error) {
	if journalPath == "" {
		return "", fmt.Errorf("--from-journal requires journal.path in config")
	}
	if imagePath == "" {
		return "", fmt.Errorf("--from-journal requires --image")
	}

	j, err := journal.Open(journalPath)
	if err != nil {
		return "", err
	}
	defer j.Close()

	text, ok, err := j.LastCaption(ctx, filepath.Base(imagePath))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no successful classification of %s in journal", filepath.Base(imagePath))
	}
	return text, nil
}
