// Package journal ведёт историю запусков классификатора в sqlite.
//
// Одна строка на запуск: успех или отказ, текст или ошибка. Журнал
// только дописывается; повторный запуск для того же изображения даёт новую строку.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // Регистрируем драйвер sqlite3
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	image_file     TEXT NOT NULL,
	image_path     TEXT NOT NULL,
	success        INTEGER NOT NULL,
	classification TEXT,
	result_file    TEXT,
	error          TEXT,
	error_type     TEXT,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_image_file ON runs(image_file);
`

// Entry: одна запись журнала.
type Entry struct {
	RunID          string
	ImageFile      string
	ImagePath      string
	Success        bool
	Classification string
	ResultFile     string
	Error          string
	ErrorType      string
	CreatedAt      time.Time
}

// Journal: журнал поверх *sql.DB.
type Journal struct {
	db *sql.DB
}

// Open открывает (или создаёт) базу и применяет схему.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Append добавляет запись. Пустой CreatedAt заменяется текущим временем.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, image_file, image_path, success, classification, result_file, error, error_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.ImageFile, e.ImagePath, e.Success,
		nullable(e.Classification), nullable(e.ResultFile), nullable(e.Error), nullable(e.ErrorType),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Recent возвращает последние limit записей для изображения, новые первыми.
func (j *Journal) Recent(ctx context.Context, imageFile string, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, image_file, image_path, success, classification, result_file, error, error_type, created_at
		 FROM runs WHERE image_file = ? ORDER BY id DESC LIMIT ?`,
		imageFile, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                                            Entry
			classification, resultFile, errText, errType sql.NullString
			createdAt                                    string
		)
		if err := rows.Scan(&e.RunID, &e.ImageFile, &e.ImagePath, &e.Success,
			&classification, &resultFile, &errText, &errType, &createdAt); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Classification = classification.String
		e.ResultFile = resultFile.String
		e.Error = errText.String
		e.ErrorType = errType.String
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// captionScanLimit: сколько последних записей просматривает LastCaption.
const captionScanLimit = 20

// LastCaption возвращает текст последней успешной классификации изображения.
// ok=false, если среди последних записей успешных нет.
func (j *Journal) LastCaption(ctx context.Context, imageFile string) (text string, ok bool, err error) {
	entries, err := j.Recent(ctx, imageFile, captionScanLimit)
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.Success {
			return e.Classification, true, nil
		}
	}
	return "", false, nil
}

// Close закрывает базу.
func (j *Journal) Close() error {
	return j.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
