package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/domain"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Writer exports the queue state to an .xlsx handover report so a
// student can show a supervisor what is still pending and what was
// permanently rejected.
type Writer struct {
	store  domain.QueueStore
	path   string
	logger *zerolog.Logger
}

func NewWriter(store domain.QueueStore, path string, logger *zerolog.Logger) *Writer {
	return &Writer{store: store, path: path, logger: logger}
}

// WriteQueueReport writes one sheet of pending items and one of
// permanent failures; returns the file path.
func (w *Writer) WriteQueueReport(ctx context.Context) (string, error) {
	if err := os.MkdirAll(w.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	pending, err := w.store.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("error reading pending submissions: %w", err)
	}
	dead, err := w.store.DeadSubmissions(ctx)
	if err != nil {
		return "", fmt.Errorf("error reading failed submissions: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	pendingSheet := "Pending"
	index, err := f.NewSheet(pendingSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"Local ID", "Owner", "Type", "Payload", "Client Time", "Attempts", "Last Error"}
	writeRow(f, pendingSheet, 1, headers)
	for i, item := range pending {
		lastErr := ""
		if item.LastError != nil {
			lastErr = *item.LastError
		}
		writeRow(f, pendingSheet, i+2, []string{
			item.LocalID,
			item.OwnerID,
			item.Type,
			item.Payload,
			item.ClientTime.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", item.AttemptCount),
			lastErr,
		})
	}

	deadSheet := "Failed"
	if _, err := f.NewSheet(deadSheet); err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	writeRow(f, deadSheet, 1, []string{"Local ID", "Owner", "Type", "Payload", "Client Time", "Attempts", "Last Error", "Failed At"})
	for i, item := range dead {
		writeRow(f, deadSheet, i+2, []string{
			item.LocalID,
			item.OwnerID,
			item.Type,
			item.Payload,
			item.ClientTime.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", item.Attempts),
			item.LastError,
			item.FailedAt.Format("2006-01-02 15:04"),
		})
	}

	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(pendingSheet, "A1", "G1", style)
	_ = f.SetCellStyle(deadSheet, "A1", "H1", style)
	_ = f.SetColWidth(pendingSheet, "A", "G", 22)
	_ = f.SetColWidth(deadSheet, "A", "H", 22)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("queue_report_%s.xlsx", time.Now().Format("2006-01-02_150405"))
	filePath := filepath.Join(w.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	if w.logger != nil {
		w.logger.Info().Str("file_path", filePath).Int("pending", len(pending)).Int("failed", len(dead)).Msg("queue report created")
	}
	return filePath, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []string) {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			continue
		}
		_ = f.SetCellValue(sheet, cell, value)
	}
}
