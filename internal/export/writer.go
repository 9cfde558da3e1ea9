package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

const (
	dirDateFormat  = "01022006"
	dirTimeFormat  = "150405"
	fileDateFormat = "01022006"
)

// Writer serializes assembled export tables into per-run timestamped
// directories, one per partner folder
type Writer struct {
	baseDir    string
	reportDate time.Time
	logger     logger.Logger
}

// NewWriter creates a writer rooted at baseDir. The report date stamps every
// directory and file name for the run.
func NewWriter(baseDir string, reportDate time.Time, logger logger.Logger) *Writer {
	return &Writer{
		baseDir:    baseDir,
		reportDate: reportDate,
		logger:     logger,
	}
}

// Save writes one partner's table as CSV and returns the file path. An empty
// table produces no file and an empty path.
func (w *Writer) Save(a *Assembler, folder string) (string, error) {
	if len(a.Rows()) == 0 {
		return "", nil
	}

	dirPath := filepath.Join(
		w.baseDir,
		folder,
		fmt.Sprintf("%s_%s", w.reportDate.Format(dirDateFormat), w.reportDate.Format(dirTimeFormat)),
	)

	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	filePath := filepath.Join(dirPath, fmt.Sprintf("Invoice_%s.csv", w.reportDate.Format(fileDateFormat)))

	file, err := os.Create(filePath)

	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)

	if err := cw.Write(a.Headers()); err != nil {
		return "", fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, row := range a.Rows() {
		record := make([]string, len(a.Headers()))

		for i, column := range a.Headers() {
			record[i] = row[column]
		}

		if err := cw.Write(record); err != nil {
			return "", fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}

	w.logger.Info("Wrote export file", "path", filePath, "rows", len(a.Rows()))
	return filePath, nil
}
