package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stays-service/models"
	"stays-service/utils"
)

// CSVWriter appends raw acquired items to a CSV file before normalization,
// one row per item with the payload kept as JSON.
type CSVWriter struct {
	mu       sync.Mutex
	filePath string
	logger   *utils.Logger
}

// NewCSVWriter creates a new CSVWriter
func NewCSVWriter(filePath string, logger *utils.Logger) *CSVWriter {
	return &CSVWriter{filePath: filePath, logger: logger}
}

var rawHeader = []string{"acquired_at", "source", "city", "name", "url", "payload"}

// WriteRawItems appends items, writing the header when the file is new
func (w *CSVWriter) WriteRawItems(kind models.SourceKind, city string, items []models.RawItem) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Ensure output directory exists
	dir := filepath.Dir(w.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	_, statErr := os.Stat(w.filePath)
	isNew := os.IsNotExist(statErr)

	file, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if isNew {
		if err := writer.Write(rawHeader); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, item := range items {
		payload, err := json.Marshal(item)
		if err != nil {
			w.logger.Error("Failed to encode raw item for CSV: %v", err)
			continue
		}
		row := []string{
			now,
			string(kind),
			city,
			firstString(item, "name", "title"),
			firstString(item, "sourceUrl", "link", "url"),
			string(payload),
		}
		if err := writer.Write(row); err != nil {
			w.logger.Error("Failed to write CSV row: %v", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	w.logger.Debug("Raw items appended to: %s (%d rows)", w.filePath, len(items))
	return nil
}

func firstString(item models.RawItem, keys ...string) string {
	for _, k := range keys {
		if s, ok := item[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
