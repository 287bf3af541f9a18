// Package csvdrop implements the file-drop stream adapter: operators
// drop CSV exports into a directory, each run imports the new files,
// moves them to processed/ (or error/) and leaves a JSON report next
// to the moved file.
package csvdrop

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/streams"
)

const (
	processedDirName = "processed"
	errorDirName     = "error"
)

// requiredColumns must all appear in the CSV header.
var requiredColumns = []string{"timestamp", "author", "content"}

// Config is the stream-specific configuration.
type Config struct {
	// DropDir is the directory watched for *.csv files.
	DropDir string `json:"drop_dir"`
	// Channel is the default channel for rows without a channel column.
	Channel string `json:"channel,omitempty"`
}

// Report is written next to each moved file.
type Report struct {
	File             string    `json:"file"`
	TotalRecords     int       `json:"totalRecords"`
	ProcessedRecords int       `json:"processedRecords"`
	SkippedRecords   int       `json:"skippedRecords"`
	Errors           []string  `json:"errors,omitempty"`
	CompletedAt      time.Time `json:"completedAt"`
}

// Adapter imports CSV drops for one stream.
type Adapter struct {
	env    *streams.Env
	logger *slog.Logger

	stream *models.StreamConfig
	cfg    Config
}

// New is the adapter factory.
func New(env *streams.Env) streams.Adapter {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{env: env, logger: logger.With("adapter", "csv-drop")}
}

func (a *Adapter) Type() models.AdapterType { return models.AdapterCSVDrop }

func (a *Adapter) ValidateConfig(raw json.RawMessage) error {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse csv-drop config: %w", err)
	}
	if cfg.DropDir == "" {
		return fmt.Errorf("csv-drop config: drop_dir is required")
	}
	return nil
}

func (a *Adapter) Initialize(_ context.Context, stream *models.StreamConfig) error {
	if err := json.Unmarshal(stream.ConfigJSON, &a.cfg); err != nil {
		return fmt.Errorf("parse csv-drop config: %w", err)
	}
	a.stream = stream
	a.logger = a.logger.With("stream_id", stream.StreamID)

	for _, sub := range []string{processedDirName, errorDirName} {
		if err := os.MkdirAll(filepath.Join(a.cfg.DropDir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", sub, err)
		}
	}
	return nil
}

// Run imports every *.csv currently in the drop directory, oldest name
// first. A file that fails to parse moves to error/ and does not stop
// the remaining files.
func (a *Adapter) Run(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(a.cfg.DropDir)
	if err != nil {
		return 0, fmt.Errorf("read drop directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	total := 0
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		imported, err := a.importFile(ctx, name)
		total += imported
		if err != nil {
			a.logger.Error("CSV import failed", "file", name, "error", err)
			a.moveWithReport(name, errorDirName, &Report{
				File:        name,
				Errors:      []string{err.Error()},
				CompletedAt: time.Now().UTC(),
			})
			continue
		}
	}
	return total, nil
}

// importFile parses one file, stores its rows, advances the import
// watermark and moves the file to processed/.
func (a *Adapter) importFile(ctx context.Context, name string) (int, error) {
	path := filepath.Join(a.cfg.DropDir, name)
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", name, err)
	}

	msgs, rowErrs, err := a.parse(f, name)
	_ = f.Close()
	if err != nil {
		return 0, err
	}

	imported := 0
	if len(msgs) > 0 {
		imported, err = a.env.Messages.UpsertMessages(ctx, a.stream.TenantID, msgs)
		if err != nil {
			return 0, fmt.Errorf("store %s: %w", name, err)
		}
	}

	if len(msgs) > 0 {
		maxTime := msgs[0].Timestamp
		for _, m := range msgs[1:] {
			if m.Timestamp.After(maxTime) {
				maxTime = m.Timestamp
			}
		}
		lastID := msgs[len(msgs)-1].MessageID
		if _, err := a.env.Watermarks.AdvanceImportWatermark(
			ctx, a.stream.StreamID, name, maxTime, lastID, true); err != nil {
			return imported, fmt.Errorf("advance watermark for %s: %w", name, err)
		}
	}

	report := &Report{
		File:             name,
		TotalRecords:     len(msgs) + len(rowErrs),
		ProcessedRecords: imported,
		SkippedRecords:   len(msgs) - imported,
		Errors:           rowErrs,
		CompletedAt:      time.Now().UTC(),
	}
	a.moveWithReport(name, processedDirName, report)

	a.logger.Info("CSV file imported",
		"file", name, "rows", report.TotalRecords,
		"imported", imported, "duplicates", report.SkippedRecords,
		"row_errors", len(rowErrs))
	return imported, nil
}

// parse reads the CSV and normalises its rows. Individual bad rows are
// collected, not fatal; a bad header is.
func (a *Adapter) parse(r io.Reader, filename string) ([]models.NormalizedMessage, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range requiredColumns {
		if _, ok := cols[required]; !ok {
			return nil, nil, fmt.Errorf("missing required column %q", required)
		}
	}

	var msgs []models.NormalizedMessage
	var rowErrs []string
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		ts, err := parseTimestamp(field("timestamp"))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: %v", line, err))
			continue
		}
		content := field("content")
		if content == "" {
			rowErrs = append(rowErrs, fmt.Sprintf("line %d: empty content", line))
			continue
		}

		messageID := field("message_id")
		if messageID == "" {
			messageID = rowHash(filename, record)
		}
		channel := field("channel")
		if channel == "" {
			channel = a.cfg.Channel
		}

		msgs = append(msgs, models.NormalizedMessage{
			StreamID:  a.stream.StreamID,
			MessageID: messageID,
			Timestamp: ts,
			Author:    field("author"),
			Content:   content,
			Channel:   channel,
			Metadata: models.MessageMetadata{
				ReplyToMessageID: field("reply_to"),
			},
		})
	}
	return msgs, rowErrs, nil
}

// moveWithReport relocates the file and writes its JSON report beside
// the new location. Failures here are logged only: the import itself
// already happened (or already failed).
func (a *Adapter) moveWithReport(name, subdir string, report *Report) {
	src := filepath.Join(a.cfg.DropDir, name)
	dst := filepath.Join(a.cfg.DropDir, subdir, name)
	if err := os.Rename(src, dst); err != nil {
		a.logger.Error("Failed to move CSV file", "file", name, "to", subdir, "error", err)
		return
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		a.logger.Error("Failed to encode import report", "file", name, "error", err)
		return
	}
	reportPath := dst + ".report.json"
	if err := os.WriteFile(reportPath, data, 0o644); err != nil {
		a.logger.Error("Failed to write import report", "file", name, "error", err)
	}
}

func (a *Adapter) Shutdown(context.Context) error { return nil }

// parseTimestamp accepts RFC 3339, a space-separated variant, and unix
// seconds.
func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return ts.UTC(), nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// rowHash derives a stable message id for rows without one.
func rowHash(filename string, record []string) string {
	h := sha256.New()
	h.Write([]byte(filename))
	for _, f := range record {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
