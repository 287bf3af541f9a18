package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

const importWatermarkColumns = `stream_id, resource_id, last_imported_time, last_imported_id, import_complete, updated_at`

const processingWatermarkColumns = `stream_id, watermark_time, last_processed_batch, updated_at`

// WatermarkService manages import and processing watermarks
type WatermarkService struct {
	client *database.Client
}

// NewWatermarkService creates a new WatermarkService
func NewWatermarkService(client *database.Client) *WatermarkService {
	return &WatermarkService{client: client}
}

// GetImportWatermark retrieves the import watermark for one resource of
// a stream
func (s *WatermarkService) GetImportWatermark(ctx context.Context, streamID, resourceID string) (*models.ImportWatermark, error) {
	if streamID == "" {
		return nil, NewValidationError("stream_id", "required")
	}
	if resourceID == "" {
		return nil, NewValidationError("resource_id", "required")
	}

	var wm models.ImportWatermark
	err := s.client.GetContext(ctx, &wm,
		`SELECT `+importWatermarkColumns+` FROM import_watermarks
		WHERE stream_id = $1 AND resource_id = $2`,
		streamID, resourceID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("import watermark for '%s/%s': %w", streamID, resourceID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get import watermark: %w", err)
	}

	return &wm, nil
}

// ListImportWatermarks retrieves all import watermarks of a stream
func (s *WatermarkService) ListImportWatermarks(ctx context.Context, streamID string) ([]*models.ImportWatermark, error) {
	if streamID == "" {
		return nil, NewValidationError("stream_id", "required")
	}

	var wms []*models.ImportWatermark
	err := s.client.SelectContext(ctx, &wms,
		`SELECT `+importWatermarkColumns+` FROM import_watermarks
		WHERE stream_id = $1 ORDER BY resource_id`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list import watermarks: %w", err)
	}

	return wms, nil
}

// AdvanceImportWatermark records import progress for one resource.
// last_imported_time only moves forward, and last_imported_id is
// replaced only by a strictly greater id, so out-of-order adapter runs
// cannot rewind the watermark.
func (s *WatermarkService) AdvanceImportWatermark(ctx context.Context, streamID, resourceID string, seenTime time.Time, lastID string, complete bool) (*models.ImportWatermark, error) {
	if streamID == "" {
		return nil, NewValidationError("stream_id", "required")
	}
	if resourceID == "" {
		return nil, NewValidationError("resource_id", "required")
	}
	if seenTime.IsZero() {
		return nil, NewValidationError("seen_time", "required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var out models.ImportWatermark
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		var existing models.ImportWatermark
		err := tx.GetContext(ctx, &existing,
			`SELECT `+importWatermarkColumns+` FROM import_watermarks
			WHERE stream_id = $1 AND resource_id = $2 FOR UPDATE`,
			streamID, resourceID)
		if err != nil && !isNoRows(err) {
			return fmt.Errorf("failed to lock import watermark: %w", err)
		}

		if isNoRows(err) {
			var id *string
			if lastID != "" {
				id = &lastID
			}
			return tx.GetContext(ctx, &out,
				`INSERT INTO import_watermarks (stream_id, resource_id, last_imported_time, last_imported_id, import_complete)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING `+importWatermarkColumns,
				streamID, resourceID, seenTime.UTC(), id, complete)
		}

		newTime := existing.LastImportedTime
		if seenTime.After(newTime) {
			newTime = seenTime
		}
		newID := existing.LastImportedID
		if lastID != "" && (newID == nil || compareImportIDs(lastID, *newID) > 0) {
			newID = &lastID
		}

		return tx.GetContext(ctx, &out,
			`UPDATE import_watermarks
			SET last_imported_time = $3, last_imported_id = $4, import_complete = $5, updated_at = now()
			WHERE stream_id = $1 AND resource_id = $2
			RETURNING `+importWatermarkColumns,
			streamID, resourceID, newTime.UTC(), newID, complete)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to advance import watermark: %w", err)
	}

	return &out, nil
}

// GetProcessingWatermark retrieves the batch frontier of a stream
func (s *WatermarkService) GetProcessingWatermark(ctx context.Context, streamID string) (*models.ProcessingWatermark, error) {
	if streamID == "" {
		return nil, NewValidationError("stream_id", "required")
	}

	var wm models.ProcessingWatermark
	err := s.client.GetContext(ctx, &wm,
		`SELECT `+processingWatermarkColumns+` FROM processing_watermarks WHERE stream_id = $1`,
		streamID)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("processing watermark for '%s': %w", streamID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get processing watermark: %w", err)
	}

	return &wm, nil
}

// InitProcessingWatermark seeds the processing watermark of a stream.
// If a watermark already exists it is returned unchanged, so concurrent
// initialisation is safe.
func (s *WatermarkService) InitProcessingWatermark(ctx context.Context, streamID string, watermarkTime time.Time) (*models.ProcessingWatermark, error) {
	if streamID == "" {
		return nil, NewValidationError("stream_id", "required")
	}
	if watermarkTime.IsZero() {
		return nil, NewValidationError("watermark_time", "required")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.ExecContext(ctx,
		`INSERT INTO processing_watermarks (stream_id, watermark_time)
		VALUES ($1, $2)
		ON CONFLICT (stream_id) DO NOTHING`,
		streamID, watermarkTime.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to init processing watermark: %w", err)
	}

	return s.GetProcessingWatermark(ctx, streamID)
}

// AdvanceProcessingWatermarkTx moves the batch frontier forward inside
// the caller's transaction. The same transaction must carry the batch's
// classifications and proposals so partial results are never visible.
// Returns ErrConcurrentModification when the stored watermark already
// moved past newTime, which means another worker processed the batch.
func (s *WatermarkService) AdvanceProcessingWatermarkTx(ctx context.Context, tx *sqlx.Tx, streamID string, newTime time.Time, batchID string) error {
	if streamID == "" {
		return NewValidationError("stream_id", "required")
	}
	if newTime.IsZero() {
		return NewValidationError("new_time", "required")
	}

	var lastBatch *string
	if batchID != "" {
		lastBatch = &batchID
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE processing_watermarks
		SET watermark_time = $2, last_processed_batch = $3, updated_at = now()
		WHERE stream_id = $1 AND watermark_time <= $2`,
		streamID, newTime.UTC(), lastBatch)
	if err != nil {
		return fmt.Errorf("failed to advance processing watermark: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Either the stream has no watermark row yet or another worker
	// already advanced past newTime.
	var exists bool
	if err := tx.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM processing_watermarks WHERE stream_id = $1)`, streamID); err != nil {
		return fmt.Errorf("failed to check processing watermark: %w", err)
	}
	if exists {
		return fmt.Errorf("watermark for '%s' already beyond %s: %w", streamID, newTime.UTC().Format(time.RFC3339), ErrConcurrentModification)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO processing_watermarks (stream_id, watermark_time, last_processed_batch)
		VALUES ($1, $2, $3)`,
		streamID, newTime.UTC(), lastBatch); err != nil {
		return fmt.Errorf("failed to create processing watermark: %w", err)
	}

	return nil
}

// compareImportIDs orders provider message ids. Numeric ids (including
// dotted decimals like Slack timestamps) compare by value; anything
// else falls back to lexicographic order.
func compareImportIDs(a, b string) int {
	ai, af, aNum := splitDecimal(a)
	bi, bf, bNum := splitDecimal(b)
	if !aNum || !bNum {
		return strings.Compare(a, b)
	}

	if c := compareUintStrings(ai, bi); c != 0 {
		return c
	}

	// Fractional parts compare digit by digit; the shorter side is
	// right-padded with zeros.
	for len(af) < len(bf) {
		af += "0"
	}
	for len(bf) < len(af) {
		bf += "0"
	}
	return strings.Compare(af, bf)
}

// splitDecimal breaks an id into integer and fractional digit strings.
// ok is false when the id is not a plain unsigned decimal.
func splitDecimal(id string) (intPart, fracPart string, ok bool) {
	intPart, fracPart, _ = strings.Cut(id, ".")
	if intPart == "" {
		return "", "", false
	}
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	for _, r := range fracPart {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	return intPart, fracPart, true
}

// compareUintStrings compares unsigned decimal strings by value.
func compareUintStrings(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
