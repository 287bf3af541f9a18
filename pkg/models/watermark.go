package models

import "time"

// ImportWatermark tracks per-(stream, resource) import progress.
// last_imported_time never decreases; last_imported_id breaks ties at
// equal timestamps and only advances when strictly greater.
type ImportWatermark struct {
	StreamID         string    `db:"stream_id" json:"stream_id"`
	ResourceID       string    `db:"resource_id" json:"resource_id"`
	LastImportedTime time.Time `db:"last_imported_time" json:"last_imported_time"`
	LastImportedID   *string   `db:"last_imported_id" json:"last_imported_id,omitempty"`
	ImportComplete   bool      `db:"import_complete" json:"import_complete"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// ProcessingWatermark is the per-stream batch frontier. One row per
// stream; watermark_time advances only after the batch ending at
// watermark_time + batch_window has committed in full.
type ProcessingWatermark struct {
	StreamID           string    `db:"stream_id" json:"stream_id"`
	WatermarkTime      time.Time `db:"watermark_time" json:"watermark_time"`
	LastProcessedBatch *string   `db:"last_processed_batch" json:"last_processed_batch,omitempty"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}
