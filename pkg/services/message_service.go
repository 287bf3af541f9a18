package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Lionscraft-io/DocPythia-sub001/pkg/database"
	"github.com/Lionscraft-io/DocPythia-sub001/pkg/models"
)

const messageColumns = `id, tenant_id, stream_id, message_id, timestamp, author, content,
	channel, conversation_id, raw_data, metadata_json, embedding, processing_status,
	failure_count, last_error, created_at`

// MessageService manages unified messages produced by stream adapters
type MessageService struct {
	client *database.Client
}

// NewMessageService creates a new MessageService
func NewMessageService(client *database.Client) *MessageService {
	return &MessageService{client: client}
}

// UpsertMessages stores normalised messages, skipping rows that already
// exist for the same (stream_id, message_id). Returns the number of new
// rows, so re-importing the same source batch reports zero.
func (s *MessageService) UpsertMessages(ctx context.Context, tenantID string, msgs []models.NormalizedMessage) (int, error) {
	if tenantID == "" {
		return 0, NewValidationError("tenant_id", "required")
	}
	for i := range msgs {
		if msgs[i].StreamID == "" {
			return 0, NewValidationError("stream_id", fmt.Sprintf("required (message %d)", i))
		}
		if msgs[i].MessageID == "" {
			return 0, NewValidationError("message_id", fmt.Sprintf("required (message %d)", i))
		}
		if msgs[i].Timestamp.IsZero() {
			return 0, NewValidationError("timestamp", fmt.Sprintf("required (message %d)", i))
		}
		if msgs[i].Author == "" {
			return 0, NewValidationError("author", fmt.Sprintf("required (message %d)", i))
		}
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	inserted := 0
	err := s.client.WithTx(ctx, func(tx *sqlx.Tx) error {
		for i := range msgs {
			msg := &msgs[i]

			metadata, err := json.Marshal(msg.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode metadata for message '%s': %w", msg.MessageID, err)
			}
			var channel *string
			if msg.Channel != "" {
				channel = &msg.Channel
			}
			var raw any
			if len(msg.RawData) > 0 {
				raw = []byte(msg.RawData)
			}

			res, err := tx.ExecContext(ctx,
				`INSERT INTO unified_messages
					(tenant_id, stream_id, message_id, timestamp, author, content, channel, raw_data, metadata_json)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (stream_id, message_id) DO NOTHING`,
				tenantID, msg.StreamID, msg.MessageID, msg.Timestamp.UTC(), msg.Author,
				msg.Content, channel, raw, metadata)
			if err != nil {
				return fmt.Errorf("failed to insert message '%s': %w", msg.MessageID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}

// GetMessage retrieves a message by its database id
func (s *MessageService) GetMessage(ctx context.Context, id int64) (*models.UnifiedMessage, error) {
	var msg models.UnifiedMessage
	err := s.client.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM unified_messages WHERE id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &msg, nil
}

// ListMessages retrieves messages matching the filters, newest first,
// with the total match count for pagination.
func (s *MessageService) ListMessages(ctx context.Context, filters models.MessageFilters) ([]*models.UnifiedMessage, int64, error) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, cond+"$"+strconv.Itoa(len(args)))
	}
	if filters.TenantID != "" {
		add("tenant_id = ", filters.TenantID)
	}
	if filters.StreamID != "" {
		add("stream_id = ", filters.StreamID)
	}
	if filters.Status != "" {
		if !filters.Status.IsValid() {
			return nil, 0, NewValidationError("status", fmt.Sprintf("unknown status '%s'", filters.Status))
		}
		add("processing_status = ", filters.Status)
	}
	if filters.Since != nil {
		add("timestamp >= ", filters.Since.UTC())
	}
	if filters.Until != nil {
		add("timestamp < ", filters.Until.UTC())
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.client.GetContext(ctx, &total,
		`SELECT count(*) FROM unified_messages`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	limit := normalizeLimit(filters.Limit)
	args = append(args, limit, filters.Offset)
	query := fmt.Sprintf(`SELECT %s FROM unified_messages%s ORDER BY timestamp DESC, id DESC LIMIT $%d OFFSET $%d`,
		messageColumns, where, len(args)-1, len(args))

	var messages []*models.UnifiedMessage
	if err := s.client.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, total, nil
}

// MessagesInWindow retrieves a stream's messages with timestamp in
// [from, to), in stable batch order. A limit of zero means no limit.
func (s *MessageService) MessagesInWindow(ctx context.Context, streamID string, from, to time.Time, limit int) ([]*models.UnifiedMessage, error) {
	if streamID == "" {
		return nil, NewValidationError("stream_id", "required")
	}

	query := `SELECT ` + messageColumns + ` FROM unified_messages
		WHERE stream_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC, id ASC`
	args := []any{streamID, from.UTC(), to.UTC()}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	var messages []*models.UnifiedMessage
	if err := s.client.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get messages in window: %w", err)
	}

	return messages, nil
}

// MessagesByConversations retrieves the messages of the given
// conversations, oldest first.
func (s *MessageService) MessagesByConversations(ctx context.Context, conversationIDs []string) ([]*models.UnifiedMessage, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		`SELECT `+messageColumns+` FROM unified_messages
		WHERE conversation_id IN (?) ORDER BY timestamp ASC, id ASC`, conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build conversation query: %w", err)
	}

	var messages []*models.UnifiedMessage
	if err := s.client.SelectContext(ctx, &messages, s.client.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get conversation messages: %w", err)
	}

	return messages, nil
}

// EarliestMessageTime returns the timestamp of a stream's oldest
// message, or nil when the stream has no messages. Used to seed the
// processing watermark.
func (s *MessageService) EarliestMessageTime(ctx context.Context, streamID string) (*time.Time, error) {
	if streamID == "" {
		return nil, NewValidationError("stream_id", "required")
	}

	var earliest *time.Time
	err := s.client.GetContext(ctx, &earliest,
		`SELECT min(timestamp) FROM unified_messages WHERE stream_id = $1`, streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get earliest message time: %w", err)
	}

	return earliest, nil
}

// NextPendingStreams returns the ids of streams holding at least one
// PENDING message with timestamp at or before the cutoff. These are the
// streams the batch processor should visit this tick.
func (s *MessageService) NextPendingStreams(ctx context.Context, cutoff time.Time) ([]string, error) {
	var streams []string
	err := s.client.SelectContext(ctx, &streams,
		`SELECT DISTINCT stream_id FROM unified_messages
		WHERE processing_status = $1 AND timestamp <= $2
		ORDER BY stream_id`,
		models.ProcessingStatusPending, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get pending streams: %w", err)
	}

	return streams, nil
}

// PendingCount returns the number of PENDING messages for a stream.
// The stream manager compares this against the backpressure threshold.
func (s *MessageService) PendingCount(ctx context.Context, streamID string) (int64, error) {
	if streamID == "" {
		return 0, NewValidationError("stream_id", "required")
	}

	var count int64
	err := s.client.GetContext(ctx, &count,
		`SELECT count(*) FROM unified_messages WHERE stream_id = $1 AND processing_status = $2`,
		streamID, models.ProcessingStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending messages: %w", err)
	}

	return count, nil
}

// SetStatusTx updates the processing status of the given messages
// inside the caller's transaction.
func (s *MessageService) SetStatusTx(ctx context.Context, tx *sqlx.Tx, ids []int64, status models.ProcessingStatus) error {
	if len(ids) == 0 {
		return nil
	}
	if !status.IsValid() {
		return NewValidationError("status", fmt.Sprintf("unknown status '%s'", status))
	}

	query, args, err := sqlx.In(
		`UPDATE unified_messages SET processing_status = ? WHERE id IN (?)`, status, ids)
	if err != nil {
		return fmt.Errorf("failed to build status update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to set message status: %w", err)
	}

	return nil
}

// SetConversationIDTx stamps the conversation id onto its member
// messages inside the caller's transaction.
func (s *MessageService) SetConversationIDTx(ctx context.Context, tx *sqlx.Tx, conversationID string, ids []int64) error {
	if conversationID == "" {
		return NewValidationError("conversation_id", "required")
	}
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		`UPDATE unified_messages SET conversation_id = ? WHERE id IN (?)`, conversationID, ids)
	if err != nil {
		return fmt.Errorf("failed to build conversation update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to set conversation id: %w", err)
	}

	return nil
}

// RecordFailuresTx increments the failure count of the given messages
// and stores the batch error. Messages reaching maxFailures flip to
// FAILED and are skipped by subsequent batches; the rest return to
// PENDING for retry.
func (s *MessageService) RecordFailuresTx(ctx context.Context, tx *sqlx.Tx, ids []int64, batchErr string, maxFailures int) error {
	if len(ids) == 0 {
		return nil
	}
	if maxFailures <= 0 {
		maxFailures = 5
	}

	query, args, err := sqlx.In(
		`UPDATE unified_messages
		SET failure_count = failure_count + 1,
			last_error = ?,
			processing_status = CASE WHEN failure_count + 1 >= ? THEN ? ELSE ? END
		WHERE id IN (?)`,
		batchErr, maxFailures, models.ProcessingStatusFailed, models.ProcessingStatusPending, ids)
	if err != nil {
		return fmt.Errorf("failed to build failure update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to record message failures: %w", err)
	}

	return nil
}

// PurgeFailedOlderThan deletes FAILED messages created before the
// cutoff. Used by the retention sweep; completed messages are kept as
// conversation history.
func (s *MessageService) PurgeFailedOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.client.ExecContext(ctx,
		`DELETE FROM unified_messages WHERE processing_status = $1 AND created_at < $2`,
		models.ProcessingStatusFailed, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge failed messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SetEmbedding stores the embedding vector computed for a message.
func (s *MessageService) SetEmbedding(ctx context.Context, id int64, vector []float32) error {
	encoded, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.client.ExecContext(ctx,
		`UPDATE unified_messages SET embedding = $2 WHERE id = $1`, id, encoded)
	if err != nil {
		return fmt.Errorf("failed to set embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}

	return nil
}
