package db

import (
	"context"
	"database/sql"

	"course-marketplace/models"
)

const dlqColumns = `id, message_id, topic, key, value, error_message, retry_count, resolved, notes, created_at, resolved_at`

func scanDLQ(row rowScanner) (*models.DLQMessage, error) {
	var (
		m          models.DLQMessage
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.MessageID, &m.Topic, &m.Key, &m.Value, &m.ErrorMessage,
		&m.RetryCount, &m.Resolved, &m.Notes, &m.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	m.ResolvedAt = timePtr(resolvedAt)
	return &m, nil
}

// StoreDLQMessage persists a message that failed processing.
func (s *PostgresStore) StoreDLQMessage(ctx context.Context, m *models.DLQMessage) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO dlq_messages (message_id, topic, key, value, error_message)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (message_id) DO NOTHING`,
		m.MessageID, m.Topic, m.Key, m.Value, m.ErrorMessage)
	return mapError(err, "")
}

func (s *PostgresStore) GetDLQMessage(ctx context.Context, messageID string) (*models.DLQMessage, error) {
	m, err := scanDLQ(s.q.QueryRowContext(ctx, `SELECT `+dlqColumns+` FROM dlq_messages WHERE message_id = $1`, messageID))
	if err != nil {
		return nil, mapError(err, "dlq message not found")
	}
	return m, nil
}

// ListDLQMessages returns unresolved messages, newest first.
func (s *PostgresStore) ListDLQMessages(ctx context.Context, limit int) ([]models.DLQMessage, error) {
	return s.queryDLQ(ctx, `SELECT `+dlqColumns+` FROM dlq_messages
		WHERE resolved = FALSE ORDER BY created_at DESC LIMIT $1`, limit)
}

// ListRetryableDLQMessages returns unresolved messages that still have
// retries left, oldest first.
func (s *PostgresStore) ListRetryableDLQMessages(ctx context.Context, limit int) ([]models.DLQMessage, error) {
	return s.queryDLQ(ctx, `SELECT `+dlqColumns+` FROM dlq_messages
		WHERE resolved = FALSE AND retry_count < max_retries ORDER BY created_at ASC LIMIT $1`, limit)
}

func (s *PostgresStore) queryDLQ(ctx context.Context, query string, args ...interface{}) ([]models.DLQMessage, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "")
	}
	defer rows.Close()

	messages := []models.DLQMessage{}
	for rows.Next() {
		m, err := scanDLQ(rows)
		if err != nil {
			return nil, mapError(err, "")
		}
		messages = append(messages, *m)
	}
	return messages, mapError(rows.Err(), "")
}

// RecordDLQRetry bumps the retry count and resolves the message when the
// retry succeeded.
func (s *PostgresStore) RecordDLQRetry(ctx context.Context, messageID string, succeeded bool, notes string) error {
	var err error
	if succeeded {
		_, err = s.q.ExecContext(ctx, `
			UPDATE dlq_messages
			SET retry_count = retry_count + 1, last_retry_at = NOW(), resolved = TRUE, resolved_at = NOW(), notes = $2
			WHERE message_id = $1`, messageID, notes)
	} else {
		_, err = s.q.ExecContext(ctx, `
			UPDATE dlq_messages
			SET retry_count = retry_count + 1, last_retry_at = NOW()
			WHERE message_id = $1`, messageID)
	}
	return mapError(err, "")
}

func (s *PostgresStore) ResolveDLQMessage(ctx context.Context, messageID, notes string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE dlq_messages SET resolved = TRUE, resolved_at = NOW(), notes = $2
		WHERE message_id = $1`, messageID, notes)
	if err != nil {
		return mapError(err, "")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mapError(sql.ErrNoRows, "dlq message not found")
	}
	return nil
}

func (s *PostgresStore) DLQStats(ctx context.Context) (*models.DLQStats, error) {
	var st models.DLQStats
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE resolved = FALSE),
		       COUNT(*) FILTER (WHERE resolved = TRUE)
		FROM dlq_messages`).Scan(&st.Total, &st.Unresolved, &st.Resolved)
	if err != nil {
		return nil, mapError(err, "")
	}
	return &st, nil
}
