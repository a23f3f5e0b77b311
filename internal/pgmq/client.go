// Package pgmq is a small client for the pgmq Postgres extension, covering
// the operations the media pipeline needs: JSON job submission, long-poll
// consumption and per-message acknowledgement.
package pgmq

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Client issues pgmq calls over a shared database handle. Queues are created
// by the schema migrations, not by the client.
type Client struct {
	db *sql.DB
}

// New returns a Client backed by the given DB connection.
func New(db *sql.DB) *Client {
	return &Client{db: db}
}

// Message is a single queued job. Payload holds the JSON the producer sent.
type Message struct {
	ID      int64
	Payload []byte
}

// Decode unmarshals the message payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode message %d: %w", m.ID, err)
	}
	return nil
}

// Send marshals v and pushes it onto the queue for immediate delivery.
func (c *Client) Send(ctx context.Context, queue string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload for queue %q: %w", queue, err)
	}
	const q = "SELECT pgmq.send($1, $2::jsonb, 0)"
	if _, err := c.db.ExecContext(ctx, q, queue, string(payload)); err != nil {
		return fmt.Errorf("send to queue %q: %w", queue, err)
	}
	return nil
}

// ReadWithPoll reads up to max messages, blocking up to the poll timeout when
// the queue is empty. Read messages stay invisible until deleted or until
// their visibility timeout lapses and pgmq redelivers them.
func (c *Client) ReadWithPoll(ctx context.Context, queue string, timeout time.Duration, max int) ([]Message, error) {
	const q = "SELECT msg_id, message FROM pgmq.read_with_poll($1, $2, $3)"
	rows, err := c.db.QueryContext(ctx, q, queue, int(timeout.Seconds()), max)
	if err != nil {
		return nil, fmt.Errorf("read from queue %q: %w", queue, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Payload); err != nil {
			return nil, fmt.Errorf("scan message from queue %q: %w", queue, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows from queue %q: %w", queue, err)
	}
	return msgs, nil
}

// Delete acknowledges a message, removing it from the queue permanently.
func (c *Client) Delete(ctx context.Context, queue string, id int64) error {
	const q = "SELECT pgmq.delete($1, $2::bigint)"
	if _, err := c.db.ExecContext(ctx, q, queue, id); err != nil {
		return fmt.Errorf("delete message %d from queue %q: %w", id, queue, err)
	}
	return nil
}
