package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/nickgarreis/agentic-outreach-system/internal/errors"
	"github.com/nickgarreis/agentic-outreach-system/internal/model"
)

type MessageRepositoryInterface interface {
	CreateBatch(msgs []*model.Message) error
	GetByID(id string) (*model.Message, error)
	ListScheduled(campaignID int, from time.Time) ([]*model.Message, error)
	ListDue(campaignID int, now time.Time, ids []string) ([]*model.Message, error)
	MarkSent(id, providerMessageID string) error
	MarkFailed(id string, status model.MessageStatus, sendError string) error
	UpdateDeliveryState(m *model.Message) error
	CampaignsWithDue(now time.Time) ([]int, error)
}

type MessageRepository struct {
	DB *sql.DB
}

const messageColumns = `
    id, campaign_id, lead_id, channel, direction, status, send_at, subject, content,
    metadata, send_attempts, send_error, provider_message_id, tracking_events,
    sent_at, delivered_at, opened_at, clicked_at, bounced_at, unsubscribed_at,
    created_at, updated_at
`

// CreateBatch persists all messages in one multi-row insert. Either the whole
// batch lands or none of it does.
func (r *MessageRepository) CreateBatch(msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	now := time.Now()
	values := make([]string, 0, len(msgs))
	args := make([]interface{}, 0, len(msgs)*11)
	argPos := 1

	for _, m := range msgs {
		m.CreatedAt = now
		m.UpdatedAt = now

		metadata, err := json.Marshal(m.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for message %s: %w", m.ID, err)
		}

		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			argPos, argPos+1, argPos+2, argPos+3, argPos+4, argPos+5, argPos+6, argPos+7, argPos+8, argPos+9, argPos+10,
		))
		args = append(args,
			m.ID, m.CampaignID, m.LeadID, m.Channel, m.Direction, m.Status,
			m.SendAt, m.Subject, m.Content, metadata, now,
		)
		argPos += 11
	}

	query := `
        INSERT INTO messages
        (id, campaign_id, lead_id, channel, direction, status, send_at, subject, content, metadata, created_at)
        VALUES ` + strings.Join(values, ", ")

	_, err := r.DB.Exec(query, args...)
	return err
}

func (r *MessageRepository) GetByID(id string) (*model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id=$1`
	m, err := scanMessage(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewMessageNotFound(id)
		}
		return nil, err
	}
	return m, nil
}

// ListScheduled returns the campaign's scheduled messages with send_at at or
// after the given time. The schedule state loader builds occupancy from it.
func (r *MessageRepository) ListScheduled(campaignID int, from time.Time) ([]*model.Message, error) {
	query := `
        SELECT ` + messageColumns + `
        FROM messages
        WHERE campaign_id=$1 AND status=$2 AND send_at >= $3
        ORDER BY send_at
    `
	return r.queryMessages(query, campaignID, model.StatusScheduled, from)
}

// ListDue returns scheduled messages that are due for delivery. With an
// explicit id list only those messages are considered; otherwise everything
// with send_at at or before now.
func (r *MessageRepository) ListDue(campaignID int, now time.Time, ids []string) ([]*model.Message, error) {
	if len(ids) > 0 {
		query := `
            SELECT ` + messageColumns + `
            FROM messages
            WHERE campaign_id=$1 AND status=$2 AND id = ANY($3)
            ORDER BY send_at
        `
		return r.queryMessages(query, campaignID, model.StatusScheduled, pq.Array(ids))
	}

	query := `
        SELECT ` + messageColumns + `
        FROM messages
        WHERE campaign_id=$1 AND status=$2 AND send_at <= $3
        ORDER BY send_at
    `
	return r.queryMessages(query, campaignID, model.StatusScheduled, now)
}

// MarkSent records a successful delivery attempt.
func (r *MessageRepository) MarkSent(id, providerMessageID string) error {
	now := time.Now()
	query := `
        UPDATE messages
        SET status=$1, provider_message_id=$2, send_error='', sent_at=$3,
            send_attempts = send_attempts + 1, updated_at=$3
        WHERE id=$4
    `
	_, err := r.DB.Exec(query, model.StatusSent, providerMessageID, now, id)
	return err
}

// MarkFailed records a failed delivery attempt. Status is either failed or
// retry_pending depending on the classified error.
func (r *MessageRepository) MarkFailed(id string, status model.MessageStatus, sendError string) error {
	query := `
        UPDATE messages
        SET status=$1, send_error=$2, send_attempts = send_attempts + 1, updated_at=$3
        WHERE id=$4
    `
	_, err := r.DB.Exec(query, status, sendError, time.Now(), id)
	return err
}

// UpdateDeliveryState writes the tracker-owned columns back: the tracking log,
// status, per-event timestamps and the bounce reason.
func (r *MessageRepository) UpdateDeliveryState(m *model.Message) error {
	events, err := json.Marshal(m.TrackingEvents)
	if err != nil {
		return fmt.Errorf("encode tracking_events for message %s: %w", m.ID, err)
	}
	query := `
        UPDATE messages
        SET tracking_events=$1, status=$2, send_error=$3,
            delivered_at=$4, opened_at=$5, clicked_at=$6, bounced_at=$7, unsubscribed_at=$8,
            updated_at=$9
        WHERE id=$10
    `
	_, err = r.DB.Exec(query, events, m.Status, m.SendError,
		m.DeliveredAt, m.OpenedAt, m.ClickedAt, m.BouncedAt, m.UnsubscribedAt,
		time.Now(), m.ID)
	return err
}

// CampaignsWithDue lists campaigns holding at least one due scheduled message.
// The worker's sweep uses it to enqueue send jobs.
func (r *MessageRepository) CampaignsWithDue(now time.Time) ([]int, error) {
	query := `
        SELECT DISTINCT campaign_id FROM messages
        WHERE status=$1 AND send_at <= $2
    `
	rows, err := r.DB.Query(query, model.StatusScheduled, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *MessageRepository) queryMessages(query string, args ...interface{}) ([]*model.Message, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		m           model.Message
		metadataRaw []byte
		eventsRaw   []byte
	)
	err := row.Scan(
		&m.ID, &m.CampaignID, &m.LeadID, &m.Channel, &m.Direction, &m.Status,
		&m.SendAt, &m.Subject, &m.Content, &metadataRaw, &m.SendAttempts,
		&m.SendError, &m.ProviderMessageID, &eventsRaw,
		&m.SentAt, &m.DeliveredAt, &m.OpenedAt, &m.ClickedAt, &m.BouncedAt, &m.UnsubscribedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for message %s: %w", m.ID, err)
		}
	}
	m.TrackingEvents = []model.TrackingEvent{}
	if len(eventsRaw) > 0 {
		if err := json.Unmarshal(eventsRaw, &m.TrackingEvents); err != nil {
			return nil, fmt.Errorf("decode tracking_events for message %s: %w", m.ID, err)
		}
	}
	return &m, nil
}
