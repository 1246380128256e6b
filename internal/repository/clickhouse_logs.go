package repository

import (
	"context"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmoiron/sqlx"
)

// ArchivedLog is a campaign log row as kept in ClickHouse. Unlike the
// relational table the archive is never trimmed.
type ArchivedLog struct {
	ArchiveID string          `db:"archive_id" json:"archiveId"`
	RunID     string          `db:"run_id" json:"runId"`
	LogID     int64           `db:"log_id" json:"logId"`
	ChannelID *int64          `db:"channel_id" json:"channelId,omitempty"`
	ContactID *int64          `db:"contact_id" json:"contactId,omitempty"`
	VariantID *int64          `db:"variant_id" json:"variantId,omitempty"`
	Status    model.LogStatus `db:"status" json:"status"`
	ErrorText *string         `db:"error_text" json:"errorText,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

type ArchiveFilter struct {
	RunID     string
	ContactID int64
	Status    model.LogStatus
	Limit     int
	Offset    int
}

// CHLogsRepository archives campaign logs to ClickHouse and lists them back.
type CHLogsRepository interface {
	Insert(ctx context.Context, rows ...ArchivedLog) error
	List(ctx context.Context, f ArchiveFilter) ([]ArchivedLog, error)
}

type chLogsRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHLogsRepository(ch *sqlx.DB) CHLogsRepository {
	return &chLogsRepository{ch: ch}
}

// Insert writes rows as one batch: clickhouse-go collects the prepared
// statement executions and ships them on commit.
func (r *chLogsRepository) Insert(ctx context.Context, rows ...ArchivedLog) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := r.ch.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign.campaign_logs_archive
		    (archive_id, run_id, log_id, channel_id, contact_id, variant_id, status, error_text, created_at)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range rows {
		if _, err := stmt.ExecContext(ctx,
			l.ArchiveID, l.RunID, l.LogID, l.ChannelID, l.ContactID, l.VariantID,
			l.Status.String(), l.ErrorText, l.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *chLogsRepository) List(ctx context.Context, f ArchiveFilter) ([]ArchivedLog, error) {
	limit, offset := f.Limit, f.Offset
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	q := `
		SELECT archive_id, run_id, log_id, channel_id, contact_id, variant_id, status, error_text, created_at
		FROM campaign.campaign_logs_archive
		WHERE 1 = 1
	`
	var args []any

	if f.RunID != "" {
		q += " AND run_id = ?"
		args = append(args, f.RunID)
	}
	if f.ContactID > 0 {
		q += " AND contact_id = ?"
		args = append(args, f.ContactID)
	}
	if f.Status != "" {
		q += " AND status = ?"
		args = append(args, f.Status.String())
	}

	q += " ORDER BY created_at DESC, log_id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	var rows []ArchivedLog
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
