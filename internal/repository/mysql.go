package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmoiron/sqlx"
)

// MySQLStore is the relational Store. Every mutator reads the row with
// SELECT ... FOR UPDATE, applies fn and writes it back in one transaction.
type MySQLStore struct {
	db *sqlx.DB
}

var _ Store = (*MySQLStore)(nil)

func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (r *MySQLStore) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}
	return t.Commit()
}

// ---- connections ----

const connectionCols = `id, label, status, pairing_payload, address, created_at, updated_at`

func (r *MySQLStore) ListConnections(ctx context.Context) ([]model.Connection, error) {
	var out []model.Connection
	if err := r.db.SelectContext(ctx, &out, `SELECT `+connectionCols+` FROM connections ORDER BY id`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MySQLStore) GetConnection(ctx context.Context, id int64) (*model.Connection, error) {
	var c model.Connection
	err := r.db.GetContext(ctx, &c, `SELECT `+connectionCols+` FROM connections WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MySQLStore) CreateConnection(ctx context.Context, c model.Connection) (model.Connection, error) {
	if c.Status == "" {
		c.Status = model.ConnectionDisconnected
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO connections (label, status, pairing_payload, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, NOW(), NOW())
	`, c.Label, c.Status, c.PairingPayload, c.Address)
	if err != nil {
		return model.Connection{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Connection{}, err
	}
	got, err := r.GetConnection(ctx, id)
	if err != nil {
		return model.Connection{}, err
	}
	if got == nil {
		return model.Connection{}, ErrNotFound
	}
	return *got, nil
}

func (r *MySQLStore) UpdateConnection(ctx context.Context, id int64, fn func(*model.Connection)) (model.Connection, error) {
	var c model.Connection
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &c, `SELECT `+connectionCols+` FROM connections WHERE id = ? FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		fn(&c)
		c.ID = id
		_, err = tx.ExecContext(ctx, `
			UPDATE connections
			   SET label = ?, status = ?, pairing_payload = ?, address = ?, updated_at = NOW()
			 WHERE id = ?
		`, c.Label, c.Status, c.PairingPayload, c.Address, id)
		return err
	})
	return c, err
}

func (r *MySQLStore) DeleteConnection(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ---- contacts ----

const contactCols = `id, name, address, formatted_address, var1, var2, status, error_text, sent_at, responded_at, second_sent_at, created_at`

func (r *MySQLStore) ListContacts(ctx context.Context) ([]model.Contact, error) {
	var out []model.Contact
	if err := r.db.SelectContext(ctx, &out, `SELECT `+contactCols+` FROM contacts ORDER BY id`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MySQLStore) GetContact(ctx context.Context, id int64) (*model.Contact, error) {
	var c model.Contact
	err := r.db.GetContext(ctx, &c, `SELECT `+contactCols+` FROM contacts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MySQLStore) FindContactByAddress(ctx context.Context, digits string) (*model.Contact, error) {
	var c model.Contact
	err := r.db.GetContext(ctx, &c, `
		SELECT `+contactCols+`
		  FROM contacts
		 WHERE formatted_address = ?
		 ORDER BY id LIMIT 1
	`, digits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *MySQLStore) ReplaceContacts(ctx context.Context, cs []model.Contact) ([]model.Contact, error) {
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM contacts`); err != nil {
			return err
		}
		if len(cs) == 0 {
			return nil
		}
		for i := range cs {
			if cs[i].Status == "" {
				cs[i].Status = model.ContactPending
			}
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO contacts (name, address, formatted_address, var1, var2, status, created_at)
			VALUES (:name, :address, :formatted_address, :var1, :var2, :status, NOW())
		`, cs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return r.ListContacts(ctx)
}

func (r *MySQLStore) UpdateContact(ctx context.Context, id int64, fn func(*model.Contact)) (model.Contact, error) {
	var c model.Contact
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &c, `SELECT `+contactCols+` FROM contacts WHERE id = ? FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		fn(&c)
		c.ID = id
		_, err = tx.ExecContext(ctx, `
			UPDATE contacts
			   SET name = ?, address = ?, formatted_address = ?, var1 = ?, var2 = ?, status = ?,
			       error_text = ?, sent_at = ?, responded_at = ?, second_sent_at = ?
			 WHERE id = ?
		`, c.Name, c.Address, c.FormattedAddress, c.Var1, c.Var2, c.Status,
			c.ErrorText, c.SentAt, c.RespondedAt, c.SecondMessageSentAt, id)
		return err
	})
	return c, err
}

func (r *MySQLStore) DeleteContact(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *MySQLStore) ClearContacts(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM contacts`)
	return err
}

// ---- variants ----

const variantCols = `id, ordinal, text, media_ref, enabled, second_text, second_media_ref, send_second, second_delay_seconds, created_at, updated_at`

func (r *MySQLStore) ListVariants(ctx context.Context) ([]model.Variant, error) {
	var out []model.Variant
	if err := r.db.SelectContext(ctx, &out, `SELECT `+variantCols+` FROM variants ORDER BY ordinal, id`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MySQLStore) GetVariant(ctx context.Context, id int64) (*model.Variant, error) {
	var v model.Variant
	err := r.db.GetContext(ctx, &v, `SELECT `+variantCols+` FROM variants WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UpsertVariant keys on the UNIQUE ordinal column.
func (r *MySQLStore) UpsertVariant(ctx context.Context, v model.Variant) (model.Variant, error) {
	const q = `
		INSERT INTO variants
		    (ordinal, text, media_ref, enabled, second_text, second_media_ref, send_second, second_delay_seconds, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
		    text                 = VALUES(text),
		    media_ref            = VALUES(media_ref),
		    enabled              = VALUES(enabled),
		    second_text          = VALUES(second_text),
		    second_media_ref     = VALUES(second_media_ref),
		    send_second          = VALUES(send_second),
		    second_delay_seconds = VALUES(second_delay_seconds),
		    updated_at           = VALUES(updated_at)
	`
	if _, err := r.db.ExecContext(ctx, q, v.Ordinal, v.Text, v.MediaRef, v.Enabled,
		v.SecondText, v.SecondMediaRef, v.SendSecondMessage, v.SecondMessageDelaySeconds); err != nil {
		return model.Variant{}, err
	}
	var got model.Variant
	if err := r.db.GetContext(ctx, &got, `SELECT `+variantCols+` FROM variants WHERE ordinal = ?`, v.Ordinal); err != nil {
		return model.Variant{}, err
	}
	return got, nil
}

func (r *MySQLStore) UpdateVariant(ctx context.Context, id int64, fn func(*model.Variant)) (model.Variant, error) {
	var v model.Variant
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &v, `SELECT `+variantCols+` FROM variants WHERE id = ? FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		fn(&v)
		v.ID = id
		_, err = tx.ExecContext(ctx, `
			UPDATE variants
			   SET ordinal = ?, text = ?, media_ref = ?, enabled = ?, second_text = ?, second_media_ref = ?,
			       send_second = ?, second_delay_seconds = ?, updated_at = NOW()
			 WHERE id = ?
		`, v.Ordinal, v.Text, v.MediaRef, v.Enabled, v.SecondText, v.SecondMediaRef,
			v.SendSecondMessage, v.SecondMessageDelaySeconds, id)
		return err
	})
	return v, err
}

// ---- settings ----

const settingsCols = `id, min_interval_seconds, max_interval_seconds, rotation_type, randomize_variants, skip_errors, is_running, current_contact_index, current_channel_index, created_at, updated_at`

func (r *MySQLStore) GetSettings(ctx context.Context) (*model.Settings, error) {
	var s model.Settings
	err := r.db.GetContext(ctx, &s, `SELECT `+settingsCols+` FROM settings WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MySQLStore) SaveSettings(ctx context.Context, s model.Settings) (model.Settings, error) {
	const q = `
		INSERT INTO settings
		    (id, min_interval_seconds, max_interval_seconds, rotation_type, randomize_variants, skip_errors,
		     is_running, current_contact_index, current_channel_index, created_at, updated_at)
		VALUES
		    (1, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
		    min_interval_seconds  = VALUES(min_interval_seconds),
		    max_interval_seconds  = VALUES(max_interval_seconds),
		    rotation_type         = VALUES(rotation_type),
		    randomize_variants    = VALUES(randomize_variants),
		    skip_errors           = VALUES(skip_errors),
		    is_running            = VALUES(is_running),
		    current_contact_index = VALUES(current_contact_index),
		    current_channel_index = VALUES(current_channel_index),
		    updated_at            = VALUES(updated_at)
	`
	if _, err := r.db.ExecContext(ctx, q, s.MinIntervalSeconds, s.MaxIntervalSeconds, s.RotationType,
		s.RandomizeVariants, s.SkipErrors, s.IsRunning, s.CurrentContactIndex, s.CurrentChannelIndex); err != nil {
		return model.Settings{}, err
	}
	got, err := r.GetSettings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	if got == nil {
		return model.Settings{}, ErrNotFound
	}
	return *got, nil
}

func (r *MySQLStore) UpdateSettings(ctx context.Context, fn func(*model.Settings)) (model.Settings, error) {
	var s model.Settings
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &s, `SELECT `+settingsCols+` FROM settings WHERE id = 1 FOR UPDATE`)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		fn(&s)
		s.ID = 1
		_, err = tx.ExecContext(ctx, `
			UPDATE settings
			   SET min_interval_seconds = ?, max_interval_seconds = ?, rotation_type = ?, randomize_variants = ?,
			       skip_errors = ?, is_running = ?, current_contact_index = ?, current_channel_index = ?,
			       updated_at = NOW()
			 WHERE id = 1
		`, s.MinIntervalSeconds, s.MaxIntervalSeconds, s.RotationType, s.RandomizeVariants,
			s.SkipErrors, s.IsRunning, s.CurrentContactIndex, s.CurrentChannelIndex)
		return err
	})
	return s, err
}

// ---- logs ----

const logCols = `id, channel_id, contact_id, variant_id, status, error_text, created_at`

func (r *MySQLStore) AppendLog(ctx context.Context, l model.CampaignLog) (model.CampaignLog, error) {
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_logs (channel_id, contact_id, variant_id, status, error_text, created_at)
			VALUES (?, ?, ?, ?, ?, COALESCE(?, NOW(3)))
		`, l.ChannelID, l.ContactID, l.VariantID, l.Status, l.ErrorText, nullTime(l.CreatedAt))
		if err != nil {
			return err
		}
		if l.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &l, `SELECT `+logCols+` FROM campaign_logs WHERE id = ?`, l.ID); err != nil {
			return err
		}
		return trimOldest(ctx, tx, "campaign_logs")
	})
	return l, err
}

func (r *MySQLStore) ListLogs(ctx context.Context, limit int) ([]model.CampaignLog, error) {
	if limit <= 0 || limit > LogCap {
		limit = LogCap
	}
	var out []model.CampaignLog
	if err := r.db.SelectContext(ctx, &out, `SELECT `+logCols+` FROM campaign_logs ORDER BY id DESC LIMIT ?`, limit); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MySQLStore) LatestLog(ctx context.Context, contactID int64, status model.LogStatus) (*model.CampaignLog, error) {
	var l model.CampaignLog
	err := r.db.GetContext(ctx, &l, `
		SELECT `+logCols+`
		  FROM campaign_logs
		 WHERE contact_id = ? AND status = ?
		 ORDER BY id DESC LIMIT 1
	`, contactID, status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *MySQLStore) ClearLogs(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM campaign_logs`)
	return err
}

// ---- received messages ----

const receivedCols = `id, channel_id, contact_id, address, body, received_at`

func (r *MySQLStore) AppendReceived(ctx context.Context, m model.ReceivedMessage) (model.ReceivedMessage, error) {
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO received_messages (channel_id, contact_id, address, body, received_at)
			VALUES (?, ?, ?, ?, COALESCE(?, NOW(3)))
		`, m.ChannelID, m.ContactID, m.Address, m.Body, nullTime(m.ReceivedAt))
		if err != nil {
			return err
		}
		if m.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &m, `SELECT `+receivedCols+` FROM received_messages WHERE id = ?`, m.ID); err != nil {
			return err
		}
		return trimOldest(ctx, tx, "received_messages")
	})
	return m, err
}

func (r *MySQLStore) ListReceived(ctx context.Context, limit int) ([]model.ReceivedMessage, error) {
	if limit <= 0 || limit > LogCap {
		limit = LogCap
	}
	var out []model.ReceivedMessage
	if err := r.db.SelectContext(ctx, &out, `SELECT `+receivedCols+` FROM received_messages ORDER BY id DESC LIMIT ?`, limit); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MySQLStore) ListReceivedByContact(ctx context.Context, contactID int64) ([]model.ReceivedMessage, error) {
	var out []model.ReceivedMessage
	if err := r.db.SelectContext(ctx, &out, `
		SELECT `+receivedCols+`
		  FROM received_messages
		 WHERE contact_id = ?
		 ORDER BY id DESC
	`, contactID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MySQLStore) ClearReceived(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM received_messages`)
	return err
}

// trimOldest keeps the newest LogCap rows of table. The derived table works
// around MySQL refusing LIMIT inside an IN subquery on the same table.
func trimOldest(ctx context.Context, tx *sqlx.Tx, table string) error {
	q := `
		DELETE FROM ` + table + `
		 WHERE id < (
		     SELECT id FROM (
		         SELECT id FROM ` + table + ` ORDER BY id DESC LIMIT 1 OFFSET ?
		     ) AS keep_from
		 )
	`
	_, err := tx.ExecContext(ctx, q, LogCap-1)
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
