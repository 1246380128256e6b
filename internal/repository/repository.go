package repository

import (
	"context"
	"errors"

	"github.com/jmehdipour/campaign-orchestrator/internal/model"
)

var ErrNotFound = errors.New("repository: not found")

// LogCap bounds campaign logs and received messages; the oldest rows are
// evicted first.
const LogCap = 1000

type ConnectionRepository interface {
	ListConnections(ctx context.Context) ([]model.Connection, error)
	GetConnection(ctx context.Context, id int64) (*model.Connection, error)
	CreateConnection(ctx context.Context, c model.Connection) (model.Connection, error)
	UpdateConnection(ctx context.Context, id int64, fn func(*model.Connection)) (model.Connection, error)
	DeleteConnection(ctx context.Context, id int64) error
}

// ContactRepository lists contacts ordered by id.
type ContactRepository interface {
	ListContacts(ctx context.Context) ([]model.Contact, error)
	GetContact(ctx context.Context, id int64) (*model.Contact, error)
	FindContactByAddress(ctx context.Context, digits string) (*model.Contact, error)
	ReplaceContacts(ctx context.Context, cs []model.Contact) ([]model.Contact, error)
	UpdateContact(ctx context.Context, id int64, fn func(*model.Contact)) (model.Contact, error)
	DeleteContact(ctx context.Context, id int64) error
	ClearContacts(ctx context.Context) error
}

// VariantRepository lists variants ordered by ordinal.
type VariantRepository interface {
	ListVariants(ctx context.Context) ([]model.Variant, error)
	GetVariant(ctx context.Context, id int64) (*model.Variant, error)
	UpsertVariant(ctx context.Context, v model.Variant) (model.Variant, error)
	UpdateVariant(ctx context.Context, id int64, fn func(*model.Variant)) (model.Variant, error)
}

type SettingsRepository interface {
	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) (model.Settings, error)
	UpdateSettings(ctx context.Context, fn func(*model.Settings)) (model.Settings, error)
}

// LogRepository lists newest first. A limit <= 0 returns everything kept.
type LogRepository interface {
	AppendLog(ctx context.Context, l model.CampaignLog) (model.CampaignLog, error)
	ListLogs(ctx context.Context, limit int) ([]model.CampaignLog, error)
	LatestLog(ctx context.Context, contactID int64, status model.LogStatus) (*model.CampaignLog, error)
	ClearLogs(ctx context.Context) error
}

type MessageRepository interface {
	AppendReceived(ctx context.Context, m model.ReceivedMessage) (model.ReceivedMessage, error)
	ListReceived(ctx context.Context, limit int) ([]model.ReceivedMessage, error)
	ListReceivedByContact(ctx context.Context, contactID int64) ([]model.ReceivedMessage, error)
	ClearReceived(ctx context.Context) error
}

type Store interface {
	ConnectionRepository
	ContactRepository
	VariantRepository
	SettingsRepository
	LogRepository
	MessageRepository
}
