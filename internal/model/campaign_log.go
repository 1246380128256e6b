package model

import "time"

type LogStatus string

const (
	LogSent       LogStatus = "sent"
	LogError      LogStatus = "error"
	LogSecondSent LogStatus = "second_sent"
	LogInfo       LogStatus = "info"
	LogWarning    LogStatus = "warning"
)

func (s LogStatus) String() string { return string(s) }

func (s LogStatus) Valid() bool {
	switch s {
	case LogSent, LogError, LogSecondSent, LogInfo, LogWarning:
		return true
	}
	return false
}

type CampaignLog struct {
	ID        int64     `db:"id" json:"id"`
	ChannelID *int64    `db:"channel_id" json:"channelId,omitempty"`
	ContactID *int64    `db:"contact_id" json:"contactId,omitempty"`
	VariantID *int64    `db:"variant_id" json:"variantId,omitempty"`
	Status    LogStatus `db:"status" json:"status"`
	ErrorText *string   `db:"error_text" json:"errorText,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
