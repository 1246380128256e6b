package model

import "time"

// ReceivedMessage is an inbound message seen on any channel.
type ReceivedMessage struct {
	ID         int64     `db:"id" json:"id"`
	ChannelID  *int64    `db:"channel_id" json:"channelId,omitempty"`
	ContactID  *int64    `db:"contact_id" json:"contactId,omitempty"`
	Address    string    `db:"address" json:"address"`
	Body       string    `db:"body" json:"body"`
	ReceivedAt time.Time `db:"received_at" json:"receivedAt"`
}
