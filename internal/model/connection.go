package model

import "time"

type ConnectionStatus string

const (
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionConnecting   ConnectionStatus = "connecting"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionError        ConnectionStatus = "error"
)

func (s ConnectionStatus) String() string { return string(s) }

func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionDisconnected, ConnectionConnecting, ConnectionConnected, ConnectionError:
		return true
	}
	return false
}

// Connection is one channel slot (a paired messaging account).
type Connection struct {
	ID             int64            `db:"id" json:"id"`
	Label          string           `db:"label" json:"label"`
	Status         ConnectionStatus `db:"status" json:"status"`
	PairingPayload *string          `db:"pairing_payload" json:"pairingPayload,omitempty"` // QR-style payload while pairing
	Address        *string          `db:"address" json:"address,omitempty"`                // bound phone number once ready
	CreatedAt      time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updatedAt"`
}
