package model

import "time"

type RotationType string

const (
	RotationSequential RotationType = "sequential"
	RotationRandom     RotationType = "random"
)

func (t RotationType) Valid() bool {
	return t == RotationSequential || t == RotationRandom
}

// Settings is the singleton campaign configuration. The two cursors are the
// persisted checkpoint of scheduler progress.
type Settings struct {
	ID                  int64        `db:"id" json:"id"`
	MinIntervalSeconds  int          `db:"min_interval_seconds" json:"minIntervalSeconds"`
	MaxIntervalSeconds  int          `db:"max_interval_seconds" json:"maxIntervalSeconds"`
	RotationType        RotationType `db:"rotation_type" json:"rotationType"`
	RandomizeVariants   bool         `db:"randomize_variants" json:"randomizeVariants"`
	SkipErrors          bool         `db:"skip_errors" json:"skipErrors"`
	IsRunning           bool         `db:"is_running" json:"isRunning"`
	CurrentContactIndex int          `db:"current_contact_index" json:"currentContactIndex"`
	CurrentChannelIndex int          `db:"current_channel_index" json:"currentChannelIndex"`
	CreatedAt           time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time    `db:"updated_at" json:"updatedAt"`
}

// DefaultSettings mirrors what a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		ID:                 1,
		MinIntervalSeconds: 30,
		MaxIntervalSeconds: 120,
		RotationType:       RotationSequential,
		RandomizeVariants:  true,
	}
}
