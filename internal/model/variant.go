package model

import (
	"strings"
	"time"
)

const DefaultSecondMessageDelaySeconds = 30

// Variant is one message template slot. The second* fields describe the
// optional follow-up sent after the contact replies.
type Variant struct {
	ID                        int64     `db:"id" json:"id"`
	Ordinal                   int       `db:"ordinal" json:"ordinal"`
	Text                      string    `db:"text" json:"text"`
	MediaRef                  *string   `db:"media_ref" json:"mediaRef,omitempty"`
	Enabled                   bool      `db:"enabled" json:"enabled"`
	SecondText                *string   `db:"second_text" json:"secondText,omitempty"`
	SecondMediaRef            *string   `db:"second_media_ref" json:"secondMediaRef,omitempty"`
	SendSecondMessage         bool      `db:"send_second" json:"sendSecondMessage"`
	SecondMessageDelaySeconds int       `db:"second_delay_seconds" json:"secondMessageDelaySeconds"`
	CreatedAt                 time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt                 time.Time `db:"updated_at" json:"updatedAt"`
}

// Usable reports whether the variant takes part in rotation.
func (v Variant) Usable() bool {
	return v.Enabled && strings.TrimSpace(v.Text) != ""
}

// WantsFollowUp reports whether a reply should trigger the second message.
func (v Variant) WantsFollowUp() bool {
	return v.SendSecondMessage && v.SecondText != nil && strings.TrimSpace(*v.SecondText) != ""
}

func (v Variant) FollowUpDelay() time.Duration {
	secs := v.SecondMessageDelaySeconds
	if secs <= 0 {
		secs = DefaultSecondMessageDelaySeconds
	}
	return time.Duration(secs) * time.Second
}
