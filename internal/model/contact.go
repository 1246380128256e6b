package model

import "time"

type ContactStatus string

const (
	ContactPending    ContactStatus = "pending"
	ContactSent       ContactStatus = "sent"
	ContactError      ContactStatus = "error"
	ContactResponded  ContactStatus = "responded"
	ContactSecondSent ContactStatus = "second_sent"
)

func (s ContactStatus) String() string { return string(s) }

type Contact struct {
	ID                  int64         `db:"id" json:"id"`
	Name                string        `db:"name" json:"name"`
	Address             string        `db:"address" json:"address"`
	FormattedAddress    string        `db:"formatted_address" json:"formattedAddress"`
	Var1                *string       `db:"var1" json:"var1,omitempty"`
	Var2                *string       `db:"var2" json:"var2,omitempty"`
	Status              ContactStatus `db:"status" json:"status"`
	ErrorText           *string       `db:"error_text" json:"errorText,omitempty"`
	SentAt              *time.Time    `db:"sent_at" json:"sentAt,omitempty"`
	RespondedAt         *time.Time    `db:"responded_at" json:"respondedAt,omitempty"`
	SecondMessageSentAt *time.Time    `db:"second_sent_at" json:"secondMessageSentAt,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"createdAt"`
}

// ResetProgress puts the contact back in the pending pool.
func (c *Contact) ResetProgress() {
	c.Status = ContactPending
	c.SentAt = nil
	c.RespondedAt = nil
	c.SecondMessageSentAt = nil
	c.ErrorText = nil
}
