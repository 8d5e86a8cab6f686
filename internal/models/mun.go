package models

import (
	"time"

	"github.com/uptrace/bun"
)

type MUNStatus string

const (
	MUNStatusDraft     MUNStatus = "draft"
	MUNStatusPublished MUNStatus = "published"
	MUNStatusCancelled MUNStatus = "cancelled"
)

func (s MUNStatus) Valid() bool {
	switch s {
	case MUNStatusDraft, MUNStatusPublished, MUNStatusCancelled:
		return true
	}
	return false
}

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldEmail    FieldType = "email"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
)

// CustomField is an organizer-defined question asked at registration.
type CustomField struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
}

type MUN struct {
	bun.BaseModel `bun:"table:muns"`

	ID           string        `bun:"id,pk" json:"id"`
	OrganizerID  string        `bun:"organizer_id,notnull" json:"organizer_id"`
	Name         string        `bun:"name,notnull" json:"name"`
	Date         time.Time     `bun:"date,notnull" json:"date"`
	EndDate      time.Time     `bun:"end_date,nullzero" json:"end_date,omitempty"`
	Venue        string        `bun:"venue,notnull" json:"venue"`
	Fee          float64       `bun:"fee,notnull" json:"fee"`
	Currency     string        `bun:"currency,notnull" json:"currency"`
	Capacity     int           `bun:"capacity,notnull" json:"capacity"`
	Description  string        `bun:"description" json:"description"`
	Status       MUNStatus     `bun:"status,notnull" json:"status"`
	CustomFields []CustomField `bun:"custom_fields" json:"custom_fields"`
	CreatedAt    time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt    time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// IsFree reports whether registrations are confirmed without payment.
func (m *MUN) IsFree() bool {
	return m.Fee <= 0
}

type CreateMUNRequest struct {
	Name         string        `json:"name" validate:"required,max=200"`
	Date         time.Time     `json:"date" validate:"required"`
	EndDate      *time.Time    `json:"end_date,omitempty"`
	Venue        string        `json:"venue" validate:"required,max=300"`
	Fee          float64       `json:"fee" validate:"gte=0"`
	Currency     string        `json:"currency" validate:"omitempty,len=3,alpha"`
	Capacity     int           `json:"capacity" validate:"gte=0"`
	Description  string        `json:"description" validate:"max=5000"`
	CustomFields []CustomField `json:"custom_fields"`
	Publish      bool          `json:"publish"`
}

// UpdateMUNRequest only changes the fields that are present.
type UpdateMUNRequest struct {
	Name         *string        `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Date         *time.Time     `json:"date,omitempty"`
	EndDate      *time.Time     `json:"end_date,omitempty"`
	Venue        *string        `json:"venue,omitempty" validate:"omitempty,min=1,max=300"`
	Fee          *float64       `json:"fee,omitempty" validate:"omitempty,gte=0"`
	Capacity     *int           `json:"capacity,omitempty" validate:"omitempty,gte=0"`
	Description  *string        `json:"description,omitempty" validate:"omitempty,max=5000"`
	CustomFields *[]CustomField `json:"custom_fields,omitempty"`
}

type MUNStatusRequest struct {
	Status MUNStatus `json:"status" validate:"required,oneof=draft published cancelled"`
}

// MUNStats is one row of the organizer dashboard.
type MUNStats struct {
	MUN       *MUN    `json:"mun"`
	Pending   int     `json:"pending"`
	Confirmed int     `json:"confirmed"`
	Cancelled int     `json:"cancelled"`
	CheckedIn int     `json:"checked_in"`
	Revenue   float64 `json:"revenue"`
}
