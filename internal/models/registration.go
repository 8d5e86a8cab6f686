package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID          string             `bun:"id,pk" json:"id"`
	MUNID       string             `bun:"mun_id,notnull" json:"mun_id"`
	UserID      string             `bun:"user_id,notnull" json:"user_id"`
	Answers     map[string]string  `bun:"answers" json:"answers"`
	Status      RegistrationStatus `bun:"status,notnull" json:"status"`
	Amount      float64            `bun:"amount,notnull" json:"amount"`
	Currency    string             `bun:"currency,notnull" json:"currency"`
	CheckedIn   bool               `bun:"checked_in,notnull" json:"checked_in"`
	CheckedInAt time.Time          `bun:"checked_in_at,nullzero" json:"checked_in_at,omitempty"`
	CreatedAt   time.Time          `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time          `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Active registrations count against capacity and block a second registration.
func (r *Registration) Active() bool {
	return r.Status == RegistrationPending || r.Status == RegistrationConfirmed
}

type RegisterRequest struct {
	MUNID   string            `json:"mun_id" validate:"required"`
	Answers map[string]string `json:"answers"`
}

type CheckInRequest struct {
	Badge string `json:"badge" validate:"required"`
}

const (
	EventRegistrationCreated   = "registration.created"
	EventRegistrationConfirmed = "registration.confirmed"
	EventRegistrationCancelled = "registration.cancelled"
	EventRegistrationCheckedIn = "registration.checked_in"
)

// RegistrationEvent is published to Kafka and streamed to dashboards over SSE.
type RegistrationEvent struct {
	Type           string             `json:"type"`
	RegistrationID string             `json:"registration_id"`
	MUNID          string             `json:"mun_id"`
	UserID         string             `json:"user_id"`
	Status         RegistrationStatus `json:"status"`
	Amount         float64            `json:"amount"`
	Timestamp      time.Time          `json:"timestamp"`
}

func NewRegistrationEvent(eventType string, reg *Registration) RegistrationEvent {
	return RegistrationEvent{
		Type:           eventType,
		RegistrationID: reg.ID,
		MUNID:          reg.MUNID,
		UserID:         reg.UserID,
		Status:         reg.Status,
		Amount:         reg.Amount,
		Timestamp:      time.Now().UTC(),
	}
}
