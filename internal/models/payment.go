package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSuccess   PaymentStatus = "success"
	StatusFailed    PaymentStatus = "failed"
	StatusCancelled PaymentStatus = "cancelled"
)

type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID             string        `bun:"id,pk" json:"payment_id"`
	RegistrationID string        `bun:"registration_id,notnull" json:"registration_id"`
	UserID         string        `bun:"user_id,notnull" json:"user_id"`
	Amount         float64       `bun:"amount,notnull" json:"amount"`
	Currency       string        `bun:"currency,notnull" json:"currency"`
	Provider       string        `bun:"provider,notnull" json:"provider"`
	ProviderRef    string        `bun:"provider_ref,nullzero" json:"provider_ref,omitempty"`
	ClientSecret   string        `bun:"client_secret,nullzero" json:"client_secret,omitempty"`
	Status         PaymentStatus `bun:"status,notnull" json:"status"`
	FailureReason  string        `bun:"failure_reason,nullzero" json:"failure_reason,omitempty"`
	CreatedAt      time.Time     `bun:"created_at,notnull" json:"created_date"`
	UpdatedAt      time.Time     `bun:"updated_at,nullzero" json:"updated_date,omitempty"`
}

type CheckoutRequest struct {
	RegistrationID string `json:"registration_id" validate:"required"`
}

type PayRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
}

// PaymentIntent is what a processor hands back when a payment is opened.
type PaymentIntent struct {
	Ref          string
	ClientSecret string
}

const EventPaymentSucceeded = "payment.succeeded"

type PaymentEvent struct {
	Type           string        `json:"type"`
	PaymentID      string        `json:"payment_id"`
	RegistrationID string        `json:"registration_id"`
	Amount         float64       `json:"amount"`
	Currency       string        `json:"currency"`
	Status         PaymentStatus `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
}
