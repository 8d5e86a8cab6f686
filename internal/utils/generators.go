package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// NewID returns a random UUID string, the primary key format of every table.
func NewID() string {
	return uuid.NewString()
}

// GeneratePaymentID gives payments a sortable, recognisable id.
func GeneratePaymentID() string {
	timestamp := time.Now().Unix()
	randomNum, err := rand.Int(rand.Reader, big.NewInt(999999))
	if err != nil {
		return "pay_" + uuid.NewString()
	}
	return fmt.Sprintf("pay_%d_%06d", timestamp, randomNum.Int64())
}
