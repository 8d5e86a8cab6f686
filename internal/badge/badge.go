package badge

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidBadge = errors.New("invalid badge")

// Payload is what a delegate's badge QR code carries, encrypted.
type Payload struct {
	RegistrationID string    `json:"rid"`
	MUNID          string    `json:"mid"`
	UserID         string    `json:"uid"`
	IssuedAt       time.Time `json:"iat"`
}

type Generator struct {
	aead cipher.AEAD
}

func NewGenerator(secret string) (*Generator, error) {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(hashed[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Generator{aead: aead}, nil
}

// Encrypt seals the payload with AES-256-GCM; output is nonce|ciphertext, base64url.
func (g *Generator) Encrypt(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := g.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (g *Generator) Decrypt(token string) (Payload, error) {
	var p Payload

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidBadge, err)
	}
	if len(raw) < g.aead.NonceSize() {
		return p, fmt.Errorf("%w: too short", ErrInvalidBadge)
	}

	nonce, ciphertext := raw[:g.aead.NonceSize()], raw[g.aead.NonceSize():]
	data, err := g.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidBadge, err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidBadge, err)
	}
	return p, nil
}

// PNG renders the encrypted payload as a 256px QR code.
func (g *Generator) PNG(p Payload) ([]byte, error) {
	token, err := g.Encrypt(p)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, 256)
}
