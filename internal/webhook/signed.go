// Package webhook ingests signed provider callbacks: it verifies them, writes
// an audit row, then applies the account mutation on a best-effort basis.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrMissingSignedRequest means the callback carried no signed_request.
	ErrMissingSignedRequest = errors.New("missing signed_request")

	// ErrInvalidPayload means signed_request could not be split or decoded.
	ErrInvalidPayload = errors.New("invalid signed_request")
)

const algorithmHMACSHA256 = "HMAC-SHA256"

// SignedRequest is a decoded `<signature>.<payload>` provider envelope.
type SignedRequest struct {
	Signature      []byte
	EncodedPayload string

	Algorithm string
	UserID    string
	IssuedAt  int64
}

// ParseSignedRequest splits raw on its first dot and decodes both halves.
// Base64url padding is optional. It does not verify the signature.
func ParseSignedRequest(raw string) (*SignedRequest, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingSignedRequest
	}

	encodedSig, encodedPayload, ok := strings.Cut(raw, ".")
	if !ok || encodedSig == "" || encodedPayload == "" {
		return nil, fmt.Errorf("%w: expected <signature>.<payload>", ErrInvalidPayload)
	}

	sig, err := decodeSegment(encodedSig)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %v", ErrInvalidPayload, err)
	}
	payload, err := decodeSegment(encodedPayload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrInvalidPayload, err)
	}

	var fields struct {
		Algorithm string      `json:"algorithm"`
		UserID    any         `json:"user_id"`
		IssuedAt  json.Number `json:"issued_at"`
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("%w: payload json: %v", ErrInvalidPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after payload json", ErrInvalidPayload)
	}

	sr := &SignedRequest{
		Signature:      sig,
		EncodedPayload: encodedPayload,
		Algorithm:      fields.Algorithm,
	}
	switch id := fields.UserID.(type) {
	case string:
		sr.UserID = id
	case json.Number:
		sr.UserID = id.String()
	}
	if n, err := fields.IssuedAt.Int64(); err == nil {
		sr.IssuedAt = n
	}
	return sr, nil
}

// Verify reports whether the signature is a valid HMAC-SHA256 of the encoded
// payload under secret. An empty secret never verifies.
func (s *SignedRequest) Verify(secret string) bool {
	if secret == "" || !strings.EqualFold(s.Algorithm, algorithmHMACSHA256) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(s.EncodedPayload))
	return hmac.Equal(s.Signature, mac.Sum(nil))
}

// AuditPayload is the subset of the decoded payload kept in the audit row.
func (s *SignedRequest) AuditPayload() map[string]any {
	m := map[string]any{"algorithm": s.Algorithm}
	if s.UserID != "" {
		m["user_id"] = s.UserID
	}
	if s.IssuedAt != 0 {
		m["issued_at"] = s.IssuedAt
	}
	return m
}

// Sign builds a signed_request for payload. Tests and the operator CLI use it
// to produce callbacks the ingestor accepts.
func Sign(secret string, payload map[string]any) (string, error) {
	if _, ok := payload["algorithm"]; !ok {
		payload["algorithm"] = algorithmHMACSHA256
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(b)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)) + "." + encoded, nil
}

func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
