package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	leadsvc "outreach_engine_backend/internal/leads/service"
	"outreach_engine_backend/platform/phone"
	"outreach_engine_backend/platform/validator"
)

// RawRow is one lead row as it arrives from any ingestion path, before
// validation and normalization.
type RawRow struct {
	Email           string
	FirstName       string
	LastName        string
	Phone           string
	VehicleInterest string
	Notes           string
	Source          string
	SessionKey      string
	Metadata        map[string]any
}

// Normalizer validates and canonicalizes raw rows into well-typed upserts.
type Normalizer struct {
	val           *validator.Validator
	hashIdentity  bool
	defaultRegion string
}

func NewNormalizer(val *validator.Validator, hashIdentity bool, defaultRegion string) *Normalizer {
	return &Normalizer{
		val:           val,
		hashIdentity:  hashIdentity,
		defaultRegion: defaultRegion,
	}
}

// Normalize produces a store upsert from a raw row, or a structured rejection.
// The identity email is required and well-formed; the phone, when present,
// must canonicalize to E.164 or the whole row is rejected.
func (n *Normalizer) Normalize(row RawRow) (leadsvc.UpsertLead, error) {
	email := strings.ToLower(strings.TrimSpace(row.Email))
	if email == "" {
		return leadsvc.UpsertLead{}, fmt.Errorf("identity email is missing")
	}
	if err := n.val.Var(email, "email"); err != nil {
		return leadsvc.UpsertLead{}, fmt.Errorf("identity email %q is malformed", row.Email)
	}

	normalizedPhone := ""
	if strings.TrimSpace(row.Phone) != "" {
		p, err := phone.NormalizeE164(row.Phone, n.defaultRegion)
		if err != nil {
			return leadsvc.UpsertLead{}, fmt.Errorf("phone %q rejected: %v", row.Phone, err)
		}
		normalizedPhone = p
	}

	attributes := make(map[string]any, len(row.Metadata)+2)
	for k, v := range row.Metadata {
		attributes[k] = v
	}
	if v := strings.TrimSpace(row.VehicleInterest); v != "" {
		attributes["vehicleInterest"] = v
	}
	if v := strings.TrimSpace(row.Notes); v != "" {
		attributes["notes"] = v
	}

	return leadsvc.UpsertLead{
		IdentityKey: n.IdentityKey(email),
		Email:       email,
		Phone:       normalizedPhone,
		FirstName:   strings.TrimSpace(row.FirstName),
		LastName:    strings.TrimSpace(row.LastName),
		Attributes:  attributes,
		Source:      strings.TrimSpace(row.Source),
		SessionKey:  strings.TrimSpace(row.SessionKey),
	}, nil
}

// IdentityKey derives the store identity for a canonical email: a SHA-256
// digest when hashing is enabled, the email itself otherwise.
func (n *Normalizer) IdentityKey(canonicalEmail string) string {
	if !n.hashIdentity {
		return canonicalEmail
	}
	sum := sha256.Sum256([]byte(canonicalEmail))
	return hex.EncodeToString(sum[:])
}

// PayloadDigest derives a stable artifact id for a real-time payload so that
// duplicate webhook deliveries hit the idempotency ledger.
func PayloadDigest(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload for digest: %w", err)
	}
	sum := sha256.Sum256(data)
	return "payload-" + hex.EncodeToString(sum[:]), nil
}
