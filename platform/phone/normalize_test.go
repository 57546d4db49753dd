package phone

import (
	"errors"
	"testing"
)

func TestNormalizeE164International(t *testing.T) {
	got, err := NormalizeE164("+1 (415) 555-2671", "US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+14155552671" {
		t.Fatalf("expected +14155552671, got %q", got)
	}
}

func TestNormalizeE164AppliesDefaultRegion(t *testing.T) {
	got, err := NormalizeE164("415-555-2671", "US")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+14155552671" {
		t.Fatalf("expected default-region country code applied, got %q", got)
	}
}

func TestNormalizeE164RejectsEmpty(t *testing.T) {
	if _, err := NormalizeE164("   ", "US"); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}
}

func TestNormalizeE164RejectsTooShort(t *testing.T) {
	if _, err := NormalizeE164("555-123", "US"); err == nil {
		t.Fatal("expected short number to be rejected")
	}
}

func TestNormalizeE164RejectsGarbage(t *testing.T) {
	if _, err := NormalizeE164("not a number", "US"); err == nil {
		t.Fatal("expected garbage input to be rejected")
	}
}
