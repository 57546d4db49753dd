package ingestion

import (
	"strings"
	"testing"
)

func TestParseDelimitedMapsAliases(t *testing.T) {
	file := strings.Join([]string{
		"E-Mail,FNAME,Surname,Telephone,Vehicle_Of_Interest,Comments,Campaign,IgnoredColumn",
		"ann@example.com,Ann,Lee,+1 415 555 2671,Sedan X,wants test drive,spring-promo,whatever",
	}, "\n")

	rows, err := ParseDelimited(strings.NewReader(file), "fallback")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.Email != "ann@example.com" {
		t.Fatalf("email alias not mapped: %q", row.Email)
	}
	if row.FirstName != "Ann" || row.LastName != "Lee" {
		t.Fatalf("name aliases not mapped: %q %q", row.FirstName, row.LastName)
	}
	if row.Phone != "+1 415 555 2671" {
		t.Fatalf("phone alias not mapped: %q", row.Phone)
	}
	if row.VehicleInterest != "Sedan X" {
		t.Fatalf("vehicle alias not mapped: %q", row.VehicleInterest)
	}
	if row.Notes != "wants test drive" {
		t.Fatalf("notes alias not mapped: %q", row.Notes)
	}
	if row.Source != "spring-promo" {
		t.Fatalf("source alias not mapped: %q", row.Source)
	}
}

func TestParseDelimitedDefaultSource(t *testing.T) {
	file := "email\nann@example.com\n"

	rows, err := ParseDelimited(strings.NewReader(file), "dealer-west")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows[0].Source != "dealer-west" {
		t.Fatalf("expected default source applied, got %q", rows[0].Source)
	}
}

func TestParseDelimitedMissingIdentityColumnKeepsFile(t *testing.T) {
	file := strings.Join([]string{
		"first_name,phone",
		"Ann,+14155552671",
		"Bob,+14155552672",
	}, "\n")

	rows, err := ParseDelimited(strings.NewReader(file), "")
	if err != nil {
		t.Fatalf("a missing identity column must reject rows, not the file: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Email != "" {
		t.Fatalf("expected empty identity email, got %q", rows[0].Email)
	}
}

func TestSourceTagFromName(t *testing.T) {
	if got := sourceTagFromName("incoming/dealer-west_2026-08.csv"); got != "dealer-west_2026-08" {
		t.Fatalf("unexpected source tag %q", got)
	}
}
