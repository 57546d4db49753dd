package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Recognized header aliases per canonical column. Unrecognized columns are
// ignored.
var columnAliases = map[string][]string{
	"email":     {"email", "e-mail", "email_address", "emailaddress", "contact_email"},
	"firstName": {"first_name", "firstname", "first", "fname", "given_name"},
	"lastName":  {"last_name", "lastname", "last", "lname", "surname", "family_name"},
	"phone":     {"phone", "phone_number", "phonenumber", "mobile", "cell", "telephone", "tel"},
	"vehicle":   {"vehicle", "vehicle_of_interest", "vehicle_interest", "car", "model", "model_of_interest"},
	"notes":     {"notes", "comments", "message", "remarks", "free_text"},
	"source":    {"source", "campaign", "lead_source", "utm_source", "tag"},
}

type columnMap map[string]int

func resolveColumns(header []string) columnMap {
	normalized := make(map[string]int, len(header))
	for i, raw := range header {
		key := strings.ToLower(strings.TrimSpace(raw))
		key = strings.ReplaceAll(key, " ", "_")
		normalized[key] = i
	}

	cols := make(columnMap)
	for canonical, aliases := range columnAliases {
		for _, alias := range aliases {
			if idx, ok := normalized[alias]; ok {
				cols[canonical] = idx
				break
			}
		}
	}
	return cols
}

func (m columnMap) value(record []string, canonical string) string {
	idx, ok := m[canonical]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// ParseDelimited reads a delimited lead file into raw rows using the header
// alias mapping. A missing identity column does not fail the file; affected
// rows are rejected individually during normalization.
func ParseDelimited(r io.Reader, defaultSource string) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := resolveColumns(header)

	var rows []RawRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken record is an empty row; normalization
			// rejects it with a per-row reason instead of aborting the file.
			rows = append(rows, RawRow{})
			continue
		}

		row := RawRow{
			Email:           cols.value(record, "email"),
			FirstName:       cols.value(record, "firstName"),
			LastName:        cols.value(record, "lastName"),
			Phone:           cols.value(record, "phone"),
			VehicleInterest: cols.value(record, "vehicle"),
			Notes:           cols.value(record, "notes"),
			Source:          cols.value(record, "source"),
		}
		if row.Source == "" {
			row.Source = defaultSource
		}
		rows = append(rows, row)
	}

	return rows, nil
}
