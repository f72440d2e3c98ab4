// Package audit appends one row per verification attempt to a shared CSV log.
package audit

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// NotAvailable is written for contextual values the caller did not supply.
const NotAvailable = "N/A"

// TimestampLayout is the layout of the timestamp column.
const TimestampLayout = "2006-01-02 15:04:05"

// Field is a single named column value.
type Field struct {
	Name  string
	Value string
}

// Record describes one verification attempt.
type Record struct {
	AttemptID      string
	Timestamp      time.Time
	PersonName     string
	PersonID       string
	OrganizationID string
	Verified       bool
	Score          float64

	MaskStatus   string
	Temperature  string
	ShiftDetails string
	Latitude     string
	Longitude    string
	DeviceName   string
	DeviceBrand  string
	SystemName   string
	IPAddress    string
	Tenant       string
}

// NewAttemptID returns a time-ordered identifier for an attempt.
func NewAttemptID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Fields returns the record as ordered columns. The order of the first record
// written to a log file becomes that file's header.
func (r Record) Fields() []Field {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	id := r.AttemptID
	if id == "" {
		id = NewAttemptID(ts)
	}

	return []Field{
		{"timestamp", ts.Format(TimestampLayout)},
		{"person_name", r.PersonName},
		{"person_id", r.PersonID},
		{"organization_id", r.OrganizationID},
		{"verified", formatBool(r.Verified)},
		{"weighted_sum", formatScore(r.Score)},
		{"mask_status", orNA(r.MaskStatus)},
		{"temperature", orNA(r.Temperature)},
		{"shift_details", orNA(r.ShiftDetails)},
		{"latitude", orNA(r.Latitude)},
		{"longitude", orNA(r.Longitude)},
		{"device_name", orNA(r.DeviceName)},
		{"device_brand", orNA(r.DeviceBrand)},
		{"system_name", orNA(r.SystemName)},
		{"ip_address", orNA(r.IPAddress)},
		{"tenant", orNA(r.Tenant)},
		{"attempt_id", id},
	}
}

// formatBool writes booleans as True/False, the spelling existing logs use.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// formatScore rounds to 4 decimals and always keeps a fractional part, so
// 5 is written as 5.0 like in existing logs.
func formatScore(score float64) string {
	s := strconv.FormatFloat(math.Round(score*1e4)/1e4, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return NotAvailable
	}
	return s
}

// ParseLocation splits a "latitude&&longitude" value sent by attendance devices.
// Anything else yields empty coordinates.
func ParseLocation(location string) (string, string) {
	lat, lon, ok := strings.Cut(location, "&&")
	if !ok || strings.Contains(lon, "&&") {
		return "", ""
	}
	return strings.TrimSpace(lat), strings.TrimSpace(lon)
}
