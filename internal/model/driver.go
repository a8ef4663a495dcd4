// Package model defines the core types shared across the matching engine,
// reconciliation tracker, stores, and CLI.
package model

import (
	"strings"
	"time"
)

// Source identifies which external system produced a record.
type Source string

const (
	SourceLead              Source = "lead"
	SourceFieldRegistration Source = "field_agent_registration"
	SourceLedgerTransaction Source = "ledger_transaction"
)

// ValidSource reports whether s is one of the recognized extract sources.
func ValidSource(s Source) bool {
	switch s {
	case SourceLead, SourceFieldRegistration, SourceLedgerTransaction:
		return true
	}
	return false
}

// CanonicalDriver is the authoritative worker record against which all
// external claims are resolved. Loaded read-only for the duration of a
// batch; never mutated by the engine.
type CanonicalDriver struct {
	DriverID string    `json:"driver_id"`
	FullName string    `json:"full_name"`
	Phone    string    `json:"phone"`
	HireDate time.Time `json:"hire_date"`
}

// ExternalRecord is a row from an imported extract claiming an association
// with some driver by name, phone, and approximate date. Names arrive either
// split (first/last) or as a single free-text string depending on the source.
type ExternalRecord struct {
	ExternalID    string    `json:"external_id"`
	Source        Source    `json:"source"`
	FirstName     string    `json:"first_name,omitempty"`
	LastName      string    `json:"last_name,omitempty"`
	FullName      string    `json:"full_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	ReferenceDate time.Time `json:"reference_date"`
}

// CandidateName returns the best available name for matching: the free-text
// full name if present, otherwise first and last joined.
func (r ExternalRecord) CandidateName() string {
	if r.FullName != "" {
		return r.FullName
	}
	return strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
}

// MatchResult is the engine's verdict for one external record. An empty
// DriverID means unmatched, which is a normal outcome rather than an error.
type MatchResult struct {
	ExternalID  string    `json:"external_id"`
	Source      Source    `json:"source"`
	DriverID    string    `json:"driver_id,omitempty"`
	Score       float64   `json:"score"`
	DayDiff     int       `json:"day_diff"`
	IsManual    bool      `json:"is_manual"`
	IsDiscarded bool      `json:"is_discarded"`
	MatchedAt   time.Time `json:"matched_at"`
}

// Matched reports whether the record resolved to a driver.
func (m MatchResult) Matched() bool {
	return m.DriverID != ""
}

// MatchSummary aggregates the outcome of one batch run.
type MatchSummary struct {
	Total         int       `json:"total"`
	Matched       int       `json:"matched"`
	Unmatched     int       `json:"unmatched"`
	ManualSkipped int       `json:"manual_skipped"`
	DateFrom      time.Time `json:"date_from"`
	DateTo        time.Time `json:"date_to"`
}

// DaysBetween returns the whole-day distance between two timestamps,
// comparing calendar dates in UTC.
func DaysBetween(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// ReconciliationStatus classifies agreement between sources on a single
// external identity claim.
type ReconciliationStatus string

const (
	ReconUnmatched     ReconciliationStatus = "unmatched"
	ReconSinglePending ReconciliationStatus = "single_source_pending"
	ReconMatchedBoth   ReconciliationStatus = "matched_both_sources"
	ReconConflicting   ReconciliationStatus = "conflicting"
)
