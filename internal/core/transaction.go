package core

import (
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
)

const (
	Weekly  RecurrenceType = "weekly"
	Monthly RecurrenceType = "monthly"
	Yearly  RecurrenceType = "yearly"
)

type (
	// RecurrenceType is the periodicity of a recurring transaction series.
	RecurrenceType string

	// Transaction is the persisted ledger entity. Amount holds the
	// encrypted-at-rest value ("ivHex:cipherHex"); plaintext amounts only
	// exist in caller-facing views produced by the engine.
	Transaction struct {
		ID                   string
		OwnerID              string
		Date                 Timestamp
		Description          string
		Amount               string
		CategoryID           string
		IsRecurrent          bool
		RecurrenceType       RecurrenceType
		RecurrenceEndDate    Timestamp
		RecurrenceID         string
		IsOriginalRecurrence bool
		CreatedAt            Timestamp
		UpdatedAt            Timestamp
	}

	// Draft is a validated create payload. Dates arrive as raw strings so
	// the validator can report format errors itself.
	Draft struct {
		Date              string
		Description       string
		Amount            float64
		CategoryID        string
		IsRecurrent       bool
		RecurrenceType    RecurrenceType
		RecurrenceEndDate string
	}

	// Patch enumerates exactly the mutable fields of a transaction. A nil
	// field means "leave unchanged". Unknown keys are rejected at the HTTP
	// boundary before a Patch is ever built.
	Patch struct {
		Description *string
		Amount      *float64
		Date        *string
		CategoryID  *string
	}
)

var (
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrEmptyDescription      = errors.New("empty description")
	ErrInvalidRecurrenceData = errors.New("recurrence type and end date are required for recurring transactions")
	ErrInvalidDateRange      = errors.New("recurrence end date must be after the transaction date")
	ErrInvalidRecurrenceType = errors.New("invalid recurrence type")
	ErrInvalidID             = errors.New("invalid identifier")
	ErrDescriptionTooLong    = errors.New("description too long (max 200 characters)")
	ErrNotFound              = errors.New("not found")
)

const maxDescriptionLen = 200

// ValidID reports whether s is a well-formed opaque identifier (UUID).
func ValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func validAmount(a float64) error {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return ErrInvalidAmount
	}
	return nil
}

func validDescription(d string) error {
	if len(strings.TrimSpace(d)) == 0 {
		return ErrEmptyDescription
	}
	if len(d) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

// Validate checks a create payload. The first violated rule is reported.
func (d Draft) Validate() error {
	if err := validAmount(d.Amount); err != nil {
		return err
	}
	if err := validDescription(d.Description); err != nil {
		return err
	}
	date, err := ParseTimestamp(d.Date)
	if err != nil {
		return err
	}
	if !ValidID(d.CategoryID) {
		return ErrInvalidID
	}

	if d.IsRecurrent {
		if d.RecurrenceType == "" || d.RecurrenceEndDate == "" {
			return ErrInvalidRecurrenceData
		}
		switch d.RecurrenceType {
		case Weekly, Monthly, Yearly:
		default:
			return ErrInvalidRecurrenceType
		}
		end, err := ParseTimestamp(d.RecurrenceEndDate)
		if err != nil {
			return err
		}
		if !date.Before(end) {
			return ErrInvalidDateRange
		}
	}

	return nil
}

// Validate checks the provided subset of fields on an update payload.
func (p Patch) Validate() error {
	if p.Amount != nil {
		if err := validAmount(*p.Amount); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := validDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.Date != nil {
		if _, err := ParseTimestamp(*p.Date); err != nil {
			return err
		}
	}
	if p.CategoryID != nil && !ValidID(*p.CategoryID) {
		return ErrInvalidID
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Description == nil && p.Amount == nil && p.Date == nil && p.CategoryID == nil
}
