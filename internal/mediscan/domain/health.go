package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind names a collection of health record entries.
type Kind string

const (
	KindVitalSigns   Kind = "vitalSigns"
	KindMedications  Kind = "medications"
	KindAppointments Kind = "appointments"
	KindConditions   Kind = "conditions"
	KindAllergies    Kind = "allergies"
)

var Kinds = []Kind{KindVitalSigns, KindMedications, KindAppointments, KindConditions, KindAllergies}

var ErrInvalidKind = errors.New("invalid record type")

// ParseKind accepts a record type or a URL segment. "vitals" is an alias
// of vitalSigns.
func ParseKind(s string) (Kind, error) {
	if s == "vitals" {
		return KindVitalSigns, nil
	}
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", ErrInvalidKind
}

// Singular is the human name of one entry, e.g. "medication".
func (k Kind) Singular() string {
	switch k {
	case KindVitalSigns:
		return "vital sign"
	case KindMedications:
		return "medication"
	case KindAppointments:
		return "appointment"
	case KindConditions:
		return "condition"
	case KindAllergies:
		return "allergy"
	}
	return string(k)
}

// Plural is the lower-case collection name, e.g. "vital signs".
func (k Kind) Plural() string {
	if k == KindVitalSigns {
		return "vital signs"
	}
	return string(k)
}

// Title is Plural with a leading capital.
func (k Kind) Title() string {
	s := k.Plural()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Entry is one stored health record item. Data holds the JSON encoding of
// the Record matching Kind.
type Entry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Kind      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ValidationError lists every problem found in a record.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

type problems []string

func (p *problems) require(ok bool, field string) {
	if !ok {
		*p = append(*p, field+" is required")
	}
}

func (p *problems) oneOf(v, field string, allowed ...string) {
	for _, a := range allowed {
		if v == a {
			return
		}
	}
	*p = append(*p, fmt.Sprintf("%s must be one of %s", field, strings.Join(allowed, ", ")))
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return &ValidationError{Problems: p}
}

// Record is the typed payload of an entry.
type Record interface {
	Kind() Kind
	// Validate applies defaults and checks required fields and enums.
	Validate() error
}

// NewRecord returns an empty record of kind k.
func NewRecord(k Kind) (Record, error) {
	switch k {
	case KindVitalSigns:
		return &VitalSign{}, nil
	case KindMedications:
		return &Medication{}, nil
	case KindAppointments:
		return &Appointment{}, nil
	case KindConditions:
		return &Condition{}, nil
	case KindAllergies:
		return &Allergy{}, nil
	}
	return nil, ErrInvalidKind
}

// DecodeRecord parses raw as a record of kind k and validates it.
func DecodeRecord(k Kind, raw []byte) (Record, error) {
	rec, err := NewRecord(k)
	if err != nil {
		return nil, err
	}
	if err := decodeStrict(raw, rec); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// PatchRecord decodes patch over the stored data of kind k and validates
// the merged result. Unknown fields are rejected.
func PatchRecord(k Kind, stored, patch []byte) (Record, error) {
	rec, err := NewRecord(k)
	if err != nil {
		return nil, err
	}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, rec); err != nil {
			return nil, fmt.Errorf("decode stored %s: %w", k, err)
		}
	}
	if err := decodeStrict(patch, rec); err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	return nil
}

type VitalSign struct {
	Type      string `json:"type"`
	Value     any    `json:"value"`
	Unit      string `json:"unit"`
	Timestamp *Date  `json:"timestamp,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func (*VitalSign) Kind() Kind { return KindVitalSigns }

func (v *VitalSign) Validate() error {
	var p problems
	p.require(strings.TrimSpace(v.Type) != "", "type")
	p.require(v.Value != nil && v.Value != "", "value")
	p.require(strings.TrimSpace(v.Unit) != "", "unit")
	if v.Timestamp == nil {
		v.Timestamp = NewDate(time.Now())
	}
	return p.err()
}

type Refills struct {
	Remaining      int   `json:"remaining"`
	Total          int   `json:"total"`
	LastRefillDate *Date `json:"lastRefillDate,omitempty"`
	NextRefillDate *Date `json:"nextRefillDate,omitempty"`
}

type Medication struct {
	Name         string   `json:"name"`
	Dosage       string   `json:"dosage"`
	Frequency    string   `json:"frequency"`
	StartDate    *Date    `json:"startDate"`
	EndDate      *Date    `json:"endDate,omitempty"`
	PrescribedBy string   `json:"prescribedBy,omitempty"`
	Purpose      string   `json:"purpose,omitempty"`
	Status       string   `json:"status"`
	Refills      *Refills `json:"refills,omitempty"`
}

func (*Medication) Kind() Kind { return KindMedications }

func (m *Medication) Validate() error {
	var p problems
	p.require(strings.TrimSpace(m.Name) != "", "name")
	p.require(strings.TrimSpace(m.Dosage) != "", "dosage")
	p.require(strings.TrimSpace(m.Frequency) != "", "frequency")
	p.require(m.StartDate != nil, "startDate")
	if m.Status == "" {
		m.Status = "Active"
	}
	p.oneOf(m.Status, "status", "Active", "Discontinued", "Completed")
	if m.Refills != nil && (m.Refills.Remaining < 0 || m.Refills.Total < 0) {
		p = append(p, "refills must not be negative")
	}
	return p.err()
}

// Refill records a pharmacy refill at now.
func (m *Medication) Refill(remaining int, next Date, now time.Time) {
	if m.Refills == nil {
		m.Refills = &Refills{}
	}
	m.Refills.Remaining = remaining
	m.Refills.NextRefillDate = &next
	m.Refills.LastRefillDate = NewDate(now)
}

type Appointment struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
	Date     *Date  `json:"date"`
	Location string `json:"location,omitempty"`
	Status   string `json:"status"`
	Notes    string `json:"notes,omitempty"`
	FollowUp *Date  `json:"followUp,omitempty"`
}

func (*Appointment) Kind() Kind { return KindAppointments }

func (a *Appointment) Validate() error {
	var p problems
	p.require(strings.TrimSpace(a.Type) != "", "type")
	p.require(strings.TrimSpace(a.Provider) != "", "provider")
	p.require(a.Date != nil, "date")
	if a.Status == "" {
		a.Status = "Scheduled"
	}
	p.oneOf(a.Status, "status", "Scheduled", "Completed", "Cancelled", "Missed")
	return p.err()
}

type Condition struct {
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	DiagnosedDate *Date    `json:"diagnosedDate,omitempty"`
	Treatments    []string `json:"treatments,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

func (*Condition) Kind() Kind { return KindConditions }

func (c *Condition) Validate() error {
	var p problems
	p.require(strings.TrimSpace(c.Name) != "", "name")
	p.require(c.Status != "", "status")
	if c.Status != "" {
		p.oneOf(c.Status, "status", "Active", "Inactive", "In Remission")
	}
	return p.err()
}

type Allergy struct {
	Name          string   `json:"name"`
	Severity      string   `json:"severity"`
	DiagnosedDate *Date    `json:"diagnosedDate,omitempty"`
	Symptoms      []string `json:"symptoms,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

func (*Allergy) Kind() Kind { return KindAllergies }

func (a *Allergy) Validate() error {
	var p problems
	p.require(strings.TrimSpace(a.Name) != "", "name")
	p.require(a.Severity != "", "severity")
	if a.Severity != "" {
		p.oneOf(a.Severity, "severity", "Mild", "Moderate", "Severe")
	}
	return p.err()
}
