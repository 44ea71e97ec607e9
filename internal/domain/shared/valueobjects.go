// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// LearnerID represents a unique learner identifier (UUID format).
type LearnerID string

// IsValid checks if the learner ID is a valid UUID.
func (l LearnerID) IsValid() bool {
	return uuidRegex.MatchString(string(l))
}

// String returns the string representation.
func (l LearnerID) String() string {
	return string(l)
}

// IsEmpty checks if the ID is empty.
func (l LearnerID) IsEmpty() bool {
	return l == ""
}

// NewLearnerID creates a new LearnerID with validation.
func NewLearnerID(id string) (LearnerID, error) {
	lid := LearnerID(strings.ToLower(strings.TrimSpace(id)))
	if !lid.IsValid() {
		return "", NewDomainError("shared", "NewLearnerID", ErrInvalidID, "invalid learner ID format")
	}
	return lid, nil
}

// TxRef is an opaque settlement-layer transaction reference.
// The engine never interprets its contents, only stores and compares it.
type TxRef string

// IsValid checks that the reference is non-empty.
func (t TxRef) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// String returns the string representation.
func (t TxRef) String() string {
	return string(t)
}

// IdempotencyKey identifies a progress event across retries and replays.
// Derived from the external source reference plus the event kind, so the
// same real-world action always maps to the same key.
type IdempotencyKey string

// NewIdempotencyKey builds the canonical key for a source reference and kind.
func NewIdempotencyKey(sourceID, kind string) (IdempotencyKey, error) {
	sourceID = strings.TrimSpace(sourceID)
	kind = strings.TrimSpace(kind)
	if sourceID == "" || kind == "" {
		return "", NewDomainError("shared", "NewIdempotencyKey", ErrEmptyValue, "source ID and kind are required")
	}
	return IdempotencyKey(sourceID + ":" + kind), nil
}

// String returns the string representation.
func (k IdempotencyKey) String() string {
	return string(k)
}

// ═══════════════════════════════════════════════════════════════════════════
// Amount Value Object (fixed-point money)
// ═══════════════════════════════════════════════════════════════════════════

// Amount represents a non-negative monetary value in the platform currency.
// All arithmetic is decimal so settlement totals reproduce exactly across runs.
type Amount struct {
	value decimal.Decimal
}

// ZeroAmount is the additive identity.
var ZeroAmount = Amount{value: decimal.Zero}

// NewAmount creates an Amount from a decimal string (e.g. "0.10").
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, WrapError("shared", "NewAmount", ErrInvalidFormat, "invalid amount", err)
	}
	if d.IsNegative() {
		return Amount{}, NewDomainError("shared", "NewAmount", ErrNegativeValue, "amount cannot be negative")
	}
	return Amount{value: d}, nil
}

// NewAmountFromDecimal wraps an existing decimal, rejecting negatives.
func NewAmountFromDecimal(d decimal.Decimal) (Amount, error) {
	if d.IsNegative() {
		return Amount{}, NewDomainError("shared", "NewAmountFromDecimal", ErrNegativeValue, "amount cannot be negative")
	}
	return Amount{value: d}, nil
}

// MustAmount creates an Amount and panics on invalid input. For constants and tests.
func MustAmount(s string) Amount {
	a, err := NewAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Decimal returns the underlying decimal value.
func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

// String returns the canonical decimal representation.
func (a Amount) String() string {
	return a.value.String()
}

// IsZero checks if the amount is zero.
func (a Amount) IsZero() bool {
	return a.value.IsZero()
}

// IsPositive checks if the amount is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a.value.IsPositive()
}

// Add returns the sum of two amounts.
func (a Amount) Add(other Amount) Amount {
	return Amount{value: a.value.Add(other.value)}
}

// Sub subtracts and returns an error if the result would be negative.
func (a Amount) Sub(other Amount) (Amount, error) {
	result := a.value.Sub(other.value)
	if result.IsNegative() {
		return Amount{}, NewDomainError("shared", "Amount.Sub", ErrNegativeValue, "amount cannot go negative")
	}
	return Amount{value: result}, nil
}

// MulFraction multiplies by a decimal fraction (fee rates, multipliers).
func (a Amount) MulFraction(f decimal.Decimal) Amount {
	return Amount{value: a.value.Mul(f)}
}

// Cmp compares two amounts: -1 if a < other, 0 if equal, 1 if a > other.
func (a Amount) Cmp(other Amount) int {
	return a.value.Cmp(other.value)
}

// Equal checks value equality regardless of exponent representation.
func (a Amount) Equal(other Amount) bool {
	return a.value.Equal(other.value)
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a time period.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && !t.From.After(t.To)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Contains checks if a time is within the range.
// The range is half-open: From is included, To is excluded, matching the
// exclusive deadline on goal windows.
func (t TimeRange) Contains(tm time.Time) bool {
	return (tm.Equal(t.From) || tm.After(t.From)) && tm.Before(t.To)
}

// Days returns the whole number of days covered by the range.
func (t TimeRange) Days() int {
	return int(t.Duration().Hours() / 24)
}

// NewTimeRange creates a new TimeRange with validation.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	tr := TimeRange{From: from, To: to}
	if !tr.IsValid() {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrInvalidInput, "'from' must be before 'to'")
	}
	return tr, nil
}

// LastNDays returns a TimeRange for the last N days ending now (UTC).
func LastNDays(n int) TimeRange {
	now := time.Now().UTC()
	return TimeRange{
		From: now.AddDate(0, 0, -n),
		To:   now,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(1, DefaultPageSize)
}

// ═══════════════════════════════════════════════════════════════════════════
// Fraction helpers
// ═══════════════════════════════════════════════════════════════════════════

// ParseFraction parses a decimal fraction in [0, 1] (fee rates, cap fractions).
func ParseFraction(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, WrapError("shared", "ParseFraction", ErrInvalidFormat, "invalid fraction", err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, NewDomainError("shared", "ParseFraction",
			ErrValueOutOfRange, fmt.Sprintf("fraction %s must be within [0, 1]", d))
	}
	return d, nil
}
