package billing

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	dateLayout   = "2006-01-02"
	periodLayout = "2006-01"
)

// BillingPeriod is a calendar month.
type BillingPeriod struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// NewBillingPeriod validates month and year.
func NewBillingPeriod(month, year int) (BillingPeriod, error) {
	if month < 1 || month > 12 {
		return BillingPeriod{}, errors.Wrapf(ErrInvalidPeriod, "month %d", month)
	}
	if year < 1970 || year > 9999 {
		return BillingPeriod{}, errors.Wrapf(ErrInvalidPeriod, "year %d", year)
	}
	return BillingPeriod{Month: month, Year: year}, nil
}

// ParseBillingPeriod parses a YYYY-MM string.
func ParseBillingPeriod(value string) (BillingPeriod, error) {
	if value == "" {
		return BillingPeriod{}, errors.Wrap(ErrInvalidPeriod, "period required")
	}
	t, err := time.Parse(periodLayout, value)
	if err != nil {
		return BillingPeriod{}, errors.Wrap(ErrInvalidPeriod, "period must be YYYY-MM")
	}
	return NewBillingPeriod(int(t.Month()), t.Year())
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) BillingPeriod {
	t = t.UTC()
	return BillingPeriod{Month: int(t.Month()), Year: t.Year()}
}

// Start returns the first day of the period (UTC midnight).
func (p BillingPeriod) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first day of the following period.
func (p BillingPeriod) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// LastDay returns the last calendar day of the period.
func (p BillingPeriod) LastDay() time.Time {
	return p.End().AddDate(0, 0, -1)
}

// Days returns the number of calendar days in the period.
func (p BillingPeriod) Days() int {
	return p.LastDay().Day()
}

func (p BillingPeriod) Previous() BillingPeriod {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

func (p BillingPeriod) Next() BillingPeriod {
	return PeriodOf(p.End())
}

// Ordinal maps the period onto a sortable integer (year*100 + month).
func (p BillingPeriod) Ordinal() int {
	return p.Year*100 + p.Month
}

func (p BillingPeriod) Before(other BillingPeriod) bool {
	return p.Ordinal() < other.Ordinal()
}

func (p BillingPeriod) After(other BillingPeriod) bool {
	return p.Ordinal() > other.Ordinal()
}

func (p BillingPeriod) IsZero() bool {
	return p.Month == 0 && p.Year == 0
}

func (p BillingPeriod) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// InvoiceKey identifies the single active invoice of a room in a period.
type InvoiceKey struct {
	RoomID string
	Period BillingPeriod
}

// NewInvoiceKey validates the key parts.
func NewInvoiceKey(roomID string, month, year int) (InvoiceKey, error) {
	if roomID == "" {
		return InvoiceKey{}, errors.Wrap(ErrEmptyID, "room id required")
	}
	period, err := NewBillingPeriod(month, year)
	if err != nil {
		return InvoiceKey{}, err
	}
	return InvoiceKey{RoomID: roomID, Period: period}, nil
}

func (k InvoiceKey) String() string {
	return "invoice:" + k.RoomID + ":" + k.Period.String()
}

// DateOnly truncates t to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
