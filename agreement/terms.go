package agreement

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Number is a leniently decoded numeric term. It accepts JSON numbers and
// numeric strings; anything else decodes as "not set" instead of failing.
type Number struct {
	value float64
	set   bool
}

// NumberOf returns a set Number.
func NumberOf(v float64) Number {
	return Number{value: v, set: true}
}

// Value returns the number and whether it was supplied and finite.
func (n Number) Value() (float64, bool) {
	if !n.set || math.IsNaN(n.value) || math.IsInf(n.value, 0) {
		return 0, false
	}
	return n.value, true
}

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	*n = Number{value: v, set: true}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	v, ok := n.Value()
	if !ok {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// TermsInput is the partially filled terms object supplied by the party that
// initiates an agreement. Every field is optional; Defaults.Apply fills the gaps.
type TermsInput struct {
	PaymentType     string `json:"paymentType"`
	Amount          Number `json:"amount"`
	HourlyRate      Number `json:"hourlyRate"`
	PaymentSchedule string `json:"paymentSchedule"`
	Currency        string `json:"currency"`

	WorkType        string `json:"workType"`
	Location        string `json:"location"`
	Duration        Number `json:"duration"`
	WeeklyHours     Number `json:"weeklyHours"`
	StartDate       string `json:"startDate"`
	ProbationPeriod Number `json:"probationPeriod"`
	NoticePeriod    Number `json:"noticePeriod"`
	WorkingDays     string `json:"workingDays"`
	ShiftTiming     string `json:"shiftTiming"`
	OvertimePolicy  string `json:"overtimePolicy"`

	IPRights           string `json:"ipRights"`
	Confidentiality    string `json:"confidentiality"`
	EquipmentProvision string `json:"equipmentProvision"`
	AdditionalTerms    string `json:"additionalTerms"`
}

// Defaults holds the named default of every term field.
type Defaults struct {
	PaymentType     PaymentType `yaml:"payment_type"`
	PaymentSchedule string      `yaml:"payment_schedule"`
	Currency        string      `yaml:"currency"`

	WorkType        string  `yaml:"work_type"`
	Location        string  `yaml:"location"`
	DurationDays    int     `yaml:"duration_days"`
	WeeklyHours     float64 `yaml:"weekly_hours"`
	ProbationPeriod int     `yaml:"probation_period"`
	NoticePeriod    int     `yaml:"notice_period"`
	WorkingDays     string  `yaml:"working_days"`
	ShiftTiming     string  `yaml:"shift_timing"`
	OvertimePolicy  string  `yaml:"overtime_policy"`

	IPRights           string `yaml:"ip_rights"`
	Confidentiality    string `yaml:"confidentiality"`
	EquipmentProvision string `yaml:"equipment_provision"`
}

// DefaultTerms returns the built-in defaults.
func DefaultTerms() Defaults {
	return Defaults{
		PaymentType:        PaymentMonthly,
		PaymentSchedule:    "monthly",
		Currency:           "USD",
		WorkType:           "full_time",
		Location:           "on_site",
		DurationDays:       90,
		WeeklyHours:        40,
		ProbationPeriod:    30,
		NoticePeriod:       15,
		WorkingDays:        "mon_fri",
		ShiftTiming:        "day",
		OvertimePolicy:     "not_applicable",
		IPRights:           "employer",
		Confidentiality:    "standard",
		EquipmentProvision: "employer",
	}
}

// Merge overlays the non-zero fields of o onto d.
func (d Defaults) Merge(o Defaults) Defaults {
	if o.PaymentType.valid() {
		d.PaymentType = o.PaymentType
	}
	d.PaymentSchedule = firstNonEmpty(o.PaymentSchedule, d.PaymentSchedule)
	d.Currency = firstNonEmpty(o.Currency, d.Currency)
	d.WorkType = firstNonEmpty(o.WorkType, d.WorkType)
	d.Location = firstNonEmpty(o.Location, d.Location)
	if o.DurationDays > 0 {
		d.DurationDays = o.DurationDays
	}
	if o.WeeklyHours > 0 {
		d.WeeklyHours = o.WeeklyHours
	}
	if o.ProbationPeriod > 0 {
		d.ProbationPeriod = o.ProbationPeriod
	}
	if o.NoticePeriod > 0 {
		d.NoticePeriod = o.NoticePeriod
	}
	d.WorkingDays = firstNonEmpty(o.WorkingDays, d.WorkingDays)
	d.ShiftTiming = firstNonEmpty(o.ShiftTiming, d.ShiftTiming)
	d.OvertimePolicy = firstNonEmpty(o.OvertimePolicy, d.OvertimePolicy)
	d.IPRights = firstNonEmpty(o.IPRights, d.IPRights)
	d.Confidentiality = firstNonEmpty(o.Confidentiality, d.Confidentiality)
	d.EquipmentProvision = firstNonEmpty(o.EquipmentProvision, d.EquipmentProvision)
	return d
}

// normalizedTerms is the outcome of a single defaulting pass over TermsInput.
type normalizedTerms struct {
	Payment PaymentTerms
	Work    WorkTerms
	Legal   LegalTerms
}

// Apply resolves every term in one pass. fallbackAmount is used when the input
// carries no positive amount; a zero result is left for the caller to reject.
func (d Defaults) Apply(in TermsInput, fallbackAmount float64, now time.Time) normalizedTerms {
	var out normalizedTerms

	pt := PaymentType(strings.ToLower(strings.TrimSpace(in.PaymentType)))
	if !pt.valid() {
		pt = d.PaymentType
	}
	amount, ok := in.Amount.Value()
	if !ok || amount <= 0 {
		amount = fallbackAmount
	}
	out.Payment = PaymentTerms{
		Type:     pt,
		Amount:   amount,
		Schedule: firstNonEmpty(strings.TrimSpace(in.PaymentSchedule), d.PaymentSchedule),
		Currency: strings.ToUpper(firstNonEmpty(strings.TrimSpace(in.Currency), d.Currency)),
	}
	if rate, ok := in.HourlyRate.Value(); ok && rate > 0 {
		out.Payment.HourlyRate = &rate
	}

	duration := positiveInt(in.Duration, 0)
	if duration > maxDurationDays {
		duration = 0
	}
	span := duration
	if span <= 0 {
		span = d.durationDays()
	}
	start := parseDate(in.StartDate, now)
	if start.AddDate(0, 0, span).After(latestDate) {
		start = dateOnly(now)
	}
	out.Work = WorkTerms{
		WorkType:        firstNonEmpty(strings.TrimSpace(in.WorkType), d.WorkType),
		Location:        firstNonEmpty(strings.TrimSpace(in.Location), d.Location),
		Duration:        duration,
		WeeklyHours:     positiveFloat(in.WeeklyHours, d.WeeklyHours),
		StartDate:       start,
		EndDate:         d.endDate(start, duration, now),
		ProbationPeriod: nonNegativeInt(in.ProbationPeriod, d.ProbationPeriod),
		NoticePeriod:    nonNegativeInt(in.NoticePeriod, d.NoticePeriod),
		WorkingDays:     firstNonEmpty(strings.TrimSpace(in.WorkingDays), d.WorkingDays),
		ShiftTiming:     firstNonEmpty(strings.TrimSpace(in.ShiftTiming), d.ShiftTiming),
		OvertimePolicy:  firstNonEmpty(strings.TrimSpace(in.OvertimePolicy), d.OvertimePolicy),
	}
	if out.Work.Duration <= 0 {
		out.Work.Duration = d.durationDays()
	}

	out.Legal = LegalTerms{
		IPRights:           firstNonEmpty(strings.TrimSpace(in.IPRights), d.IPRights),
		Confidentiality:    firstNonEmpty(strings.TrimSpace(in.Confidentiality), d.Confidentiality),
		EquipmentProvision: firstNonEmpty(strings.TrimSpace(in.EquipmentProvision), d.EquipmentProvision),
		AdditionalTerms:    strings.TrimSpace(in.AdditionalTerms),
	}
	return out
}

// endDate derives start + duration days. An invalid duration falls back to
// now + default duration; a result that is not after start is rebuilt from start.
func (d Defaults) endDate(start time.Time, duration int, now time.Time) time.Time {
	var end time.Time
	if duration > 0 {
		end = start.AddDate(0, 0, duration)
	} else {
		end = dateOnly(now).AddDate(0, 0, d.durationDays())
	}
	if end.IsZero() || !end.After(start) {
		days := duration
		if days <= 0 {
			days = d.durationDays()
		}
		end = start.AddDate(0, 0, days)
	}
	return end
}

func (d Defaults) durationDays() int {
	if d.DurationDays > 0 && d.DurationDays <= maxDurationDays {
		return d.DurationDays
	}
	return 90
}

// backfill fills zero-valued work and payment terms before activation.
func (d Defaults) backfill(a *Agreement, now time.Time) {
	p := &a.PaymentTerms
	if !p.Type.valid() {
		p.Type = d.PaymentType
	}
	p.Schedule = firstNonEmpty(p.Schedule, d.PaymentSchedule)
	p.Currency = firstNonEmpty(p.Currency, d.Currency)

	w := &a.WorkTerms
	w.WorkType = firstNonEmpty(w.WorkType, d.WorkType)
	w.Location = firstNonEmpty(w.Location, d.Location)
	if w.Duration <= 0 || w.Duration > maxDurationDays {
		w.Duration = d.durationDays()
	}
	if w.WeeklyHours <= 0 {
		w.WeeklyHours = d.WeeklyHours
	}
	if w.StartDate.IsZero() {
		w.StartDate = dateOnly(now)
	}
	if w.EndDate.IsZero() || !w.EndDate.After(w.StartDate) {
		w.EndDate = d.endDate(w.StartDate, w.Duration, now)
	}
	if w.NoticePeriod <= 0 {
		w.NoticePeriod = d.NoticePeriod
	}
	w.WorkingDays = firstNonEmpty(w.WorkingDays, d.WorkingDays)
	w.ShiftTiming = firstNonEmpty(w.ShiftTiming, d.ShiftTiming)
	w.OvertimePolicy = firstNonEmpty(w.OvertimePolicy, d.OvertimePolicy)

	l := &a.LegalTerms
	l.IPRights = firstNonEmpty(l.IPRights, d.IPRights)
	l.Confidentiality = firstNonEmpty(l.Confidentiality, d.Confidentiality)
	l.EquipmentProvision = firstNonEmpty(l.EquipmentProvision, d.EquipmentProvision)
}

// Dates past latestDate do not survive JSON encoding.
var latestDate = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// maxDurationDays bounds a contract at roughly a century.
const maxDurationDays = 36500

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006/01/02",
}

// parseDate accepts the common ISO shapes and falls back to today.
func parseDate(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil && t.Year() > 1 {
				return dateOnly(t)
			}
		}
	}
	return dateOnly(now)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func positiveInt(n Number, fallback int) int {
	if v, ok := n.Value(); ok && v >= 1 && v <= math.MaxInt32 {
		return int(v)
	}
	return fallback
}

func nonNegativeInt(n Number, fallback int) int {
	if v, ok := n.Value(); ok && v >= 0 && v <= math.MaxInt32 {
		return int(v)
	}
	return fallback
}

func positiveFloat(n Number, fallback float64) float64 {
	if v, ok := n.Value(); ok && v > 0 {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
