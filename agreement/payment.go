package agreement

import "math"

// WorkingDaysPerMonth converts a monthly amount into a daily rate.
const WorkingDaysPerMonth = 22

// rateModel prices a number of logged units. Each payment type maps to exactly
// one implementation; the interface is sealed to this package.
type rateModel interface {
	amount(units float64) float64
	rateModel()
}

// perUnit multiplies units by a flat rate. Hourly pay and the catch-all types use it.
type perUnit struct{ rate float64 }

func (m perUnit) amount(units float64) float64 { return units * m.rate }
func (perUnit) rateModel()                     {}

// monthlySalary pays a day's share of a month's salary per logged day.
type monthlySalary struct{ monthly float64 }

func (m monthlySalary) amount(days float64) float64 {
	return days * (m.monthly / WorkingDaysPerMonth)
}
func (monthlySalary) rateModel() {}

// amortized spreads a total price linearly over the agreed duration in days.
type amortized struct {
	total        float64
	durationDays int
}

func (m amortized) amount(days float64) float64 {
	if m.durationDays <= 0 {
		return 0
	}
	return days * (m.total / float64(m.durationDays))
}
func (amortized) rateModel() {}

// milestone pays an explicit milestone amount when one was logged, otherwise amortizes.
type milestone struct {
	explicit *float64
	fallback amortized
}

func (m milestone) amount(days float64) float64 {
	if m.explicit != nil {
		return *m.explicit
	}
	return m.fallback.amount(days)
}
func (milestone) rateModel() {}

func modelFor(terms PaymentTerms, durationDays int, log WorkLog) rateModel {
	switch terms.Type {
	case PaymentHourly:
		rate := terms.Amount
		if terms.HourlyRate != nil && *terms.HourlyRate > 0 {
			rate = *terms.HourlyRate
		}
		return perUnit{rate: rate}
	case PaymentMonthly:
		return monthlySalary{monthly: terms.Amount}
	case PaymentFixed:
		return amortized{total: terms.Amount, durationDays: durationDays}
	case PaymentMilestone:
		return milestone{
			explicit: log.MilestoneAmount,
			fallback: amortized{total: terms.Amount, durationDays: durationDays},
		}
	default:
		return perUnit{rate: terms.Amount}
	}
}

// CalculateAmount prices a work log against the agreement's payment terms.
// It never fails: the result is finite, non-negative and rounded to cents.
func CalculateAmount(log WorkLog, a Agreement) float64 {
	if a.PaymentTerms.Type == "" && a.PaymentTerms.Amount == 0 {
		return 0
	}
	m := modelFor(a.PaymentTerms, a.WorkTerms.Duration, log)
	v := m.amount(unitsFor(a.PaymentTerms.Type, log))
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return roundCents(v)
}

// unitsFor reads hours for hourly pay and days for every other type. A log
// that only carries the other unit prices at zero.
func unitsFor(t PaymentType, log WorkLog) float64 {
	u := log.Days
	if t == PaymentHourly {
		u = log.Hours
	}
	if u == nil {
		return 0
	}
	return *u
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
