package agreement

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func TestNumberUnmarshalIsLenient(t *testing.T) {
	var in TermsInput
	raw := `{"amount":"1500.5","duration":"abc","weeklyHours":{"x":1},"noticePeriod":null,"probationPeriod":7}`
	require.NoError(t, json.Unmarshal([]byte(raw), &in))

	v, ok := in.Amount.Value()
	assert.True(t, ok)
	assert.Equal(t, 1500.5, v)

	_, ok = in.Duration.Value()
	assert.False(t, ok)
	_, ok = in.WeeklyHours.Value()
	assert.False(t, ok)
	_, ok = in.NoticePeriod.Value()
	assert.False(t, ok)

	p, ok := in.ProbationPeriod.Value()
	assert.True(t, ok)
	assert.Equal(t, 7.0, p)
}

func TestApplyFillsNamedDefaults(t *testing.T) {
	out := DefaultTerms().Apply(TermsInput{Amount: NumberOf(1200)}, 0, fixedNow)

	assert.Equal(t, PaymentMonthly, out.Payment.Type)
	assert.Equal(t, 1200.0, out.Payment.Amount)
	assert.Equal(t, "USD", out.Payment.Currency)
	assert.Equal(t, 90, out.Work.Duration)
	assert.Equal(t, 15, out.Work.NoticePeriod)
	assert.Equal(t, 30, out.Work.ProbationPeriod)
	assert.Equal(t, "mon_fri", out.Work.WorkingDays)
	assert.Equal(t, "employer", out.Legal.IPRights)
	assert.Equal(t, dateOnly(fixedNow), out.Work.StartDate)
	assert.Equal(t, dateOnly(fixedNow).AddDate(0, 0, 90), out.Work.EndDate)
}

func TestApplyUsesFallbackAmountAndExplicitTerms(t *testing.T) {
	in := TermsInput{
		PaymentType: "Hourly",
		HourlyRate:  NumberOf(42),
		Currency:    "eur",
		Duration:    NumberOf(30),
		StartDate:   "2024-06-10",
		IPRights:    "worker",
	}
	out := DefaultTerms().Apply(in, 800, fixedNow)

	assert.Equal(t, PaymentHourly, out.Payment.Type)
	assert.Equal(t, 800.0, out.Payment.Amount)
	require.NotNil(t, out.Payment.HourlyRate)
	assert.Equal(t, 42.0, *out.Payment.HourlyRate)
	assert.Equal(t, "EUR", out.Payment.Currency)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), out.Work.StartDate)
	assert.Equal(t, time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC), out.Work.EndDate)
	assert.Equal(t, "worker", out.Legal.IPRights)
}

func TestApplyRecoversFromMalformedDates(t *testing.T) {
	out := DefaultTerms().Apply(TermsInput{StartDate: "next tuesday", Duration: NumberOf(-5)}, 100, fixedNow)

	assert.Equal(t, dateOnly(fixedNow), out.Work.StartDate)
	assert.Equal(t, 90, out.Work.Duration)
	assert.True(t, out.Work.EndDate.After(out.Work.StartDate))
}

func TestDefaultsMerge(t *testing.T) {
	d := DefaultTerms().Merge(Defaults{Currency: "GBP", NoticePeriod: 30, PaymentType: "nonsense"})
	assert.Equal(t, "GBP", d.Currency)
	assert.Equal(t, 30, d.NoticePeriod)
	assert.Equal(t, PaymentMonthly, d.PaymentType)
	assert.Equal(t, 90, d.DurationDays)
}

func TestBackfillBeforeActivation(t *testing.T) {
	a := Agreement{ID: "a1", Status: StatusPendingWorkerAcceptance}
	require.NoError(t, a.accept(DefaultTerms(), fixedNow))

	assert.Equal(t, StatusActive, a.Status)
	assert.Equal(t, PaymentMonthly, a.PaymentTerms.Type)
	assert.Equal(t, 90, a.WorkTerms.Duration)
	assert.True(t, a.WorkTerms.EndDate.After(a.WorkTerms.StartDate))
	require.NotNil(t, a.AcceptedAt)
}

func TestApplyDateInvariant(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("end date is after start date and the terms encode", prop.ForAll(
		func(start string, duration float64) bool {
			out := DefaultTerms().Apply(TermsInput{StartDate: start, Duration: NumberOf(duration)}, 1, fixedNow)
			if out.Work.StartDate.IsZero() || !out.Work.EndDate.After(out.Work.StartDate) {
				return false
			}
			if out.Work.Duration < 1 || out.Work.Duration > maxDurationDays {
				return false
			}
			_, err := json.Marshal(out.Work)
			return err == nil
		},
		gen.OneGenOf(
			gen.AnyString(),
			gen.Const("2024-02-29"),
			gen.Const("1999-12-31T23:00:00Z"),
			gen.Const("9999-12-01"),
			gen.Const("9999-12-31T23:59:59Z"),
			gen.IntRange(1, 9999).Map(func(y int) string {
				return time.Date(y, time.June, 15, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
			}),
		),
		gen.OneGenOf(
			gen.Float64Range(-1000, 5000),
			gen.Float64Range(5000, 5e6),
			gen.Const(float64(maxDurationDays)),
			gen.Const(float64(math.MaxInt32)),
		),
	))
	properties.TestingRun(t)
}

func TestApplyFarFutureTerms(t *testing.T) {
	d := DefaultTerms()

	out := d.Apply(TermsInput{StartDate: "9999-12-01"}, 1, fixedNow)
	assert.Equal(t, dateOnly(fixedNow), out.Work.StartDate)
	assert.Equal(t, dateOnly(fixedNow).AddDate(0, 0, 90), out.Work.EndDate)

	out = d.Apply(TermsInput{Duration: NumberOf(5000000)}, 1, fixedNow)
	assert.Equal(t, 90, out.Work.Duration)

	out = d.Apply(TermsInput{StartDate: "2030-01-01", Duration: NumberOf(maxDurationDays)}, 1, fixedNow)
	assert.Equal(t, maxDurationDays, out.Work.Duration)
	assert.Equal(t, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), out.Work.StartDate)

	_, err := json.Marshal(out.Work)
	require.NoError(t, err)
}
