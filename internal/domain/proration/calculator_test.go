package proration

import (
	"testing"
	"time"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return loc
}

func day(loc *time.Location, y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func TestCalculator_Calculate(t *testing.T) {
	loc := seoul(t)
	calc := NewCalculator(loc)

	tests := []struct {
		name     string
		input    Input
		expected Result
	}{
		{
			name: "upgrade_basic_to_business_after_ten_days",
			input: Input{
				CurrentAmount:           39000,
				CurrentAmountPeriodDays: 31,
				NewPlanPrice:            99000,
				PeriodStart:             day(loc, 2024, 3, 1),
				NextBillingDate:         day(loc, 2024, 4, 1),
				Today:                   day(loc, 2024, 3, 10).Add(15 * time.Hour),
			},
			expected: Result{
				TotalDaysInPeriod: 31,
				UsedDays:          10,
				DaysLeft:          21,
				NewPlanDays:       22,
				CreditAmount:      26419,
				ProratedNewAmount: 70258,
				Net:               43839,
			},
		},
		{
			name: "downgrade_yields_negative_net",
			input: Input{
				CurrentAmount:           99000,
				CurrentAmountPeriodDays: 31,
				NewPlanPrice:            39000,
				PeriodStart:             day(loc, 2024, 3, 1),
				NextBillingDate:         day(loc, 2024, 4, 1),
				Today:                   day(loc, 2024, 3, 10),
			},
			expected: Result{
				TotalDaysInPeriod: 31,
				UsedDays:          10,
				DaysLeft:          21,
				NewPlanDays:       22,
				CreditAmount:      67065,
				ProratedNewAmount: 27677,
				Net:               -39388,
			},
		},
		{
			name: "change_after_period_end_clamps_days_left",
			input: Input{
				CurrentAmount:           39000,
				CurrentAmountPeriodDays: 31,
				NewPlanPrice:            99000,
				PeriodStart:             day(loc, 2024, 3, 1),
				NextBillingDate:         day(loc, 2024, 4, 1),
				Today:                   day(loc, 2024, 4, 5),
			},
			expected: Result{
				TotalDaysInPeriod: 31,
				UsedDays:          36,
				DaysLeft:          0,
				NewPlanDays:       1,
				CreditAmount:      0,
				ProratedNewAmount: 3194,
				Net:               3194,
			},
		},
		{
			name: "degenerate_period_yields_zero",
			input: Input{
				CurrentAmount:           99000,
				CurrentAmountPeriodDays: 31,
				NewPlanPrice:            99000,
				PeriodStart:             day(loc, 2024, 3, 1),
				NextBillingDate:         day(loc, 2024, 3, 1),
				Today:                   day(loc, 2024, 3, 1),
			},
			expected: Result{
				TotalDaysInPeriod: 0,
				UsedDays:          1,
			},
		},
		{
			name: "explicit_basis_for_new_plan",
			input: Input{
				CurrentAmount:           70258,
				CurrentAmountPeriodDays: 22,
				NewPlanPrice:            299000,
				NewPlanBasisDays:        31,
				PeriodStart:             day(loc, 2024, 3, 10),
				NextBillingDate:         day(loc, 2024, 4, 1),
				Today:                   day(loc, 2024, 3, 20),
			},
			expected: Result{
				TotalDaysInPeriod: 22,
				UsedDays:          11,
				DaysLeft:          11,
				NewPlanDays:       12,
				CreditAmount:      35129,
				ProratedNewAmount: 115742,
				Net:               80613,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := calc.Calculate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, *got)
		})
	}
}

func TestCalculator_RefundForImmediateCancel(t *testing.T) {
	loc := seoul(t)
	calc := NewCalculator(loc)
	start := day(loc, 2024, 1, 1)

	got, err := calc.Refund(99000, 31, start, start.AddDate(0, 0, 31), start.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, 6, got.UsedDays)
	assert.Equal(t, 25, got.DaysLeft)
	assert.Equal(t, int64(79839), got.CreditAmount)
	assert.Equal(t, int64(0), got.ProratedNewAmount)
	assert.Equal(t, int64(-79839), got.Net)
}

func TestCalculator_RoundsHalfUp(t *testing.T) {
	calc := NewCalculator(time.UTC)
	start := day(time.UTC, 2024, 1, 1)

	// 3 * 1 / 2 = 1.5 -> 2 for both the credit and the charge side
	got, err := calc.Calculate(Input{
		CurrentAmount:           3,
		CurrentAmountPeriodDays: 2,
		NewPlanPrice:            3,
		PeriodStart:             start,
		NextBillingDate:         start.AddDate(0, 0, 2),
		Today:                   start,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.DaysLeft)
	assert.Equal(t, int64(2), got.CreditAmount)
	assert.Equal(t, int64(3), got.ProratedNewAmount)
}

func TestCalculator_CountsDaysInBillingZone(t *testing.T) {
	loc := seoul(t)
	calc := NewCalculator(loc)

	// 16:00 UTC on Mar 9 is already Mar 10 in Seoul
	today := time.Date(2024, 3, 9, 16, 0, 0, 0, time.UTC)
	assert.Equal(t, 9, calc.Days(day(loc, 2024, 3, 1), today))

	utc := NewCalculator(time.UTC)
	assert.Equal(t, 8, utc.Days(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), today))

	assert.Equal(t, -3, calc.Days(day(loc, 2024, 3, 4), day(loc, 2024, 3, 1)))
}

func TestCalculator_RejectsInvalidBasis(t *testing.T) {
	calc := NewCalculator(time.UTC)
	start := day(time.UTC, 2024, 1, 1)

	for _, periodDays := range []int{0, -5} {
		_, err := calc.Calculate(Input{
			CurrentAmount:           39000,
			CurrentAmountPeriodDays: periodDays,
			NewPlanPrice:            99000,
			PeriodStart:             start,
			NextBillingDate:         start.AddDate(0, 1, 0),
			Today:                   start,
		})
		require.Error(t, err)
		assert.True(t, ierr.IsValidation(err))
	}

	_, err := calc.Calculate(Input{
		CurrentAmount:           -1,
		CurrentAmountPeriodDays: 31,
		PeriodStart:             start,
		NextBillingDate:         start.AddDate(0, 1, 0),
		Today:                   start,
	})
	assert.True(t, ierr.IsValidation(err))
}

func TestCalculator_NetIdentityHolds(t *testing.T) {
	calc := NewCalculator(time.UTC)
	start := day(time.UTC, 2024, 1, 1)

	for periodDays := 28; periodDays <= 31; periodDays++ {
		for elapsed := 0; elapsed <= periodDays+3; elapsed++ {
			got, err := calc.Calculate(Input{
				CurrentAmount:           39000,
				CurrentAmountPeriodDays: periodDays,
				NewPlanPrice:            99000,
				PeriodStart:             start,
				NextBillingDate:         start.AddDate(0, 0, periodDays),
				Today:                   start.AddDate(0, 0, elapsed),
			})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got.DaysLeft, 0)
			assert.Equal(t, got.ProratedNewAmount-got.CreditAmount, got.Net)
			assert.LessOrEqual(t, got.CreditAmount, int64(39000))
		}
	}
}

func TestCalculator_CycleDays(t *testing.T) {
	calc := NewCalculator(time.UTC)

	assert.Equal(t, 31, calc.CycleDays(day(time.UTC, 2024, 4, 1)))
	assert.Equal(t, 29, calc.CycleDays(day(time.UTC, 2024, 3, 1)))
	// month-end overflow: Mar 31 minus one month normalizes to Mar 2
	assert.Equal(t, 29, calc.CycleDays(day(time.UTC, 2024, 3, 31)))
}
