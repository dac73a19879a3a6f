package proration

import (
	"time"

	ierr "github.com/acctportal/billingcore/internal/errors"
	"github.com/shopspring/decimal"
)

// Input holds everything the day-weighted proration needs. Amounts are in
// the smallest currency unit.
type Input struct {
	CurrentAmount           int64
	CurrentAmountPeriodDays int
	NewPlanPrice            int64
	// NewPlanBasisDays is the day count the new plan price is spread over.
	// Zero means CurrentAmountPeriodDays.
	NewPlanBasisDays int
	PeriodStart      time.Time
	NextBillingDate  time.Time
	Today            time.Time
}

// Result is the outcome of one proration. Net > 0 is a charge, Net < 0 a refund.
type Result struct {
	TotalDaysInPeriod int   `json:"total_days_in_period"`
	UsedDays          int   `json:"used_days"`
	DaysLeft          int   `json:"days_left"`
	NewPlanDays       int   `json:"new_plan_days"`
	CreditAmount      int64 `json:"credit_amount"`
	ProratedNewAmount int64 `json:"prorated_new_amount"`
	Net               int64 `json:"net"`
}

// Calculator counts calendar days in a single fixed time zone and rounds
// every amount half-up to a whole currency unit.
type Calculator struct {
	loc *time.Location
}

// NewCalculator returns a calculator counting days in loc. A nil location means UTC.
func NewCalculator(loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{loc: loc}
}

// Location returns the zone calendar days are counted in
func (c *Calculator) Location() *time.Location {
	return c.loc
}

// Calculate applies
//
//	totalDaysInPeriod = days(periodStart, nextBillingDate)
//	usedDays          = days(periodStart, today) + 1
//	daysLeft          = max(0, totalDaysInPeriod - usedDays)
//	creditAmount      = round(currentAmount * daysLeft / currentAmountPeriodDays)
//	newPlanDays       = daysLeft + 1
//	proratedNewAmount = round(newPlanPrice * newPlanDays / newPlanBasisDays)
//	net               = proratedNewAmount - creditAmount
//
// A non-positive period yields an all-zero result.
func (c *Calculator) Calculate(in Input) (*Result, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	basisDays := in.NewPlanBasisDays
	if basisDays == 0 {
		basisDays = in.CurrentAmountPeriodDays
	}

	total := c.Days(in.PeriodStart, in.NextBillingDate)
	used := c.Days(in.PeriodStart, in.Today) + 1
	if total <= 0 {
		return &Result{TotalDaysInPeriod: total, UsedDays: used}, nil
	}

	daysLeft := total - used
	if daysLeft < 0 {
		daysLeft = 0
	}
	newPlanDays := daysLeft + 1

	credit := weighted(in.CurrentAmount, daysLeft, in.CurrentAmountPeriodDays)
	prorated := weighted(in.NewPlanPrice, newPlanDays, basisDays)

	return &Result{
		TotalDaysInPeriod: total,
		UsedDays:          used,
		DaysLeft:          daysLeft,
		NewPlanDays:       newPlanDays,
		CreditAmount:      credit,
		ProratedNewAmount: prorated,
		Net:               prorated - credit,
	}, nil
}

// Refund computes only the credit side for a cancellation
func (c *Calculator) Refund(currentAmount int64, currentAmountPeriodDays int, periodStart, nextBillingDate, today time.Time) (*Result, error) {
	return c.Calculate(Input{
		CurrentAmount:           currentAmount,
		CurrentAmountPeriodDays: currentAmountPeriodDays,
		NewPlanPrice:            0,
		PeriodStart:             periodStart,
		NextBillingDate:         nextBillingDate,
		Today:                   today,
	})
}

// Days returns the signed number of calendar days from a to b
func (c *Calculator) Days(a, b time.Time) int {
	return int(c.civil(b).Sub(c.civil(a)).Hours() / 24)
}

// CycleDays approximates the length of the full cycle ending at nextBillingDate
// by stepping back one calendar month.
func (c *Calculator) CycleDays(nextBillingDate time.Time) int {
	end := nextBillingDate.In(c.loc)
	return c.Days(end.AddDate(0, -1, 0), end)
}

// StartOfDay returns midnight of t's calendar day in the billing zone
func (c *Calculator) StartOfDay(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// AddMonths moves t by whole calendar months in the billing zone
func (c *Calculator) AddMonths(t time.Time, months int) time.Time {
	return c.StartOfDay(t).AddDate(0, months, 0)
}

// civil maps t onto its calendar date at UTC midnight so day arithmetic
// is not affected by DST shifts in the billing zone.
func (c *Calculator) civil(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func weighted(amount int64, days, basis int) int64 {
	if amount == 0 || days == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(int64(days))).
		Div(decimal.NewFromInt(int64(basis))).
		Round(0).
		IntPart()
}

func validate(in Input) error {
	if in.CurrentAmountPeriodDays <= 0 {
		return ierr.NewError("amount period days must be positive").
			WithHint("The current billing amount has no valid proration basis").
			WithReportableDetails(map[string]any{
				"amount_period_days": in.CurrentAmountPeriodDays,
			}).
			Mark(ierr.ErrValidation)
	}
	if in.NewPlanBasisDays < 0 {
		return ierr.NewError("new plan basis days must not be negative").
			WithHint("Invalid proration basis for the new plan").
			WithReportableDetails(map[string]any{
				"new_plan_basis_days": in.NewPlanBasisDays,
			}).
			Mark(ierr.ErrValidation)
	}
	if in.CurrentAmount < 0 || in.NewPlanPrice < 0 {
		return ierr.NewError("amounts must not be negative").
			WithHint("Invalid amount for proration").
			WithReportableDetails(map[string]any{
				"current_amount": in.CurrentAmount,
				"new_plan_price": in.NewPlanPrice,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
