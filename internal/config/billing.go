package config

import (
	"fmt"
	"time"

	"github.com/acctportal/billingcore/internal/types"
)

const (
	DefaultTimezone  = "Asia/Seoul"
	DefaultCurrency  = "KRW"
	DefaultTrialDays = 14
	DefaultMaxCards  = 5
)

// BillingConfig holds the plan catalog and the calendar used for proration
type BillingConfig struct {
	// Timezone is the fixed zone calendar days are counted in
	Timezone  string           `mapstructure:"timezone" validate:"required"`
	Currency  string           `mapstructure:"currency" validate:"required,len=3"`
	TrialDays int              `mapstructure:"trial_days" validate:"required,min=1"`
	MaxCards  int              `mapstructure:"max_cards" validate:"required,min=1"`
	Plans     map[string]int64 `mapstructure:"plans"`
}

// DefaultBillingConfig returns the list prices used when no catalog is configured
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Timezone:  DefaultTimezone,
		Currency:  DefaultCurrency,
		TrialDays: DefaultTrialDays,
		MaxCards:  DefaultMaxCards,
		Plans: map[string]int64{
			string(types.PlanBasic):      39000,
			string(types.PlanBusiness):   99000,
			string(types.PlanEnterprise): 299000,
		},
	}
}

func (c BillingConfig) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("billing.timezone %q: %w", c.Timezone, err)
	}
	for _, plan := range types.PaidPlans {
		price, ok := c.Plans[string(plan)]
		if !ok {
			continue
		}
		if price <= 0 {
			return fmt.Errorf("billing.plans.%s must be positive", plan)
		}
	}
	return nil
}

// Location returns the billing time zone, falling back to UTC if it cannot be loaded
func (c BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PlanPrice returns the monthly list price of a paid plan
func (c BillingConfig) PlanPrice(plan types.Plan) (int64, bool) {
	if !plan.IsPaid() {
		return 0, false
	}
	if price, ok := c.Plans[string(plan)]; ok {
		return price, true
	}
	price, ok := DefaultBillingConfig().Plans[string(plan)]
	return price, ok
}
