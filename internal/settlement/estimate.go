package settlement

import (
	"math"
	"time"

	"github.com/printrelay/backend/internal/models"
)

// Pricing holds the local per-page rates.
type Pricing struct {
	Currency     string  `yaml:"currency"`
	BWPerPage    float64 `yaml:"bw_per_page"`
	ColorPerPage float64 `yaml:"color_per_page"`
	// DuplexDiscount is the fraction taken off double-sided jobs.
	DuplexDiscount float64 `yaml:"duplex_discount"`
	MinimumCharge  float64 `yaml:"minimum_charge"`
}

// DefaultPricing matches a typical campus print shop.
func DefaultPricing() Pricing {
	return Pricing{
		Currency:       "INR",
		BWPerPage:      2,
		ColorPerPage:   10,
		DuplexDiscount: 0.1,
	}
}

// Estimator computes the price shown while the receiver's figure is pending.
type Estimator struct {
	Pricing   Pricing
	PayeeID   string
	PayeeName string

	now func() time.Time
}

// NewEstimator returns an Estimator for the given payee.
func NewEstimator(p Pricing, payeeID, payeeName string) *Estimator {
	return &Estimator{Pricing: p, PayeeID: payeeID, PayeeName: payeeName, now: time.Now}
}

// Estimate prices pages x copies at the color or monochrome rate. Pages below
// one count as one.
func (e *Estimator) Estimate(pages int, settings models.JobSettings) models.PaymentRecord {
	settings = settings.Normalize()
	if pages < 1 {
		pages = 1
	}

	rate := e.Pricing.BWPerPage
	if settings.ColorMode == models.ColorModeColor {
		rate = e.Pricing.ColorPerPage
	}
	amount := float64(pages*settings.Copies) * rate
	if settings.Duplex && e.Pricing.DuplexDiscount > 0 && e.Pricing.DuplexDiscount < 1 {
		amount *= 1 - e.Pricing.DuplexDiscount
	}
	amount = max(amount, e.Pricing.MinimumCharge)

	now := time.Now
	if e.now != nil {
		now = e.now
	}
	return models.PaymentRecord{
		Amount:    math.Round(amount*100) / 100,
		Currency:  e.Pricing.Currency,
		PayeeID:   e.PayeeID,
		PayeeName: e.PayeeName,
		Status:    models.PaymentEstimated,
		Estimated: true,
		Note:      "local estimate",
		UpdatedAt: now().UTC(),
	}
}

// TotalPages sums page counts, counting unknown counts as one page.
func TotalPages(counts ...int) int {
	total := 0
	for _, c := range counts {
		total += max(c, 1)
	}
	return total
}
