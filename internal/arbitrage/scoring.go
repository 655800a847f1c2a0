package arbitrage

import "time"

// minAPYDays guards the annualization against near-expiry blowup; an
// opportunity inside ~15 minutes of resolution reports APY 0.
const minAPYDays = 0.01

// APY annualizes a per-opportunity return over the time remaining to event
// resolution. Capital is assumed locked until resolution and opportunities
// do not compound, so this is a straight linear scaling:
//
//	(roi / daysToExpiry) * 365
//
// Zero for non-positive ROI or when expiry is effectively now or past.
func APY(roi float64, expiry, now time.Time) float64 {
	if roi <= 0 {
		return 0
	}
	days := expiry.Sub(now).Hours() / 24
	if days <= minAPYDays {
		return 0
	}
	return roi / days * 365
}
