package myriad

import "time"

// market is one Myriad market as returned by the markets endpoints.
// Only binary (two-outcome) markets are usable here.
type market struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	ExpiresAt time.Time `json:"expires_at"`
	Outcomes  []outcome `json:"outcomes"`
}

type outcome struct {
	ID         int     `json:"id"`
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	SharesHeld float64 `json:"shares_held"`
}

func (m market) outcomeByID(id int) (outcome, bool) {
	for _, o := range m.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return outcome{}, false
}
