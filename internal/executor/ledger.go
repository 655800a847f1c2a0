package executor

import (
	"sync"
	"time"
)

// lossLedger accumulates realized loss per UTC day for the daily stop.
// Only losses count; winning trades do not replenish the budget, so a bad
// day halts execution until the next one. The counter is process-local
// and resets on restart.
type lossLedger struct {
	mu   sync.Mutex
	day  string
	loss float64
}

func newLossLedger() *lossLedger {
	return &lossLedger{day: time.Now().UTC().Format("2006-01-02")}
}

// add records a realized loss in USD. Non-positive amounts are ignored.
func (l *lossLedger) add(usd float64) {
	if usd <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	l.loss += usd
}

// today returns the loss accumulated so far this UTC day.
func (l *lossLedger) today() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roll()
	return l.loss
}

// roll resets the counter when the UTC day has changed. Callers hold the
// lock.
func (l *lossLedger) roll() {
	today := time.Now().UTC().Format("2006-01-02")
	if l.day != today {
		l.day = today
		l.loss = 0
	}
}
