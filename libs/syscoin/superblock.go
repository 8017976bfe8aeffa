package syscoin

import "time"

const (
	BlockTime       = 150 * time.Second
	SuperblockCycle = 17520
	// MaxPaymentCount bounds a proposal to ten years of monthly superblocks.
	MaxPaymentCount = 120
)

// Schedule projects superblock times from a known superblock.
type Schedule struct {
	Anchor     time.Time
	BlockTime  time.Duration
	CycleBlock int
}

func DefaultSchedule(anchor time.Time) Schedule {
	return Schedule{Anchor: anchor, BlockTime: BlockTime, CycleBlock: SuperblockCycle}
}

func (s Schedule) Cycle() time.Duration {
	return time.Duration(s.CycleBlock) * s.BlockTime
}

// Next returns the first superblock at or after t.
func (s Schedule) Next(t time.Time) time.Time {
	cycle := s.Cycle()
	if cycle <= 0 || !t.After(s.Anchor) {
		return s.Anchor
	}
	elapsed := t.Sub(s.Anchor)
	n := elapsed / cycle
	if elapsed%cycle != 0 {
		n++
	}
	return s.Anchor.Add(n * cycle)
}

// PaymentDates lists count payouts starting at the first superblock at or
// after first.
func (s Schedule) PaymentDates(first time.Time, count int) []time.Time {
	if count <= 0 {
		return []time.Time{}
	}
	start := s.Next(first)
	cycle := s.Cycle()
	out := make([]time.Time, count)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * cycle).UTC()
	}
	return out
}
