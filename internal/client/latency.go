package client

import "time"

type Tier int

const (
	TierGood Tier = iota
	TierMedium
	TierPoor
)

const (
	goodDelay             = 100 * time.Millisecond
	defaultDelayThreshold = 600 * time.Millisecond
)

func (t Tier) String() string {
	switch t {
	case TierGood:
		return "good"
	case TierMedium:
		return "medium"
	default:
		return "poor"
	}
}

// ClassifyDelay buckets a round trip. Anything above poor is TierPoor; a
// non-positive poor falls back to 600ms.
func ClassifyDelay(d, poor time.Duration) Tier {
	if poor <= 0 {
		poor = defaultDelayThreshold
	}
	switch {
	case d <= goodDelay:
		return TierGood
	case d <= poor:
		return TierMedium
	default:
		return TierPoor
	}
}

// compensate moves a commanded position forward by the time the command
// spent in transit.
func compensate(position float64, delay time.Duration) float64 {
	return position + delay.Seconds()
}
