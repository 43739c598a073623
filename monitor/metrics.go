package monitor

import "time"

// Metrics is one aggregated data point for a target, computed over the
// results collected off the engine stream. Lost probes count toward
// PacketsSent and PacketsLost but not toward the RTT statistics.
type Metrics struct {
	PacketsSent int
	PacketsLost int
	Best        time.Duration
	Worst       time.Duration
	Median      time.Duration
	Mean        time.Duration
	StdDev      time.Duration
}

// LossPercent returns the packet loss as a percentage, 0 when nothing
// was sent.
func (m *Metrics) LossPercent() float64 {
	if m.PacketsSent == 0 {
		return 0
	}
	return float64(m.PacketsLost) / float64(m.PacketsSent) * 100
}
