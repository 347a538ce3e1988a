package arbitrage

import "time"

// Stats are the per-cycle counters. Each worker owns its Stats until the
// orchestrator folds them together with Merge.
type Stats struct {
	TotalTriangles    int64                `json:"total_triangles"`
	NonPriorityStart  int64                `json:"non_priority_start"`
	LowProfitPositive int64                `json:"low_profit_positive"`
	LowProfitNegative int64                `json:"low_profit_negative"`
	Failures          map[FailReason]int64 `json:"simulation_failures"`
	Opportunities     int                  `json:"opportunities"`
}

// NewStats returns zeroed Stats.
func NewStats() Stats {
	return Stats{Failures: make(map[FailReason]int64, len(FailReasons))}
}

// Merge adds o into s.
func (s *Stats) Merge(o Stats) {
	if s.Failures == nil {
		s.Failures = make(map[FailReason]int64, len(FailReasons))
	}
	s.TotalTriangles += o.TotalTriangles
	s.NonPriorityStart += o.NonPriorityStart
	s.LowProfitPositive += o.LowProfitPositive
	s.LowProfitNegative += o.LowProfitNegative
	s.Opportunities += o.Opportunities
	for r, n := range o.Failures {
		s.Failures[r] += n
	}
}

// FailureTotal returns the number of triangles dropped by the simulator.
func (s Stats) FailureTotal() int64 {
	var n int64
	for _, v := range s.Failures {
		n += v
	}
	return n
}

// LowProfitTotal returns the number of triangles below the profit threshold.
func (s Stats) LowProfitTotal() int64 {
	return s.LowProfitPositive + s.LowProfitNegative
}

// CycleStats describes one completed analysis cycle.
type CycleStats struct {
	Stats
	Duration        time.Duration `json:"duration"`
	Workers         int           `json:"workers"`
	WorkersReported int           `json:"workers_reported"`
	TimedOut        bool          `json:"timed_out"`
	Promoted        int           `json:"promoted"`
	Suppressed      int           `json:"suppressed"`
	Symbols         int           `json:"symbols"`
	Books           int           `json:"books"`
	FinishedAt      time.Time     `json:"finished_at"`
}

// Detailed reports whether the cycle warrants the multi-line breakdown.
func (c CycleStats) Detailed() bool {
	return c.Opportunities > 0 || c.Duration > 5*time.Second || c.TotalTriangles > 10000
}
