package sessions

import (
	"time"

	"mabletask/insights/timerange"
)

// Scan describes which partitions and which instants a warehouse query reads.
// IntradaySuffix is empty when no unfinalized partition should be unioned in.
type Scan struct {
	Start          time.Time
	End            time.Time
	DailyFrom      string
	DailyTo        string
	IntradaySuffix string
}

// IncludesIntraday reports whether the scan unions today's unfinalized partition.
func (s Scan) IncludesIntraday() bool { return s.IntradaySuffix != "" }

// TodaySuffix is the partition suffix of the day the window ends in.
func TodaySuffix(b timerange.Bounds, offset time.Duration) string {
	return timerange.ToDateSuffix(b.Now, offset)
}

// PlanScan covers the current window of b. The intraday partition for today is
// referenced only when intradayExists; a missing partition is never queried.
func PlanScan(b timerange.Bounds, offset time.Duration, intradayExists bool) Scan {
	s := Scan{
		Start:     b.CurrentStart,
		End:       b.Now,
		DailyFrom: timerange.ToDateSuffix(b.CurrentStart, offset),
		DailyTo:   timerange.ToDateSuffix(b.Now, offset),
	}
	if intradayExists {
		s.IntradaySuffix = TodaySuffix(b, offset)
	}
	return s
}
