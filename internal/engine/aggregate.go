package engine

import (
	"net/netip"
	"time"

	"example.com/dnsrewrite/internal/model"
	"github.com/montanaflynn/stats"
)

// Aggregate reduces a sample to its success rate and mean RTT over the
// successful attempts. Without successes the RTT is model.NoRTT.
func Aggregate(ip netip.Addr, technique model.Technique, outcomes []model.ProbeOutcome) model.ProbeStats {
	st := model.ProbeStats{
		IP:         ip,
		Technique:  technique,
		Total:      len(outcomes),
		AverageRTT: model.NoRTT,
	}
	rtts := make(stats.Float64Data, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Succeeded {
			rtts = append(rtts, float64(o.RTT)/float64(time.Millisecond))
		}
	}
	st.Successes = len(rtts)
	if st.Total == 0 || st.Successes == 0 {
		return st
	}
	st.SuccessRate = float64(st.Successes) / float64(st.Total)
	if mean, err := rtts.Mean(); err == nil {
		st.AverageRTT = mean
	}
	return st
}
