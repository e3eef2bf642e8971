package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ResolutionsTotal counts cascade resolutions by winning source and outcome
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontoma_resolutions_total",
			Help: "Total number of cascade resolutions",
		},
		[]string{"source", "outcome"},
	)

	// StepTotal counts evaluated cascade steps
	StepTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ontoma_step_total",
			Help: "Total number of cascade steps evaluated",
		},
		[]string{"step", "result"},
	)

	// IndexEntries tracks the size of the loaded indices and tables
	IndexEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ontoma_index_entries",
			Help: "Number of keys in the loaded indices and mapping tables",
		},
		[]string{"index"},
	)
)

func init() {
	prometheus.MustRegister(ResolutionsTotal)
	prometheus.MustRegister(StepTotal)
	prometheus.MustRegister(IndexEntries)
}
