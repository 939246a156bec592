package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// System metrics
	SystemMemoryUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fingraph_system_memory_bytes",
		Help: "Current system memory usage",
	})

	SystemGoroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fingraph_system_goroutines",
		Help: "Number of goroutines",
	})

	// Extraction metrics
	EntitiesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fingraph_entities_extracted_total",
			Help: "Number of entities extracted, by entity type",
		},
		[]string{"entity_type"},
	)

	ExtractionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fingraph_extraction_failures_total",
			Help: "Sub-extractor failures that degraded to an empty contribution",
		},
		[]string{"family"},
	)

	// Categorization metrics
	Categorizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fingraph_categorizations_total",
			Help: "Categorization results by method and category",
		},
		[]string{"method", "category"},
	)

	// Graph metrics
	GraphNodeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fingraph_graph_nodes",
			Help: "Number of nodes in the last built graph",
		},
		[]string{"node_type"},
	)

	GraphEdgeCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fingraph_graph_edges",
			Help: "Number of edges in the last built graph",
		},
		[]string{"edge_type"},
	)

	SkippedPairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fingraph_graph_skipped_pairs_total",
		Help: "Malformed document entity pairs skipped by the graph builder",
	})
)

// UpdateSystemMetrics updates system-level metrics
func UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	SystemMemoryUsage.Set(float64(m.Alloc))
	SystemGoroutines.Set(float64(runtime.NumGoroutine()))
}
