package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics atomic.Pointer[AnalysisMetrics]
	globalOnce    sync.Once
)

// Init registers the analysis collectors on the given registerer and makes
// them available process-wide. Only the first call takes effect.
func Init(reg prometheus.Registerer) error {
	var err error
	globalOnce.Do(func() {
		var m *AnalysisMetrics
		m, err = NewAnalysisMetrics(reg)
		if err == nil {
			globalMetrics.Store(m)
		}
	})
	return err
}

// Global returns the process-wide metrics instance, or nil when metrics are
// disabled. Callers must tolerate nil.
func Global() *AnalysisMetrics {
	return globalMetrics.Load()
}
