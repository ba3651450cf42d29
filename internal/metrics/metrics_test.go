package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.PagesRasterized(3)
	m.Extraction("gemini", "ok", time.Second, 4)
	m.Commit("update-existing", "ok", 1, 0)
	m.SpecialsRefreshed(1, 1)
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PagesRasterized(3)
	m.PagesRasterized(2)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.pagesRasterized))

	m.Commit("skip-duplicates", "ok", 4, 2)
	m.Commit("skip-duplicates", "conflict", 0, 0)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.committedItems.WithLabelValues("skip-duplicates", "imported")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.committedItems.WithLabelValues("skip-duplicates", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitOutcomes.WithLabelValues("conflict")))

	m.SpecialsRefreshed(2, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.specialsRefreshed.WithLabelValues("activated")))
}
