package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreExposed(t *testing.T) {
	c := New()
	c.LabelsSubmitted.Inc()
	c.LabelsSubmitted.Inc()
	c.Skipped.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.LabelsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Skipped))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "annotator_labels_submitted_total 2")
	assert.Contains(t, rec.Body.String(), "annotator_fetch_failures_total 0")
}
