package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetInstallationStatus(t *testing.T) {
	known := []string{"installed", "not-installed", "need-update"}
	SetInstallationStatus("need-update", known)

	if got := testutil.ToFloat64(InstallationStatus.WithLabelValues("need-update")); got != 1 {
		t.Errorf("Expected need-update=1, got %v", got)
	}
	if got := testutil.ToFloat64(InstallationStatus.WithLabelValues("installed")); got != 0 {
		t.Errorf("Expected installed=0, got %v", got)
	}
}

func TestHandler_ServesCollectors(t *testing.T) {
	ThresholdOutcomesTotal.WithLabelValues("System76", "success").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "battctl_threshold_outcomes_total") {
		t.Error("Expected outcome counter in metrics output")
	}
}
