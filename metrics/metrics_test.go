package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("reading metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordRequest(t *testing.T) {
	before := counterValue(t, RequestsTotal.WithLabelValues("wiki_get_page", "success"))
	RecordRequest("wiki_get_page", 0.12, true)
	after := counterValue(t, RequestsTotal.WithLabelValues("wiki_get_page", "success"))
	if after != before+1 {
		t.Errorf("success counter = %v, want %v", after, before+1)
	}

	before = counterValue(t, RequestsTotal.WithLabelValues("wiki_get_page", "error"))
	RecordRequest("wiki_get_page", 0.05, false)
	after = counterValue(t, RequestsTotal.WithLabelValues("wiki_get_page", "error"))
	if after != before+1 {
		t.Errorf("error counter = %v, want %v", after, before+1)
	}
}

func TestRecordAPICall(t *testing.T) {
	before := counterValue(t, WikiAPIRequestsTotal.WithLabelValues("edit", "success"))
	RecordAPICall("edit", 0.3, true, "")
	after := counterValue(t, WikiAPIRequestsTotal.WithLabelValues("edit", "success"))
	if after != before+1 {
		t.Errorf("api counter = %v, want %v", after, before+1)
	}

	beforeErr := counterValue(t, WikiAPIErrors.WithLabelValues("edit", "lag_exhausted"))
	RecordAPICall("edit", 5.0, false, "lag_exhausted")
	afterErr := counterValue(t, WikiAPIErrors.WithLabelValues("edit", "lag_exhausted"))
	if afterErr != beforeErr+1 {
		t.Errorf("error-code counter = %v, want %v", afterErr, beforeErr+1)
	}
}

func TestRecordAPICall_NoErrorCodeOnSuccess(t *testing.T) {
	before := counterValue(t, WikiAPIErrors.WithLabelValues("query", "transport"))
	RecordAPICall("query", 0.1, true, "")
	after := counterValue(t, WikiAPIErrors.WithLabelValues("query", "transport"))
	if after != before {
		t.Errorf("error counter moved on a success: %v -> %v", before, after)
	}
}

func TestRecordTokenFetch(t *testing.T) {
	beforeCache := counterValue(t, TokenFetchesTotal.WithLabelValues("csrf", "cache"))
	beforeServer := counterValue(t, TokenFetchesTotal.WithLabelValues("csrf", "server"))

	RecordTokenFetch("csrf", true)
	RecordTokenFetch("csrf", false)

	if v := counterValue(t, TokenFetchesTotal.WithLabelValues("csrf", "cache")); v != beforeCache+1 {
		t.Errorf("cache counter = %v, want %v", v, beforeCache+1)
	}
	if v := counterValue(t, TokenFetchesTotal.WithLabelValues("csrf", "server")); v != beforeServer+1 {
		t.Errorf("server counter = %v, want %v", v, beforeServer+1)
	}
}

func TestRecordEdit(t *testing.T) {
	before := counterValue(t, EditOperations.WithLabelValues("upload", "error"))
	RecordEdit("upload", false)
	after := counterValue(t, EditOperations.WithLabelValues("upload", "error"))
	if after != before+1 {
		t.Errorf("edit counter = %v, want %v", after, before+1)
	}
}

func TestLagWaitsTotal(t *testing.T) {
	before := counterValue(t, LagWaitsTotal)
	LagWaitsTotal.Inc()
	after := counterValue(t, LagWaitsTotal)
	if after != before+1 {
		t.Errorf("lag counter = %v, want %v", after, before+1)
	}
}
