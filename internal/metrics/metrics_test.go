package metrics

import (
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestPairedUsersGauge(t *testing.T) {
	// The gauge counts participants on this server, one per paired user.
	if desc := PairedUsers.Desc().String(); !strings.Contains(desc, "guftagu_paired_users") {
		t.Errorf("unexpected descriptor: %s", desc)
	}

	read := func() float64 {
		var m dto.Metric
		if err := PairedUsers.Write(&m); err != nil {
			t.Fatalf("read gauge: %v", err)
		}
		return m.GetGauge().GetValue()
	}

	before := read()
	PairedUsers.Inc()
	PairedUsers.Inc()
	PairedUsers.Dec()
	if got := read(); got != before+1 {
		t.Errorf("gauge = %v, want %v", got, before+1)
	}
	PairedUsers.Dec()
}
