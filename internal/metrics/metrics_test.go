package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_ExposesCounters(t *testing.T) {
	RecordFrameSent("pulse")
	RecordReconnectScheduled()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, metric := range []string{
		"clawcontrol_frames_sent_total",
		"clawcontrol_reconnects_scheduled_total",
		"clawcontrol_connected",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("expected %s in metrics output", metric)
		}
	}
}
