package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var _ SerialMuxInterface = (*DisabledSerialMux)(nil)
var _ SerialMuxInterface = (*SerialMux[*MockSerialPort])(nil)

func TestDisabledSerialMux_UnsubscribeClosesChannel(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()
	d.Unsubscribe(id)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed on unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
}

func TestDisabledSerialMux_Close(t *testing.T) {
	d := NewDisabledSerialMux()
	_, ch1 := d.Subscribe()
	_, ch2 := d.Subscribe()

	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	for _, ch := range []chan string{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Error("expected channel to be closed on Close")
		}
	}
	// second Close is a no-op and late subscribers get a closed channel
	if err := d.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
	_, late := d.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribe after Close should return a closed channel")
	}
}

func TestDisabledSerialMux_NoOps(t *testing.T) {
	d := NewDisabledSerialMux()
	if err := d.SendCommand("OUT buzzer 1"); err != nil {
		t.Errorf("SendCommand: %v", err)
	}
	if err := d.Initialise(); err != nil {
		t.Errorf("Initialise: %v", err)
	}
	if d.Stats().Total() != 0 {
		t.Error("Stats should be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Monitor(ctx); err != context.Canceled {
		t.Errorf("Monitor = %v, want context.Canceled", err)
	}

	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/serial-disabled", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
