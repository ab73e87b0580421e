package telephony

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/emiago/diago"
)

func TestPlayRequiresCallerLeg(t *testing.T) {
	d := &SIPDriver{dialogs: map[string]*leg{
		"out-1": {client: &diago.DialogClientSession{}},
	}}

	err := d.Play(context.Background(), "out-1", "hold.wav")
	if err == nil {
		t.Fatal("expected error for a client-only leg")
	}
	if !strings.Contains(err.Error(), "no caller leg") {
		t.Fatalf("err = %v", err)
	}
	if strings.Contains(err.Error(), "%!w") {
		t.Fatalf("nil error wrapped into message: %v", err)
	}
}

func TestNextBackoffCapped(t *testing.T) {
	d := 100 * time.Millisecond
	for i := 0; i < 10; i++ {
		d = nextBackoff(d)
		if d <= 0 || d > 2*time.Second {
			t.Fatalf("backoff out of range after %d steps: %v", i+1, d)
		}
	}
	if d != 2*time.Second {
		t.Fatalf("backoff did not settle at cap: %v", d)
	}
}
