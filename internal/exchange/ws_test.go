package exchange

import (
	"testing"
	"time"
)

func TestParseTick(t *testing.T) {
	t.Parallel()

	msg := []byte(`{"ch":"ticker","symbol":"BTCUSDT","data":{"p":"100.5","ts":1700000000000}}`)
	tick, ok, err := parseTick(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a tick")
	}
	if tick.Symbol != "BTCUSDT" || tick.Price != 100.5 {
		t.Errorf("unexpected tick: %+v", tick)
	}
	if !tick.Ts.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("timestamp not taken from the message: %v", tick.Ts)
	}
}

func TestParseTickIgnoresNonTicker(t *testing.T) {
	t.Parallel()

	for _, msg := range []string{
		`{"op":"subscribe","success":true}`,
		`{"ch":"pong"}`,
	} {
		_, ok, err := parseTick([]byte(msg))
		if err != nil {
			t.Errorf("%s: unexpected error %v", msg, err)
		}
		if ok {
			t.Errorf("%s: must not produce a tick", msg)
		}
	}
}

func TestParseTickRejectsBadPrices(t *testing.T) {
	t.Parallel()

	for _, msg := range []string{
		`{"ch":"ticker","symbol":"BTCUSDT","data":{"p":"abc"}}`,
		`{"ch":"ticker","symbol":"BTCUSDT","data":{"p":"-1"}}`,
		`{"ch":"ticker","symbol":"BTCUSDT","data":{"p":"0"}}`,
		`not json`,
	} {
		if _, ok, err := parseTick([]byte(msg)); err == nil || ok {
			t.Errorf("%s: expected a parse error", msg)
		}
	}
}

func TestParseTickDefaultsTimestamp(t *testing.T) {
	t.Parallel()

	before := time.Now()
	tick, ok, err := parseTick([]byte(`{"ch":"ticker","symbol":"BTCUSDT","data":{"p":"100"}}`))
	if err != nil || !ok {
		t.Fatalf("unexpected result: ok=%v err=%v", ok, err)
	}
	if tick.Ts.Before(before) {
		t.Error("missing timestamp must default to now")
	}
}
