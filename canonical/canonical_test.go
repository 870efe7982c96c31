package canonical

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodeMapKeyOrderStable(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "c": 3}
	b := map[string]any{"c": 3, "a": 1, "b": 2}

	ba, err := Encode(a)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	bb, err := Encode(b)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(ba) != string(bb) {
		t.Fatalf("same logical map encoded differently: %s vs %s", ba, bb)
	}
	if string(ba) != `{"a":1,"b":2,"c":3}` {
		t.Fatalf("unexpected encoding: %s", ba)
	}
}

func TestEncodeStructFieldsSorted(t *testing.T) {
	type rec struct {
		Zed   string `json:"zed"`
		Alpha string `json:"alpha"`
		Skip  string `json:"-"`
	}
	b, err := Encode(rec{Zed: "z", Alpha: "a", Skip: "x"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b) != `{"alpha":"a","zed":"z"}` {
		t.Fatalf("unexpected encoding: %s", b)
	}
}

func TestEncodeRepeatable(t *testing.T) {
	v := map[string]any{
		"nested": map[string]any{"y": []int{1, 2, 3}, "x": "s"},
		"when":   time.Unix(1700000000, 0),
	}
	first, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if string(first) != string(again) {
			t.Fatalf("encoding not repeatable: %s vs %s", first, again)
		}
	}
}

func TestEncodeTimestampNormalizedToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	utc := time.Unix(1700000000, 0).UTC()
	shifted := utc.In(loc)

	a, _ := Encode(utc)
	b, _ := Encode(shifted)
	if string(a) != string(b) {
		t.Fatalf("same instant encoded differently: %s vs %s", a, b)
	}
}

func TestEncodeRejectsNonFinite(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Encode(map[string]float64{"v": f})
		var ee *EncodingError
		if !errors.As(err, &ee) {
			t.Fatalf("expected EncodingError for %v, got %v", f, err)
		}
	}
}

func TestEncodeRejectsCycle(t *testing.T) {
	type node struct {
		Next *node `json:"next"`
	}
	n := &node{}
	n.Next = n

	_, err := Encode(n)
	var ee *EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EncodingError for cycle, got %v", err)
	}
}

func TestEncodeRejectsNonStringMapKeys(t *testing.T) {
	_, err := Encode(map[int]string{1: "x"})
	var ee *EncodingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EncodingError, got %v", err)
	}
}

func TestEncodeNilAndPointers(t *testing.T) {
	b, err := Encode(nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b) != "null" {
		t.Fatalf("expected null, got %s", b)
	}

	s := "hello"
	b, err = Encode(map[string]*string{"p": &s, "q": nil})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(b) != `{"p":"hello","q":null}` {
		t.Fatalf("unexpected encoding: %s", b)
	}
}
