package scanner

import "testing"

func TestScanStringField(t *testing.T) {
	payload := []byte(`{"symbol": "SYM", "type" :"bar","close":1}`)

	v, ok := ScanStringField(payload, []byte(`"type"`))
	if !ok || string(v) != "bar" {
		t.Fatalf("type mismatch: got %q ok=%v", v, ok)
	}
	v, ok = ScanStringField(payload, []byte(`"symbol"`))
	if !ok || string(v) != "SYM" {
		t.Fatalf("symbol mismatch: got %q ok=%v", v, ok)
	}
	if _, ok := ScanStringField(payload, []byte(`"close"`)); ok {
		t.Fatalf("numeric field should not scan as string")
	}
	if _, ok := ScanStringField(payload, []byte(`"event"`)); ok {
		t.Fatalf("missing field should not scan")
	}
}

func TestFirstNonSpace(t *testing.T) {
	if b := FirstNonSpace([]byte("  \n[{}]")); b != '[' {
		t.Fatalf("first byte mismatch: got %q", b)
	}
	if b := FirstNonSpace([]byte(" \t")); b != 0 {
		t.Fatalf("blank payload should return 0, got %q", b)
	}
}
