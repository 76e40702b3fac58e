package webhook

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestSign(t *testing.T) {
	// HMAC-SHA256 test vector from RFC 4231, test case 2: key "Jefe", data
	// "what do ya want for nothing?". The data is split across timestamp
	// and token to pin the concatenation order.
	got := Sign("Jefe", "what do ya want ", "for nothing?")
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}

func TestSignIsLowercaseHex(t *testing.T) {
	sig := Sign("test-key", "1700000000", "abcDEF123")
	if len(sig) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(sig))
	}
	if sig != strings.ToLower(sig) {
		t.Errorf("expected lowercase signature, got %s", sig)
	}
	for _, r := range sig {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("unexpected character %q in signature", r)
		}
	}
}

func TestSignDependsOnAllInputs(t *testing.T) {
	base := Sign("key", "1700000000", "token")
	if Sign("other", "1700000000", "token") == base {
		t.Error("signature should change with the key")
	}
	if Sign("key", "1700000001", "token") == base {
		t.Error("signature should change with the timestamp")
	}
	if Sign("key", "1700000000", "nekot") == base {
		t.Error("signature should change with the token")
	}
}

func TestVerify(t *testing.T) {
	timestamp := Timestamp()
	token, err := NewToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig := Sign("api-key", timestamp, token)

	if !Verify("api-key", timestamp, token, sig) {
		t.Error("expected signature to verify")
	}
	if Verify("wrong-key", timestamp, token, sig) {
		t.Error("expected verification to fail with the wrong key")
	}
	if Verify("api-key", timestamp, token, sig[:63]+"0") {
		t.Error("expected verification to fail for a tampered signature")
	}
}

func TestNewToken(t *testing.T) {
	token, err := NewToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != 32 {
		t.Errorf("expected 32 characters, got %d", len(token))
	}
	for _, r := range token {
		if !strings.ContainsRune(tokenCharset, r) {
			t.Errorf("unexpected character %q in token", r)
		}
	}

	other, err := NewToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token == other {
		t.Error("expected two tokens to differ")
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Unix()
	ts := Timestamp()
	after := time.Now().Unix()

	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		t.Fatalf("timestamp is not a decimal integer: %v", err)
	}
	if n < before || n > after {
		t.Errorf("timestamp %d outside [%d, %d]", n, before, after)
	}
}
