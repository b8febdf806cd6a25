package webhook

import (
	"strings"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	secret := "0123456789abcdef"
	body := `{"id":"del_1","type":"reservation.created","data":{}}`
	ts := int64(1756700000)

	sig := Sign(secret, ts, body)
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature missing scheme prefix: %q", sig)
	}
	if len(sig) != len("sha256=")+64 {
		t.Fatalf("unexpected signature length: %d", len(sig))
	}
	if !Verify(secret, ts, body, sig) {
		t.Fatal("signature did not verify against its own inputs")
	}
}

func TestSignIsDeterministic(t *testing.T) {
	a := Sign("secret", 100, "body")
	b := Sign("secret", 100, "body")
	if a != b {
		t.Fatalf("same inputs produced different signatures: %q vs %q", a, b)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	secret := "secret"
	body := `{"amount":10}`
	ts := int64(1756700000)
	sig := Sign(secret, ts, body)

	cases := map[string]bool{
		"tampered body":      Verify(secret, ts, `{"amount":99}`, sig),
		"shifted timestamp":  Verify(secret, ts+1, body, sig),
		"wrong secret":       Verify("other", ts, body, sig),
		"truncated sig":      Verify(secret, ts, body, sig[:len(sig)-2]),
		"empty sig":          Verify(secret, ts, body, ""),
		"scheme-less digest": Verify(secret, ts, body, strings.TrimPrefix(sig, "sha256=")),
	}
	for name, ok := range cases {
		if ok {
			t.Errorf("%s: verification unexpectedly passed", name)
		}
	}
}

func TestNewSecretEntropy(t *testing.T) {
	a, err := newSecret()
	if err != nil {
		t.Fatal(err)
	}
	b, err := newSecret()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Fatalf("secret should be 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Fatal("two generated secrets were identical")
	}
}
