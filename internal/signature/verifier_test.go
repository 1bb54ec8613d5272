package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

func digest(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyValidSignature(t *testing.T) {
	v := NewVerifier("topsecret")
	body := `{"event_type":"PAYMENT_SUCCESS","data":{"order_id":"order_1"}}`

	if !v.Verify([]byte(body), digest("topsecret", body)) {
		t.Fatal("valid signature rejected")
	}
}

func TestVerifyIsCaseInsensitive(t *testing.T) {
	v := NewVerifier("topsecret")
	body := `{"data":{}}`

	upper := strings.ToUpper(digest("topsecret", body))
	if !v.Verify([]byte(body), upper) {
		t.Fatal("uppercase hex digest rejected")
	}
}

func TestVerifyRejections(t *testing.T) {
	v := NewVerifier("topsecret")
	body := `{"data":{"order_id":"order_1"}}`

	cases := []struct {
		name      string
		body      string
		presented string
	}{
		{"missing signature", body, ""},
		{"wrong secret", body, digest("othersecret", body)},
		{"tampered body", body + " ", digest("topsecret", body)},
		{"garbage signature", body, "not-hex-at-all"},
		{"truncated signature", body, digest("topsecret", body)[:32]},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if v.Verify([]byte(tc.body), tc.presented) {
				t.Fatal("forged signature accepted")
			}
		})
	}
}

func TestSignRoundTrip(t *testing.T) {
	v := NewVerifier("topsecret")
	body := []byte(`{"event_type":"PAYMENT_FAILED"}`)

	if !v.Verify(body, v.Sign(body)) {
		t.Fatal("self-signed payload rejected")
	}
}
