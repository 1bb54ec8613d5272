package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verifier checks the authenticity of inbound gateway notifications. The
// gateway signs the exact raw request body with HMAC-SHA256 over the shared
// secret and presents the hex digest in a header.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify reports whether presented matches the HMAC-SHA256 of rawBody. It
// must be called on the untouched body bytes before any parsing. Comparison
// is constant-time; hex case differences are tolerated.
func (v *Verifier) Verify(rawBody []byte, presented string) bool {
	if presented == "" {
		return false
	}

	got, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(presented)))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the hex HMAC-SHA256 of body. Used by tests and the sandbox
// webhook replayer.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
