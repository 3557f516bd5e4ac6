package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	tsPattern = regexp.MustCompile(`ts=([^,]+)`)
	v1Pattern = regexp.MustCompile(`v1=([^,]+)`)
)

// WebhookValidator checks the x-signature header Mercado Pago sends
// with webhook notifications. The header carries ts=<ts>,v1=<hex> and
// the hex value is an HMAC-SHA256 over
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
type WebhookValidator struct {
	secret string
}

// NewWebhookValidator builds a validator bound to one webhook secret.
// An empty secret rejects every signature.
func NewWebhookValidator(secret string) *WebhookValidator {
	return &WebhookValidator{secret: secret}
}

// Verify reports whether the signature matches the notification it
// came with.
func (v *WebhookValidator) Verify(xSignature, xRequestID, dataID string) bool {
	if xSignature == "" || v.secret == "" {
		return false
	}

	ts, hash := parseSignatureHeader(xSignature)
	if ts == "" || hash == "" {
		return false
	}

	manifest := buildManifest(dataID, xRequestID, ts)
	expected := signManifest(manifest, v.secret)

	return hmac.Equal([]byte(hash), []byte(expected))
}

func parseSignatureHeader(header string) (ts, hash string) {
	if m := tsPattern.FindStringSubmatch(header); len(m) > 1 {
		ts = strings.TrimSpace(m[1])
	}
	if m := v1Pattern.FindStringSubmatch(header); len(m) > 1 {
		hash = strings.TrimSpace(m[1])
	}
	return ts, hash
}

// buildManifest assembles the signed string. Empty parts are skipped,
// matching how Mercado Pago signs notifications without a request id.
func buildManifest(dataID, requestID, ts string) string {
	var parts []string
	if dataID != "" {
		parts = append(parts, "id:"+dataID)
	}
	if requestID != "" {
		parts = append(parts, "request-id:"+requestID)
	}
	if ts != "" {
		parts = append(parts, "ts:"+ts)
	}
	return strings.Join(parts, ";") + ";"
}

func signManifest(manifest, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}
