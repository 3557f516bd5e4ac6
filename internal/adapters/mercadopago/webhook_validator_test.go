package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signedHeader(t *testing.T, secret, manifest, ts string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	return "ts=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	secret := "whsec_test"
	header := signedHeader(t, secret, "id:12345;request-id:req-abc;ts:1704908010;", "1704908010")

	v := NewWebhookValidator(secret)
	if !v.Verify(header, "req-abc", "12345") {
		t.Fatal("valid signature rejected")
	}
}

func TestVerifySkipsEmptyManifestParts(t *testing.T) {
	secret := "whsec_test"
	// No request id in the manifest when the header was absent.
	header := signedHeader(t, secret, "id:12345;ts:1704908010;", "1704908010")

	v := NewWebhookValidator(secret)
	if !v.Verify(header, "", "12345") {
		t.Fatal("signature without request id rejected")
	}
}

func TestVerifyRejectsTamperedDataID(t *testing.T) {
	secret := "whsec_test"
	header := signedHeader(t, secret, "id:12345;request-id:req-abc;ts:1704908010;", "1704908010")

	v := NewWebhookValidator(secret)
	if v.Verify(header, "req-abc", "99999") {
		t.Fatal("tampered data id accepted")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	header := signedHeader(t, "whsec_other", "id:12345;request-id:req-abc;ts:1704908010;", "1704908010")

	v := NewWebhookValidator("whsec_test")
	if v.Verify(header, "req-abc", "12345") {
		t.Fatal("signature from another secret accepted")
	}
}

func TestVerifyRejectsMissingPieces(t *testing.T) {
	v := NewWebhookValidator("whsec_test")

	if v.Verify("", "req-abc", "12345") {
		t.Error("empty header accepted")
	}
	if v.Verify("ts=123", "req-abc", "12345") {
		t.Error("header without v1 accepted")
	}
	if v.Verify("v1=deadbeef", "req-abc", "12345") {
		t.Error("header without ts accepted")
	}
	if NewWebhookValidator("").Verify("ts=1,v1=deadbeef", "req-abc", "12345") {
		t.Error("empty secret accepted")
	}
}
