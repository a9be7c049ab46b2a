package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "X-Razorpay-Signature"

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks signature against the raw request body.
// The body must be the exact bytes received; re-encoded JSON will not match.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return equalHex(Sign(body, secret), signature)
}

// VerifyPaymentSignature checks the signature returned to the browser after
// a successful checkout: HMAC-SHA256("{order_id}|{payment_id}", key_secret).
func VerifyPaymentSignature(orderID, paymentID, signature, keySecret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || keySecret == "" {
		return false
	}
	return equalHex(Sign([]byte(orderID+"|"+paymentID), keySecret), signature)
}

func equalHex(expected, got string) bool {
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(got))))
}
