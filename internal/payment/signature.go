package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadSignature     = errors.New("webhook signature mismatch")
	ErrStaleSignature   = errors.New("webhook signature timestamp outside tolerance")
	ErrMissingSignature = errors.New("webhook signature missing")
)

// VerifyStripeSignature checks a Stripe-Signature header
// ("t=<unix>,v1=<hex hmac>") against the raw payload. The HMAC-SHA256 is
// computed over "<timestamp>.<payload>".
func VerifyStripeSignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrMissingSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	if d := now.Sub(time.Unix(unix, 0)); d > tolerance || d < -tolerance {
		return ErrStaleSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", ts, payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrBadSignature
}

// SignStripePayload produces a Stripe-Signature header for a payload. Used by
// tests and the sandbox tooling.
func SignStripePayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", ts, payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// VerifyPaystackSignature checks the x-paystack-signature header, an
// HMAC-SHA512 of the raw body keyed with the secret key.
func VerifyPaystackSignature(payload []byte, header, secret string) error {
	if header == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(header)) {
		return ErrBadSignature
	}
	return nil
}

// VerifySharedSecret compares a webhook token header in constant time.
func VerifySharedSecret(header, secret string) error {
	if header == "" {
		return ErrMissingSignature
	}
	if !hmac.Equal([]byte(header), []byte(secret)) {
		return ErrBadSignature
	}
	return nil
}
