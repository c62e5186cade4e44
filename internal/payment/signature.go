package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader is the header the gateway signs the raw body into.
const SignatureHeader = "Gateway-Signature"

// DefaultTolerance bounds how stale a signed timestamp may be before the
// delivery is treated as a replay.
const DefaultTolerance = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("payment: signature mismatch")
	ErrMalformedHeader  = errors.New("payment: malformed signature header")
	ErrStaleTimestamp   = errors.New("payment: signed timestamp outside tolerance")
)

// Sign computes the signature header value for payload: "t=<unix>,v1=<hex>"
// where v1 = HMAC-SHA256(secret, "<unix>.<payload>").
func Sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, computeMAC(payload, secret, ts))
}

// VerifySignature is the sole trust boundary on the webhook path: nothing
// downstream may act on a payload that did not pass it.
func VerifySignature(payload []byte, header, secret string) error {
	return VerifySignatureWithTolerance(payload, header, secret, DefaultTolerance)
}

func VerifySignatureWithTolerance(payload []byte, header, secret string, tolerance time.Duration) error {
	ts, mac, err := parseHeader(header)
	if err != nil {
		return err
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMalformedHeader
	}
	if tolerance > 0 {
		age := time.Since(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return ErrStaleTimestamp
		}
	}

	expected := computeMAC(payload, secret, ts)
	if !hmac.Equal([]byte(expected), []byte(mac)) {
		return ErrInvalidSignature
	}
	return nil
}

func parseHeader(header string) (ts, mac string, err error) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return "", "", ErrMalformedHeader
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			mac = v
		}
	}
	if ts == "" || mac == "" {
		return "", "", ErrMalformedHeader
	}
	return ts, mac, nil
}

func computeMAC(payload []byte, secret, ts string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
