package resend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance bounds the age of a signed delivery.
const SignatureTolerance = 5 * time.Minute

// VerifySignature checks Resend's Svix-style signature: base64 HMAC-SHA256 over
// "<svix-id>.<svix-timestamp>.<body>" keyed with the decoded "whsec_" secret. The
// signature header may carry several space-separated "v1,<sig>" entries.
func VerifySignature(payload []byte, msgID, timestamp, signatureHeader, webhookSecret string, now time.Time) bool {
	msgID = strings.TrimSpace(msgID)
	timestamp = strings.TrimSpace(timestamp)
	header := strings.TrimSpace(signatureHeader)
	if msgID == "" || timestamp == "" || header == "" {
		return false
	}

	key, ok := decodeSecret(webhookSecret)
	if !ok {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	sent := time.Unix(ts, 0)
	if now.Sub(sent) > SignatureTolerance || sent.Sub(now) > SignatureTolerance {
		return false
	}

	expected := sign(key, msgID, timestamp, payload)
	for _, part := range strings.Fields(header) {
		version, sig, found := strings.Cut(part, ",")
		if !found || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}

func sign(key []byte, msgID, timestamp string, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

func decodeSecret(secret string) ([]byte, bool) {
	s := strings.TrimSpace(secret)
	if s == "" {
		return nil, false
	}
	s = strings.TrimPrefix(s, "whsec_")
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return key, true
}
