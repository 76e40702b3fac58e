package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

const (
	tokenLength  = 32
	tokenCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// Sign computes the payload signature for a webhook POST: the HMAC-SHA256
// of timestamp followed by token, keyed with the endpoint's API key and
// encoded as lowercase hex.
func Sign(apiKey, timestamp, token string) string {
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the expected signature for the
// given timestamp and token. Receivers use the same check to authenticate
// deliveries. The comparison is constant-time.
func Verify(apiKey, timestamp, token, signature string) bool {
	expected := Sign(apiKey, timestamp, token)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// NewToken returns a fresh 32-character alphanumeric token drawn from
// crypto/rand.
func NewToken() (string, error) {
	max := big.NewInt(int64(len(tokenCharset)))
	b := make([]byte, tokenLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating token: %w", err)
		}
		b[i] = tokenCharset[n.Int64()]
	}
	return string(b), nil
}

// Timestamp returns the current Unix time in seconds as a decimal string.
func Timestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}
