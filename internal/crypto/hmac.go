package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// HMACAuth holds the credentials for HMAC-SHA256 signed exchange requests.
type HMACAuth struct {
	Key    string // API key
	Secret string // API secret
}

// SignParams adds apiKey and timestamp to params, signs the sorted
// key=value&... payload and stores the hex signature under "signature".
// The returned map is a copy; params is not modified.
func (h *HMACAuth) SignParams(params map[string]string) map[string]string {
	return h.SignParamsAt(params, time.Now().UnixMilli())
}

// SignParamsAt is like SignParams but lets the caller supply the millisecond
// timestamp (useful for deterministic testing).
func (h *HMACAuth) SignParamsAt(params map[string]string, unixMillis int64) map[string]string {
	out := make(map[string]string, len(params)+3)
	for k, v := range params {
		out[k] = v
	}
	out["apiKey"] = h.Key
	out["timestamp"] = strconv.FormatInt(unixMillis, 10)
	out["signature"] = h.Sign(CanonicalQuery(out))
	return out
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func (h *HMACAuth) Sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// CanonicalQuery joins params as key=value pairs sorted by key, skipping
// any existing signature.
func CanonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
