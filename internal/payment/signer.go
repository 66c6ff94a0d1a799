package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// SecureHashField carries the detached signature and is never part of the signing input.
const SecureHashField = "vnp_SecureHash"

// Params is one protocol message: string keys to string values.
type Params map[string]string

// ParamsFromValues flattens a query string, keeping the first value of each key.
func ParamsFromValues(values url.Values) Params {
	params := make(Params, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			params[key] = ""
			continue
		}
		params[key] = vals[0]
	}
	return params
}

// Clone returns an independent copy of the parameter set.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Without returns a copy with the given keys removed.
func (p Params) Without(keys ...string) Params {
	out := p.Clone()
	for _, key := range keys {
		delete(out, key)
	}
	return out
}

// Encode serialises the set as a URL query string, keys sorted.
func (p Params) Encode() string {
	values := make(url.Values, len(p))
	for k, v := range p {
		values.Set(k, v)
	}
	return values.Encode()
}

// CanonicalString is the exact text the secure hash is computed over:
// keys except the signature field, sorted by byte order, joined as key=value with '&'.
func CanonicalString(params Params) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == SecureHashField {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(params[key])
	}
	return b.String()
}

// Sign computes the lowercase hex HMAC-SHA512 of the canonical string keyed by secret.
func Sign(params Params, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(CanonicalString(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over params and compares it to received,
// ignoring hex case. Malformed input verifies as false.
func Verify(params Params, received, secret string) bool {
	if secret == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(received)))
	if err != nil || len(provided) != sha512.Size {
		return false
	}
	expected, err := hex.DecodeString(Sign(params, secret))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, provided)
}
