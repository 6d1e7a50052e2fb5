package payments

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidHash = errors.New("paynow hash mismatch")

// Field is one key/value pair of a form body, in wire order.
type Field struct {
	Key   string
	Value string
}

// Hash is the upper-case hex SHA512 of the values concatenated with the integration key.
func Hash(values []string, integrationKey string) string {
	h := sha512.New()
	for _, v := range values {
		h.Write([]byte(v))
	}
	h.Write([]byte(integrationKey))
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// ParseFields decodes a form body keeping field order, which the hash depends on.
func ParseFields(body string) ([]Field, error) {
	var out []Field
	for _, pair := range strings.Split(strings.TrimSpace(body), "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("bad form key %q: %w", k, err)
		}
		value, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("bad form value for %q: %w", key, err)
		}
		out = append(out, Field{Key: key, Value: value})
	}
	return out, nil
}

// VerifyFields checks the "hash" field against every other value in order.
// A body without a hash field fails.
func VerifyFields(fields []Field, integrationKey string) error {
	var values []string
	var got string
	for _, f := range fields {
		if strings.EqualFold(f.Key, "hash") {
			got = f.Value
			continue
		}
		values = append(values, f.Value)
	}
	if got == "" {
		return fmt.Errorf("%w: no hash present", ErrInvalidHash)
	}
	want := Hash(values, integrationKey)
	if subtle.ConstantTimeCompare([]byte(strings.ToUpper(got)), []byte(want)) != 1 {
		return ErrInvalidHash
	}
	return nil
}

func lookup(fields []Field, key string) string {
	for _, f := range fields {
		if strings.EqualFold(f.Key, key) {
			return f.Value
		}
	}
	return ""
}
