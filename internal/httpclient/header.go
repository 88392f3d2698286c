package httpclient

import (
	"maps"
	"strings"
)

// Header maps field names to values. Names are unique ignoring case; the
// case of the first Set is preserved.
type Header map[string]string

// NormalizeKey upper-cases the first letter of key and every letter that
// follows a non-letter, and lower-cases the rest: "content-length" becomes
// "Content-Length".
func NormalizeKey(key string) string {
	b := []byte(key)
	upper := true
	for i, c := range b {
		letter := 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
		if letter {
			if upper && 'a' <= c && c <= 'z' {
				b[i] = c - ('a' - 'A')
			} else if !upper && 'A' <= c && c <= 'Z' {
				b[i] = c + ('a' - 'A')
			}
		}
		upper = !letter
	}
	return string(b)
}

// Lookup returns the value for key, matching case-insensitively when there
// is no exact match.
func (h Header) Lookup(key string) (string, bool) {
	if v, ok := h[key]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func (h Header) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

func (h Header) Has(key string) bool {
	_, ok := h.Lookup(key)
	return ok
}

// Set replaces every case variant of key with key: value.
func (h Header) Set(key, value string) {
	h.Del(key)
	h[key] = value
}

func (h Header) Del(key string) {
	for k := range h {
		if strings.EqualFold(k, key) {
			delete(h, k)
		}
	}
}

func (h Header) Clone() Header {
	if h == nil {
		return Header{}
	}
	return maps.Clone(h)
}

// add records a received field. Repeated names are joined with a comma.
func (h Header) add(key, value string) {
	key = NormalizeKey(key)
	if prev, ok := h[key]; ok {
		h[key] = prev + "," + value
		return
	}
	h[key] = value
}

// hasToken reports whether the comma-separated value of key contains token.
func (h Header) hasToken(key, token string) bool {
	for part := range strings.SplitSeq(h.Get(key), ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
