// Package scanner peeks at JSON payloads without decoding them.
package scanner

// ScanStringField returns the string value following key. The key must
// include its quotes, e.g. []byte(`"type"`). Escaped quotes are not handled;
// it is meant for short discriminator fields.
func ScanStringField(payload []byte, key []byte) ([]byte, bool) {
	idx := IndexOf(payload, key)
	if idx < 0 {
		return nil, false
	}
	i := idx + len(key)
	for i < len(payload) && IsSpace(payload[i]) {
		i++
	}
	if i >= len(payload) || payload[i] != ':' {
		return nil, false
	}
	i++
	for i < len(payload) && IsSpace(payload[i]) {
		i++
	}
	if i >= len(payload) || payload[i] != '"' {
		return nil, false
	}
	i++
	start := i
	for i < len(payload) && payload[i] != '"' {
		i++
	}
	if i >= len(payload) {
		return nil, false
	}
	return payload[start:i], true
}

// HasField reports whether key appears in the payload.
func HasField(payload []byte, key []byte) bool {
	return IndexOf(payload, key) >= 0
}

// FirstNonSpace returns the first byte that is not JSON whitespace, or 0.
func FirstNonSpace(payload []byte) byte {
	for _, b := range payload {
		if !IsSpace(b) {
			return b
		}
	}
	return 0
}

func IndexOf(payload []byte, key []byte) int {
	if len(key) == 0 || len(payload) < len(key) {
		return -1
	}
outer:
	for i := 0; i <= len(payload)-len(key); i++ {
		for j := 0; j < len(key); j++ {
			if payload[i+j] != key[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func IsSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
