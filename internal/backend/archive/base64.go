package archive

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeBase64 decodes an image payload. A data URI prefix ("data:image/jpeg;base64,")
// and embedded whitespace are tolerated, as is missing padding.
func DecodeBase64(payload string) ([]byte, error) {
	s := strings.TrimSpace(payload)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrDecode, lastErr)
}
