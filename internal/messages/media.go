package messages

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// decodeBase64 decodes a gateway media payload, tolerating data-URI
// prefixes and missing padding.
func decodeBase64(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	data, rawErr := base64.RawStdEncoding.DecodeString(s)
	if rawErr == nil {
		return data, nil
	}
	return nil, fmt.Errorf("decode media payload: %w", err)
}
