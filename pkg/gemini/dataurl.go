package gemini

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrDataURL reports a value that is not a base64 data URL.
var ErrDataURL = errors.New("gemini: invalid data url")

// DecodeDataURL splits "data:<mime>;base64,<payload>" into its media type
// and decoded bytes. Only base64 payloads are accepted.
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return "", nil, ErrDataURL
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrDataURL
	}

	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok || mediaType == "" || strings.Contains(mediaType, ",") {
		return "", nil, ErrDataURL
	}
	// Drop parameters such as ";charset=..." from the media type.
	mediaType, _, _ = strings.Cut(mediaType, ";")

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some clients strip the padding.
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, ErrDataURL
		}
	}
	if len(data) == 0 {
		return "", nil, ErrDataURL
	}
	return strings.ToLower(mediaType), data, nil
}
