package eddystone

import (
	"fmt"
	"strings"
)

// MaxURLBody is the number of encoded URL bytes that fit after the scheme byte.
const MaxURLBody = MaxFrameLen - 2

var urlSchemes = []string{
	"http://www.",
	"https://www.",
	"http://",
	"https://",
}

// expansion codes 0x00..0x0D; longer entries come first within each group so the
// encoder prefers ".com/" over ".com".
var urlExpansions = []string{
	".com/", ".org/", ".edu/", ".net/", ".info/", ".biz/", ".gov/",
	".com", ".org", ".edu", ".net", ".info", ".biz", ".gov",
}

// EncodeURL builds a URL frame (frame type, scheme, encoded body) from a URL string.
func EncodeURL(url string) ([]byte, error) {
	scheme := -1
	// "https://www." must win over "https://", so scan longest first.
	for _, i := range []int{1, 0, 3, 2} {
		if strings.HasPrefix(url, urlSchemes[i]) {
			scheme = i
			break
		}
	}
	if scheme < 0 {
		return nil, fmt.Errorf("unsupported url scheme in %q", url)
	}

	body := make([]byte, 0, MaxURLBody)
	rest := url[len(urlSchemes[scheme]):]
	for len(rest) > 0 {
		matched := false
		for code, exp := range urlExpansions {
			if strings.HasPrefix(rest, exp) {
				body = append(body, byte(code))
				rest = rest[len(exp):]
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		c := rest[0]
		if c <= 0x20 || c >= 0x7F {
			return nil, fmt.Errorf("invalid character 0x%02X in url", c)
		}
		body = append(body, c)
		rest = rest[1:]
	}

	if len(body) > MaxURLBody {
		return nil, fmt.Errorf("encoded url is %d bytes, limit %d", len(body), MaxURLBody)
	}

	frame := make([]byte, 0, 2+len(body))
	frame = append(frame, byte(FrameURL), byte(scheme))
	return append(frame, body...), nil
}

// DecodeURL expands a URL frame back into a URL string.
func DecodeURL(frame []byte) (string, error) {
	if len(frame) < 2 || FrameType(frame[0]) != FrameURL {
		return "", fmt.Errorf("not a url frame")
	}
	if int(frame[1]) >= len(urlSchemes) {
		return "", fmt.Errorf("unknown url scheme 0x%02X", frame[1])
	}

	var b strings.Builder
	b.WriteString(urlSchemes[frame[1]])
	for _, c := range frame[2:] {
		if int(c) < len(urlExpansions) {
			b.WriteString(urlExpansions[c])
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}
