package textutil

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// fallbackEncoding pairs a decoder with the name reported to the caller.
type fallbackEncoding struct {
	name string
	enc  encoding.Encoding
}

// fallbackEncodings are tried in order when the input is not valid UTF-8.
var fallbackEncodings = []fallbackEncoding{
	{"euc-kr", korean.EUCKR},
	{"shift-jis", japanese.ShiftJIS},
	{"euc-jp", japanese.EUCJP},
	{"windows-1252", charmap.Windows1252},
}

// DecodeBytes converts raw file bytes to a UTF-8 string. UTF-8 (with or
// without BOM) and UTF-16 (by BOM) are recognized directly; otherwise common
// local codepages are attempted in a fixed order. The returned name
// identifies the encoding that was used.
func DecodeBytes(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "utf-8", nil
	}

	// UTF-16 by BOM.
	if len(data) >= 2 {
		if (data[0] == 0xFF && data[1] == 0xFE) || (data[0] == 0xFE && data[1] == 0xFF) {
			dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
			out, _, err := transform.Bytes(dec, data)
			if err == nil {
				return string(out), "utf-16", nil
			}
		}
	}

	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})), "utf-8", nil
	}

	for _, fb := range fallbackEncodings {
		out, _, err := transform.Bytes(fb.enc.NewDecoder(), data)
		if err != nil {
			continue
		}
		if utf8.Valid(out) {
			return string(out), fb.name, nil
		}
	}

	return "", "", fmt.Errorf("unable to decode input with any supported encoding")
}
