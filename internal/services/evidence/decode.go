package evidence

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

// decodeBytes turns raw filing bytes into a string, trying a chain of
// charsets. Disclosure archives mix UTF-8 HTML, UTF-16 CSV exports and
// legacy Shift_JIS text files, so no single decoder works.
func decodeBytes(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	// BOM-based UTF-16 payloads are common in filing CSV/text files.
	if bytes.HasPrefix(raw, []byte{0xff, 0xfe}) || bytes.HasPrefix(raw, []byte{0xfe, 0xff}) {
		if out, ok := decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), raw); ok {
			return out
		}
	}

	// Many NUL bytes usually indicate UTF-16 without BOM.
	if bytes.Count(raw, []byte{0}) > len(raw)/8 {
		for _, enc := range []encoding.Encoding{
			unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
			unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
		} {
			if out, ok := decodeWith(enc, raw); ok && !strings.ContainsRune(out, 0) {
				return out
			}
		}
	}

	if utf8.Valid(raw) {
		return string(stripUTF8BOM(raw))
	}

	for _, enc := range []encoding.Encoding{japanese.ShiftJIS, japanese.EUCJP} {
		if out, ok := decodeWith(enc, raw); ok {
			return out
		}
	}

	// Last resort: lossy UTF-8.
	return strings.ToValidUTF8(string(raw), "")
}

// decodeWith reports success only when the decode produced no
// replacement characters, so the caller can fall through the chain.
func decodeWith(enc encoding.Encoding, raw []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}

func stripUTF8BOM(raw []byte) []byte {
	return bytes.TrimPrefix(raw, []byte{0xef, 0xbb, 0xbf})
}
