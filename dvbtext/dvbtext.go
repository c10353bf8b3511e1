// Package dvbtext decodes DVB SI text fields (ETSI EN 300 468 Annex A) to
// UTF-8.
//
// The first byte of a field selects the character table when it is below
// 0x20; otherwise the field uses the default table, ISO/IEC 6937.
package dvbtext

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Encoding names returned by Detect.
const (
	ISO6937  = "ISO6937"
	UTF16BE  = "UTF-16BE"
	EUCKR    = "EUC-KR"
	GBK      = "GBK"
	Big5     = "BIG5"
	UTF8     = "UTF-8"
	isoLatin = "ISO-8859-"
)

var iso8859 = map[int]*charmap.Charmap{
	1:  charmap.ISO8859_1,
	2:  charmap.ISO8859_2,
	3:  charmap.ISO8859_3,
	4:  charmap.ISO8859_4,
	5:  charmap.ISO8859_5,
	6:  charmap.ISO8859_6,
	7:  charmap.ISO8859_7,
	8:  charmap.ISO8859_8,
	9:  charmap.ISO8859_9,
	10: charmap.ISO8859_10,
	11: charmap.Windows874,
	13: charmap.ISO8859_13,
	14: charmap.ISO8859_14,
	15: charmap.ISO8859_15,
	16: charmap.ISO8859_16,
}

// Detect reads the character table selector at the start of b. It returns
// the encoding name and the offset of the first text byte. ok is false for
// reserved or unsupported selectors, in which case the default table is
// reported.
func Detect(b []byte) (name string, offset int, ok bool) {
	if len(b) == 0 || b[0] >= 0x20 {
		return ISO6937, 0, true
	}
	switch sel := b[0]; {
	case sel >= 0x01 && sel <= 0x0B:
		return fmt.Sprintf("%s%d", isoLatin, int(sel)+4), 1, true
	case sel == 0x10:
		if len(b) < 3 {
			return ISO6937, len(b), false
		}
		n := int(b[1])<<8 | int(b[2])
		if _, known := iso8859[n]; !known {
			return ISO6937, 3, false
		}
		return fmt.Sprintf("%s%d", isoLatin, n), 3, true
	case sel == 0x11:
		return UTF16BE, 1, true
	case sel == 0x12:
		return EUCKR, 1, true
	case sel == 0x13:
		return GBK, 1, true
	case sel == 0x14:
		return Big5, 1, true
	case sel == 0x15:
		return UTF8, 1, true
	case sel == 0x1F:
		// encoding_type_id, registered externally.
		return ISO6937, min(2, len(b)), false
	default:
		return ISO6937, 1, false
	}
}

func newTransformer(name string) (transform.Transformer, error) {
	switch name {
	case ISO6937:
		return transform.Chain(iso6937Decoder{}, norm.NFC), nil
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder(), nil
	case EUCKR:
		return korean.EUCKR.NewDecoder(), nil
	case GBK:
		return simplifiedchinese.GBK.NewDecoder(), nil
	case Big5:
		return traditionalchinese.Big5.NewDecoder(), nil
	case UTF8:
		return unicode.UTF8.NewDecoder(), nil
	}
	if rest, found := strings.CutPrefix(name, isoLatin); found {
		if n, err := strconv.Atoi(rest); err == nil {
			if cm, ok := iso8859[n]; ok {
				return cm.NewDecoder(), nil
			}
		}
	}
	return nil, fmt.Errorf("dvbtext: unsupported encoding %q", name)
}

// Converter decodes DVB strings, keeping the last used decoder around
// until a field in another encoding shows up. It is not safe for
// concurrent use.
type Converter struct {
	name string
	t    transform.Transformer
}

// Encoding returns the encoding of the decoder currently held.
func (c *Converter) Encoding() string { return c.name }

// Reset drops the decoder held.
func (c *Converter) Reset() {
	c.name = ""
	c.t = nil
}

// Decode converts the DVB string b to UTF-8. Bytes that cannot be mapped
// are replaced with U+FFFD.
func (c *Converter) Decode(b []byte) string {
	name, offset, _ := Detect(b)
	text := b[offset:]
	if len(text) == 0 {
		return ""
	}
	if c.t == nil || c.name != name {
		t, err := newTransformer(name)
		if err != nil {
			return stripControls(strings.ToValidUTF8(string(text), "\uFFFD"))
		}
		c.name, c.t = name, t
	}
	out, _, err := transform.Bytes(c.t, text)
	if err != nil {
		return stripControls(strings.ToValidUTF8(string(text), "\uFFFD"))
	}
	return stripControls(string(out))
}

// Decode converts b with a one-shot Converter.
func Decode(b []byte) string {
	var c Converter
	return c.Decode(b)
}

// stripControls resolves the DVB control codes: emphasis on and off are
// dropped, CR/LF becomes a newline and the other codes of the C1 range
// (or their private use equivalents in two-byte tables) are removed.
func stripControls(s string) string {
	if !strings.ContainsFunc(s, isControl) {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == 0x8A || r == 0xE08A:
			sb.WriteByte('\n')
		case isControl(r):
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func isControl(r rune) bool {
	return (r >= 0x80 && r <= 0x9F) || (r >= 0xE080 && r <= 0xE09F)
}
