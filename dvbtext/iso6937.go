package dvbtext

import (
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// iso6937Upper maps bytes 0xA0-0xFF of ISO/IEC 6937 that are not
// diacritical prefixes. Zero entries are undefined.
var iso6937Upper = [96]rune{
	// 0xA0
	0x00A0, 0x00A1, 0x00A2, 0x00A3, 0x0024, 0x00A5, 0x0023, 0x00A7,
	0x00A4, 0x2018, 0x201C, 0x00AB, 0x2190, 0x2191, 0x2192, 0x2193,
	// 0xB0
	0x00B0, 0x00B1, 0x00B2, 0x00B3, 0x00D7, 0x00B5, 0x00B6, 0x00B7,
	0x00F7, 0x2019, 0x201D, 0x00BB, 0x00BC, 0x00BD, 0x00BE, 0x00BF,
	// 0xC0: diacritics, handled by iso6937Marks
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	// 0xD0
	0x2015, 0x00B9, 0x00AE, 0x00A9, 0x2122, 0x266A, 0x00AC, 0x00A6,
	0, 0, 0, 0, 0x215B, 0x215C, 0x215D, 0x215E,
	// 0xE0
	0x2126, 0x00C6, 0x0110, 0x00AA, 0x0126, 0, 0x0132, 0x013F,
	0x0141, 0x00D8, 0x0152, 0x00BA, 0x00DE, 0x0166, 0x014A, 0x0149,
	// 0xF0
	0x0138, 0x00E6, 0x0111, 0x00F0, 0x0127, 0x0131, 0x0133, 0x0140,
	0x0142, 0x00F8, 0x0153, 0x00DF, 0x00FE, 0x0167, 0x014B, 0x00AD,
}

// iso6937Marks maps the non-spacing prefixes 0xC1-0xCF to combining marks.
var iso6937Marks = [16]rune{
	0,      // 0xC0
	0x0300, // grave
	0x0301, // acute
	0x0302, // circumflex
	0x0303, // tilde
	0x0304, // macron
	0x0306, // breve
	0x0307, // dot above
	0x0308, // diaeresis
	0x0308, // umlaut
	0x030A, // ring
	0x0327, // cedilla
	0,      // 0xCC
	0x030B, // double acute
	0x0328, // ogonek
	0x030C, // caron
}

// iso6937Decoder converts ISO/IEC 6937 to UTF-8. A diacritical prefix is
// emitted after its base letter as a combining mark; composition is left to
// a following normalization step.
type iso6937Decoder struct{ transform.NopResetter }

func (iso6937Decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		var base, mark rune
		size := 1
		switch {
		case c < 0x80:
			base = rune(c)
		case c < 0xA0:
			// C1 controls keep their code point, DVB control codes are
			// resolved afterwards.
			base = rune(c)
		case c >= 0xC0 && c <= 0xCF:
			if nSrc+1 >= len(src) {
				if !atEOF {
					return nDst, nSrc, transform.ErrShortSrc
				}
				base = utf8.RuneError
				break
			}
			mark = iso6937Marks[c-0xC0]
			next := src[nSrc+1]
			if mark == 0 || next < 0x20 || next >= 0x80 {
				// Dangling prefix: drop it, the next byte is decoded on
				// its own.
				nSrc++
				continue
			}
			base = rune(next)
			size = 2
		default:
			base = iso6937Upper[c-0xA0]
			if base == 0 {
				base = utf8.RuneError
			}
		}

		need := utf8.RuneLen(base)
		if mark != 0 {
			need += utf8.RuneLen(mark)
		}
		if nDst+need > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += utf8.EncodeRune(dst[nDst:], base)
		if mark != 0 {
			nDst += utf8.EncodeRune(dst[nDst:], mark)
		}
		nSrc += size
	}
	return nDst, nSrc, nil
}
