package dvbtext

import "testing"

func TestDecode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"default table ascii", []byte("BBC ONE"), "BBC ONE"},
		{"empty", nil, ""},
		{"6937 acute composes", []byte{'C', 'a', 'f', 0xC2, 'e'}, "Café"},
		{"6937 caron", []byte{0xCF, 'S', 'a'}, "Ša"},
		{"6937 spacing symbols", []byte{0xA3, '5', ' ', 0xD3}, "£5 ©"},
		{"6937 dangling prefix", []byte{'a', 0xC8}, "a�"},
		{"latin cyrillic", []byte{0x01, 0xB0, 0xB1}, "АБ"},
		{"latin via 0x10 selector", []byte{0x10, 0x00, 0x02, 0xA1}, "Ą"},
		{"utf-16be", []byte{0x11, 0x00, 'A', 0x00, 0xE9}, "Aé"},
		{"utf-8", append([]byte{0x15}, "Ünïcode"...), "Ünïcode"},
		{"euc-kr", []byte{0x12, 0xC7, 0xD1}, "한"},
		{"emphasis stripped", []byte("News\x86Flash\x87"), "NewsFlash"},
		{"cr/lf control", []byte("one\x8Atwo"), "one\ntwo"},
		{"utf-16 cr/lf control", []byte{0x11, 0x00, 'a', 0xE0, 0x8A, 0x00, 'b'}, "a\nb"},
		{"selector only", []byte{0x15}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Decode(tt.in); got != tt.want {
				t.Errorf("Decode(% X) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     []byte
		name   string
		offset int
		ok     bool
	}{
		{[]byte("abc"), ISO6937, 0, true},
		{[]byte{0x01}, "ISO-8859-5", 1, true},
		{[]byte{0x07}, "ISO-8859-11", 1, true},
		{[]byte{0x0B}, "ISO-8859-15", 1, true},
		{[]byte{0x10, 0x00, 0x09}, "ISO-8859-9", 3, true},
		{[]byte{0x10, 0x00, 0x0C}, ISO6937, 3, false},
		{[]byte{0x10, 0x00}, ISO6937, 2, false},
		{[]byte{0x13}, GBK, 1, true},
		{[]byte{0x14}, Big5, 1, true},
		{[]byte{0x0C}, ISO6937, 1, false},
		{[]byte{0x1F, 0x01}, ISO6937, 2, false},
	}
	for _, tt := range tests {
		name, offset, ok := Detect(tt.in)
		if name != tt.name || offset != tt.offset || ok != tt.ok {
			t.Errorf("Detect(% X) = (%q, %d, %v), want (%q, %d, %v)",
				tt.in, name, offset, ok, tt.name, tt.offset, tt.ok)
		}
	}
}

func TestConverterKeepsDecoderPerEncoding(t *testing.T) {
	t.Parallel()
	var c Converter
	if got := c.Decode([]byte{0x01, 0xB0}); got != "А" {
		t.Fatalf("Decode = %q", got)
	}
	if c.Encoding() != "ISO-8859-5" {
		t.Fatalf("Encoding() = %q, want ISO-8859-5", c.Encoding())
	}
	c.Decode([]byte{0x01, 0xB1})
	if c.Encoding() != "ISO-8859-5" {
		t.Fatalf("Encoding() = %q after same-table field", c.Encoding())
	}
	if got := c.Decode([]byte("plain")); got != "plain" {
		t.Fatalf("Decode = %q, want plain", got)
	}
	if c.Encoding() != ISO6937 {
		t.Fatalf("Encoding() = %q, want %q", c.Encoding(), ISO6937)
	}
	c.Reset()
	if c.Encoding() != "" {
		t.Fatal("Reset should drop the decoder")
	}
}
