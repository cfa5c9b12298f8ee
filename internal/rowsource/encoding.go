package rowsource

// encoding.go normalizes source bytes to UTF-8 before CSV parsing.
//
// Competitor exports arrive in whatever encoding the legacy system wrote:
// UTF-8 with or without BOM, UTF-16 from Excel "Unicode Text" saves, and
// Latin-1 from older NAVEX installs. Everything funnels through x/text
// decoders so the CSV reader only ever sees valid UTF-8.

import (
	"bufio"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// sniffLen is how many bytes are inspected to guess the encoding. Enough to
// cover the header row of any realistic export.
const sniffLen = 1024

// decodeToUTF8 wraps r so that reads yield valid UTF-8 regardless of the
// source encoding. BOMs always win; without one the first chunk is sniffed.
func decodeToUTF8(r io.Reader) io.Reader {
	br := bufio.NewReaderSize(r, 4096)
	sample, _ := br.Peek(sniffLen)
	fallback := sniffEncoding(sample)
	return transform.NewReader(br, unicode.BOMOverride(fallback.NewDecoder()))
}

// sniffEncoding guesses the encoding of BOM-less content.
func sniffEncoding(sample []byte) encoding.Encoding {
	if len(sample) == 0 {
		return unicode.UTF8
	}

	// UTF-16 text is full of NUL bytes; their position gives the byte order.
	// ASCII-heavy content encoded LE puts the NUL in the odd position.
	var nuls, oddNuls int
	for i, b := range sample {
		if b == 0 {
			nuls++
			if i%2 == 1 {
				oddNuls++
			}
		}
	}
	if nuls > len(sample)/4 {
		if oddNuls*2 >= nuls {
			return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
		}
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}

	if utf8.Valid(trimPartialRune(sample)) {
		// The UTF-8 decoder still scrubs any ill-formed sequences past the
		// sniff window, replacing them with U+FFFD instead of failing.
		return unicode.UTF8
	}
	return charmap.ISO8859_1
}

// trimPartialRune drops an incomplete multi-byte sequence at the end of the
// sniff window so it does not count against UTF-8 validity.
func trimPartialRune(sample []byte) []byte {
	for i := len(sample) - 1; i >= 0 && i >= len(sample)-utf8.UTFMax; i-- {
		if utf8.RuneStart(sample[i]) {
			if utf8.FullRune(sample[i:]) {
				return sample
			}
			return sample[:i]
		}
	}
	return sample
}
