package source

import (
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// CodePageUTF8 marks input that needs no transcoding.
const CodePageUTF8 = 65001

// Encoding returns the text encoding of a Windows code page, or nil for
// UTF-8.
func Encoding(codePage int) (encoding.Encoding, error) {
	switch codePage {
	case 0, CodePageUTF8:
		return nil, nil
	case 1250:
		return charmap.Windows1250, nil
	case 1251:
		return charmap.Windows1251, nil
	case 1252:
		return charmap.Windows1252, nil
	case 1253:
		return charmap.Windows1253, nil
	case 1257:
		return charmap.Windows1257, nil
	case 437:
		return charmap.CodePage437, nil
	case 850:
		return charmap.CodePage850, nil
	}
	return nil, fmt.Errorf("unsupported code page %d", codePage)
}

// DecodingReader returns r transcoded from codePage to UTF-8.
func DecodingReader(r io.Reader, codePage int) (io.Reader, error) {
	enc, err := Encoding(codePage)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return r, nil
	}
	return enc.NewDecoder().Reader(r), nil
}
