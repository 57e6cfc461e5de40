package source

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"ais_parser/internal/ais"
)

// XMLReader streams <aismessage> records. Input is expected to be UTF-8
// already; a declared legacy encoding is accepted as is.
type XMLReader struct {
	dec     *xml.Decoder
	current ais.RawRecord
	text    strings.Builder
}

// NewXMLReader returns a reader over r.
func NewXMLReader(r io.Reader) *XMLReader {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = func(_ string, in io.Reader) (io.Reader, error) { return in, nil }
	return &XMLReader{dec: dec, current: ais.NewRawRecord()}
}

// Next returns the record closed by the next </aismessage>.
func (x *XMLReader) Next() (ais.RawRecord, error) {
	for {
		tok, err := x.dec.Token()
		if errors.Is(err, io.EOF) {
			return ais.RawRecord{}, io.EOF
		}
		if err != nil {
			return ais.RawRecord{}, fileErrorf("read xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			x.text.Reset()
		case xml.CharData:
			x.text.Write(t)
		case xml.EndElement:
			name := t.Name.Local
			if name == ais.XMLRecordElement {
				rec := x.current
				x.current = ais.NewRawRecord()
				x.text.Reset()
				return rec, nil
			}
			if col, ok := ais.ColumnForXML(name); ok && x.text.Len() > 0 {
				x.current.Fields[col] = x.text.String()
			}
			x.text.Reset()
		}
	}
}
