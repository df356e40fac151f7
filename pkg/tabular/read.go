// Package tabular reads delimited exports into raw rows and writes the
// baseline and findings reports of a review as CSV.
package tabular

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/agentstation/accessreview/pkg/errors"
	"github.com/agentstation/accessreview/pkg/normalize"
)

// Encodings reported by Decode.
const (
	EncodingUTF8    = "utf-8"
	EncodingUTF8BOM = "utf-8-bom"
	EncodingUTF16LE = "utf-16le"
	EncodingUTF16BE = "utf-16be"
	EncodingLatin1  = "latin-1"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts data to UTF-8. A byte order mark selects UTF-8 or
// UTF-16; data without one that is not valid UTF-8 is read as Latin-1.
func Decode(data []byte) ([]byte, string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], EncodingUTF8BOM, nil
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		name := EncodingUTF16BE
		if bytes.HasPrefix(data, bomUTF16LE) {
			name = EncodingUTF16LE
		}
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return nil, name, err
		}
		return out, name, nil
	case utf8.Valid(data):
		return data, EncodingUTF8, nil
	default:
		out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
		if err != nil {
			return nil, EncodingLatin1, err
		}
		return out, EncodingLatin1, nil
	}
}

// Table is a decoded delimited file.
type Table struct {
	Headers  []string
	Rows     []normalize.Row
	Encoding string
}

// Read parses CSV from r. Header cells are trimmed; short rows are padded
// with empty cells and cells beyond the header are dropped. When a header
// repeats, the first column wins.
func Read(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	decoded, enc, err := Decode(data)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(bytes.NewReader(decoded))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, errors.NewParseError("csv", "", "empty file: no header row", nil)
	}
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	t := &Table{Headers: headers, Encoding: enc}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if blank(rec) {
			continue
		}
		row := make(normalize.Row, len(headers))
		for i, h := range headers {
			if _, dup := row[h]; dup {
				continue
			}
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadFile reads the CSV file at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapIO("open", path, err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		var pe *errors.ParseError
		if errors.As(err, &pe) {
			pe.File = path
			return nil, pe
		}
		return nil, errors.WrapParse("csv", path, err)
	}
	return t, nil
}

// FileReader reads tables from the filesystem.
type FileReader struct{}

// ReadFile implements config.TableReader.
func (FileReader) ReadFile(path string) ([]string, []normalize.Row, error) {
	t, err := ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return t.Headers, t.Rows, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
