// Package adif reads Amateur Data Interchange Format (.adi) logs into records
// of named fields.
package adif

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Charset names the text encoding of an ADIF file
type Charset string

// Supported charsets. Most loggers write ISO-8859-15 (Latin-9).
const (
	ISO885915 Charset = "iso-8859-15"
	UTF8      Charset = "utf-8"
)

// ErrUnsupportedCharset is returned for charsets other than ISO-8859-15 and UTF-8
var ErrUnsupportedCharset = errors.New("unsupported charset")

// ParseCharset normalizes a configured charset name
func ParseCharset(name string) (Charset, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "", "iso-8859-15", "iso8859-15", "latin-9", "latin9":
		return ISO885915, nil
	case "utf-8", "utf8":
		return UTF8, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCharset, name)
	}
}

// Record is one contact (or the header) keyed by upper-case field name
type Record map[string]string

// Get returns the named field, or "" when it is missing. Names are
// case-insensitive.
func (r Record) Get(name string) string {
	return r[strings.ToUpper(name)]
}

// Call returns the worked station's callsign
func (r Record) Call() string { return strings.ToUpper(strings.TrimSpace(r.Get("CALL"))) }

// Band returns the band in upper case, e.g. "20M"
func (r Record) Band() string { return strings.ToUpper(strings.TrimSpace(r.Get("BAND"))) }

// Freq returns the frequency in MHz as logged
func (r Record) Freq() string { return strings.TrimSpace(r.Get("FREQ")) }

// Mode returns the operating mode
func (r Record) Mode() string { return strings.ToUpper(strings.TrimSpace(r.Get("MODE"))) }

// Grid returns the worked station's grid locator
func (r Record) Grid() string { return strings.TrimSpace(r.Get("GRIDSQUARE")) }

// QSODate returns the QSO date (YYYYMMDD)
func (r Record) QSODate() string { return strings.TrimSpace(r.Get("QSO_DATE")) }

// TimeOn returns the QSO start time (HHMM or HHMMSS)
func (r Record) TimeOn() string { return strings.TrimSpace(r.Get("TIME_ON")) }

// Log is a parsed ADIF file
type Log struct {
	Header  Record
	Records []Record
}

// Decode converts raw file bytes to text using the given charset. Invalid
// UTF-8 sequences are replaced rather than rejected.
func Decode(data []byte, cs Charset) (string, error) {
	switch cs {
	case ISO885915, "":
		text, err := charmap.ISO8859_15.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("failed to decode %s: %w", ISO885915, err)
		}
		return string(text), nil
	case UTF8:
		if utf8.Valid(data) {
			return string(data), nil
		}
		return strings.ToValidUTF8(string(data), "�"), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCharset, cs)
	}
}

// Parse decodes and parses an ADIF file
func Parse(data []byte, cs Charset) (*Log, error) {
	text, err := Decode(data, cs)
	if err != nil {
		return nil, err
	}
	return ParseString(text), nil
}

// ParseString parses decoded ADIF text. Everything up to <EOH> is the header;
// without <EOH> the whole text is records. Tags are <NAME:LEN[:TYPE]>value and
// <EOR> closes a record. Malformed tags are skipped and a value cut short by
// the end of input is clipped. Records without fields are dropped.
func ParseString(text string) *Log {
	log := &Log{Header: Record{}}

	body := text
	if idx := indexTag(text, "EOH"); idx >= 0 {
		header, _ := scanFields([]rune(text[:idx]), false)
		if len(header) > 0 {
			log.Header = header[0]
		}
		// indexTag guarantees a closing '>' after the tag name
		body = text[idx+strings.IndexByte(text[idx:], '>')+1:]
	}

	log.Records, _ = scanFields([]rune(body), true)
	return log
}

// indexTag returns the byte offset of <NAME> (ASCII case-insensitive,
// optional whitespace before '>'), or -1. name must be upper case ASCII.
func indexTag(text, name string) int {
	for i := 0; i+1+len(name) <= len(text); i++ {
		if text[i] != '<' || !hasPrefixFold(text[i+1:], name) {
			continue
		}
		j := i + 1 + len(name)
		for j < len(text) && (text[j] == ' ' || text[j] == '\t' || text[j] == '\r' || text[j] == '\n') {
			j++
		}
		if j < len(text) && text[j] == '>' {
			return i
		}
	}
	return -1
}

// hasPrefixFold reports whether s starts with the upper case ASCII prefix,
// folding only ASCII letters in s
func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for k := 0; k < len(prefix); k++ {
		c := s[k]
		if 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c != prefix[k] {
			return false
		}
	}
	return true
}

// scanFields walks the tags in text. With records set, each <EOR> closes a
// record; otherwise all fields go into a single record.
func scanFields(text []rune, records bool) ([]Record, int) {
	var (
		out     []Record
		current = Record{}
		skipped int
	)

	flush := func() {
		if len(current) > 0 {
			out = append(out, current)
		}
		current = Record{}
	}

	for i := 0; i < len(text); {
		if text[i] != '<' {
			i++
			continue
		}
		end := indexRune(text, i+1, '>')
		if end < 0 {
			break
		}
		spec := strings.TrimSpace(string(text[i+1 : end]))
		i = end + 1

		parts := strings.Split(spec, ":")
		name := strings.ToUpper(strings.TrimSpace(parts[0]))

		if len(parts) == 1 {
			switch name {
			case "EOR":
				if records {
					flush()
				}
			case "EOH":
			default:
				skipped++
			}
			continue
		}

		length, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || length < 0 || name == "" {
			skipped++
			continue
		}
		if i+length > len(text) {
			length = len(text) - i
		}
		current[name] = string(text[i : i+length])
		i += length
	}

	// A last record without <EOR> is kept; loggers often omit the final marker
	flush()
	return out, skipped
}

func indexRune(text []rune, from int, r rune) int {
	for i := from; i < len(text); i++ {
		if text[i] == r {
			return i
		}
	}
	return -1
}
