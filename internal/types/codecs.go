package types

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ChunkSize is the maximum number of characters per side-table chunk.
const ChunkSize = 255

const (
	storeDateLayout      = "2006-01-02T15:04:05Z"
	relationalDateLayout = "2006-01-02 15:04:05"
)

type stringCodec struct{}

func (stringCodec) ToRelational(raw interface{}) (interface{}, error) { return toString(raw) }
func (stringCodec) ToStore(raw interface{}) (interface{}, error)      { return toString(raw) }

type intCodec struct{}

func (intCodec) ToRelational(raw interface{}) (interface{}, error) { return toInt64(raw) }
func (intCodec) ToStore(raw interface{}) (interface{}, error)      { return toInt64(raw) }

type floatCodec struct{}

func (floatCodec) ToRelational(raw interface{}) (interface{}, error) { return toFloat64(raw) }
func (floatCodec) ToStore(raw interface{}) (interface{}, error)      { return toFloat64(raw) }

// boolCodec stores booleans as TINYINT 1/0.
type boolCodec struct{}

func (boolCodec) ToRelational(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case bool:
		return boolInt(v), nil
	case string:
		return boolInt(v == "t" || v == "T" || v == "1"), nil
	case []byte:
		s := string(v)
		return boolInt(s == "t" || s == "T" || s == "1"), nil
	}
	if n, err := toInt64(raw); err == nil {
		return boolInt(n == 1), nil
	}
	return int64(0), nil
}

func (boolCodec) ToStore(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case bool:
		return boolInt(v), nil
	case string:
		return boolInt(v == "1"), nil
	case []byte:
		return boolInt(string(v) == "1"), nil
	}
	if n, err := toInt64(raw); err == nil {
		return boolInt(n == 1), nil
	}
	return int64(0), nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// dateCodec swaps between "2006-01-02T15:04:05Z" and "2006-01-02 15:04:05".
// The presence of the T marker decides whether a value is already converted.
type dateCodec struct{}

func (dateCodec) ToRelational(raw interface{}) (interface{}, error) {
	if t, ok := raw.(time.Time); ok {
		return t.UTC().Format(relationalDateLayout), nil
	}
	s, err := toString(raw)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(s, "T") {
		return s, nil
	}
	if len(s) < 11 {
		return nil, fmt.Errorf("malformed date %q", s)
	}
	return s[:10] + " " + strings.TrimSuffix(s[11:], "Z"), nil
}

func (dateCodec) ToStore(raw interface{}) (interface{}, error) {
	if t, ok := raw.(time.Time); ok {
		return t.UTC().Format(storeDateLayout), nil
	}
	s, err := toString(raw)
	if err != nil {
		return nil, err
	}
	if strings.Contains(s, "T") || len(s) <= 10 {
		return s, nil
	}
	return s[:10] + "T" + s[11:] + "Z", nil
}

// textCodec chunks long strings for side-table storage.
type textCodec struct {
	chunkSize int
}

func (c textCodec) ToRelational(raw interface{}) (interface{}, error) {
	if chunks, ok := raw.([]string); ok {
		return chunks, nil
	}
	s, err := toString(raw)
	if err != nil {
		return nil, err
	}
	return Chunk(s, c.chunkSize), nil
}

func (c textCodec) ToStore(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case []string:
		return strings.Join(v, ""), nil
	case []interface{}:
		var b strings.Builder
		for _, chunk := range v {
			s, err := toString(chunk)
			if err != nil {
				return nil, err
			}
			b.WriteString(s)
		}
		return b.String(), nil
	}
	return toString(raw)
}

// Chunk splits s into consecutive pieces of at most size characters. The
// empty string yields a single empty chunk.
func Chunk(s string, size int) []string {
	if size <= 0 {
		size = ChunkSize
	}
	if utf8.RuneCountInString(s) <= size {
		return []string{s}
	}
	chunks := make([]string, 0, utf8.RuneCountInString(s)/size+1)
	runes := []rune(s)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
