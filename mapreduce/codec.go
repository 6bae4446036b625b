package mapreduce

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Datum is the canonical JSON encoding of a key or value. Two keys are the
// same key iff their encodings are byte-equal, which makes equality
// structural: tuples compare component-wise and map keys are sorted.
type Datum []byte

var null = Datum("null")

// Decode unmarshals the datum into v.
func (d Datum) Decode(v any) error {
	if len(d) == 0 {
		return json.Unmarshal(null, v)
	}

	return json.Unmarshal(d, v)
}

// IsNull reports whether the datum encodes a null (the universal key).
func (d Datum) IsNull() bool {
	return len(d) == 0 || bytes.Equal(d, null)
}

func (d Datum) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return null, nil
	}

	return d, nil
}

func (d *Datum) UnmarshalJSON(data []byte) error {
	*d = append((*d)[:0], data...)
	return nil
}

func (d Datum) String() string {
	if len(d) == 0 {
		return string(null)
	}

	return string(d)
}

// Encode returns the canonical encoding of v. A Datum is returned as is.
func Encode(v any) (Datum, error) {
	if d, ok := v.(Datum); ok {
		if len(d) == 0 {
			return null, nil
		}
		return d, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return Datum(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// EncodeKeyVal encodes an emission. Keys without a canonical encoding are
// rejected with *UnsupportedKeyError, and so are keys whose encoding would
// drop part of them (unexported or "-" tagged struct fields, maps keyed by
// anything but strings).
func EncodeKeyVal(kv KeyVal) (Record, error) {
	if err := checkKey(kv.Key); err != nil {
		return Record{}, &UnsupportedKeyError{Key: kv.Key, Err: err}
	}

	key, err := Encode(kv.Key)
	if err != nil {
		return Record{}, &UnsupportedKeyError{Key: kv.Key, Err: err}
	}

	val, err := Encode(kv.Val)
	if err != nil {
		return Record{}, fmt.Errorf("encode value for key %s: %w", key, err)
	}

	return Record{Key: key, Val: val}, nil
}

// DecodeAll decodes every datum into a T.
func DecodeAll[T any](vals []Datum) ([]T, error) {
	out := make([]T, len(vals))
	for i, v := range vals {
		if err := v.Decode(&out[i]); err != nil {
			return nil, fmt.Errorf("decode %s: %w", v, err)
		}
	}

	return out, nil
}
