// Package canonical produces the deterministic byte encoding that content
// ids, signatures, and audit hashes are computed over. Two processes given
// semantically equal records must emit byte-identical output, so the encoding
// is fully specified here instead of relying on encoding/json field order:
// object keys are sorted lexicographically, array order is preserved, there
// is no insignificant whitespace, and numbers use their shortest exact
// decimal form. NaN and infinities are rejected.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ContentIDPrefix marks content-derived identifiers.
const ContentIDPrefix = "cid_"

// Marshal returns the canonical encoding of v. Any value accepted by
// encoding/json is accepted here; structs are first flattened through their
// JSON form so tags and omitempty behave as usual.
func Marshal(v any) ([]byte, error) {
	tree, err := toTree(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SHA256Hex returns the lowercase hex sha256 of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashObject canonicalizes v and returns the hex sha256 of the result.
func HashObject(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}

// ContentID derives the stable identifier "cid_" + sha256(canonical(v)).
func ContentID(v any) (string, error) {
	h, err := HashObject(v)
	if err != nil {
		return "", err
	}
	return ContentIDPrefix + h, nil
}

// toTree normalizes v into the generic map/slice/json.Number tree the encoder
// walks. Round-tripping through encoding/json keeps struct tag handling
// consistent with the rest of the codebase.
func toTree(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal input: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical: decode intermediate: %w", err)
	}
	return tree, nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return encodeString(buf, val)
	case json.Number:
		return encodeNumber(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("canonical: unsupported type %T", v)
	}
	return nil
}

// encodeString writes a JSON string without HTML escaping so the bytes match
// across encoders.
func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("canonical: encode string: %w", err)
	}
	// Encode appends a trailing newline.
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// encodeNumber normalizes a number to its shortest exact decimal form.
// Integers keep their integral spelling; everything else goes through the
// shortest round-trippable float64 representation.
func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return fmt.Errorf("canonical: parse number %q: %w", n.String(), err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonical: non-finite number %q", n.String())
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
