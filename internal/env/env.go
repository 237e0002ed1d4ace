package env

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// NewDecoder returns a Decoder reading KEY=VALUE lines from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

type Decoder struct {
	r io.Reader
}

// Decode reads every assignment into v. Blank lines and lines starting with # are skipped,
// an optional "export " prefix is dropped and double quoted values are unquoted.
func (d *Decoder) Decode(v map[string]string) error {
	scanner := bufio.NewScanner(d.r)
	var n int
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		line = bytes.TrimPrefix(line, []byte("export "))

		key, value, ok := bytes.Cut(line, []byte("="))
		if !ok {
			return fmt.Errorf("line %d: missing '=': %s", n, line)
		}
		k := string(bytes.TrimSpace(key))
		if k == "" {
			return fmt.Errorf("line %d: empty key", n)
		}

		val := string(bytes.TrimSpace(value))
		if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return fmt.Errorf("line %d: %w", n, err)
			}
			val = unquoted
		}
		v[k] = val
	}
	return scanner.Err()
}

// NewEncoder returns an Encoder writing KEY=VALUE lines to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

type Encoder struct {
	w io.Writer
}

// Encode writes v sorted by key. Values containing whitespace, quotes or # are quoted.
func (e *Encoder) Encode(v map[string]string) error {
	keys := make([]string, 0, len(v))
	for key := range v {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		value := v[key]
		if strings.ContainsAny(value, " \t\n\"#'") {
			value = strconv.Quote(value)
		}
		if _, err := fmt.Fprintf(e.w, "%s=%s\n", key, value); err != nil {
			return err
		}
	}
	return nil
}
