package instruments

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// flexNumber keeps the raw JSON text of a numeric field so that malformed
// values surface when the field is used rather than failing the whole decode.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		unquoted, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		*n = flexNumber(unquoted)
		return nil
	}
	*n = flexNumber(b)
	return nil
}

// Int parses the value as an integer. Integral floats ("550.0") are accepted.
func (n flexNumber) Int() (int64, error) {
	s := string(n)
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}
