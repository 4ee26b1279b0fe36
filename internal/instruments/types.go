package instruments

import (
	"fmt"
	"strings"
)

// OptionSide is CE (call) or PE (put), as Fyers tags it
type OptionSide string

const (
	Call OptionSide = "CE"
	Put  OptionSide = "PE"
)

// ParseSide accepts CE/PE in any case
func ParseSide(s string) (OptionSide, error) {
	switch OptionSide(strings.ToUpper(strings.TrimSpace(s))) {
	case Call:
		return Call, nil
	case Put:
		return Put, nil
	default:
		return "", fmt.Errorf("invalid option side %q", s)
	}
}

// SymbolRecord is one option series from the symbol master
type SymbolRecord struct {
	SymbolID   string
	Underlying string
	Side       OptionSide
	ExpiryDate string // YYYY-MM-DD, UTC
	LotSize    int64
}

// catalogEntry is the raw symbol master value; numeric fields arrive either
// as JSON numbers or as numeric strings.
type catalogEntry struct {
	OptType    string     `json:"optType"`
	UnderSym   string     `json:"underSym"`
	ExpiryDate flexNumber `json:"expiryDate"`
	MinLotSize flexNumber `json:"minLotSize"`
}

type lookupKey struct {
	underlying string
	expiry     string
	side       OptionSide
}

// candidate is a normalized record whose lot size has not been validated yet
type candidate struct {
	record SymbolRecord
	lotErr error
}
