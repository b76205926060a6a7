package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

var errInvalidPrice = errors.New("price must be a non-negative number")

// Price decimal amount with two fraction digits, e.g. "1500.00".
// Accepts a JSON number or a numeric string.
type Price string

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}

	var raw string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errInvalidPrice
		}
		raw = n.String()
	}

	normalized, err := NormalizePrice(raw)
	if err != nil {
		return err
	}
	*p = Price(normalized)
	return nil
}

// NormalizePrice parses raw and formats it with two decimals
func NormalizePrice(raw string) (string, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return "", errInvalidPrice
	}
	return strconv.FormatFloat(f, 'f', 2, 64), nil
}
