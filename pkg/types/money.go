package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Money is an amount in centavos. The registrar API serializes prices both
// as JSON numbers and as decimal strings, so decoding accepts either.
type Money int64

func MoneyFromFloat(f float64) Money {
	return Money(math.Round(f * 100))
}

func (m Money) Float64() float64 {
	return float64(m) / 100
}

func (m Money) Times(n int) Money {
	return m * Money(n)
}

func (m Money) String() string {
	return "₱" + humanize.FormatFloat("#,###.##", m.Float64())
}

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*m = 0
			return nil
		}
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid money value %q: %w", raw, err)
	}

	*m = MoneyFromFloat(f)
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(m.Float64(), 'f', 2, 64)), nil
}
