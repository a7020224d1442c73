package money

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ToBeArranged is shown instead of an amount that is missing, zero or unreadable.
const ToBeArranged = "A combinar"

const maxIntegerDigits = 15

// Cents is a BRL amount in centavos.
type Cents int64

// Amount is a nullable money value. The zero value is null.
type Amount struct {
	Cents Cents
	Valid bool
}

// NewAmount returns a non-null Amount.
func NewAmount(c Cents) Amount {
	return Amount{Cents: c, Valid: true}
}

// ParseCurrencyInput keeps only the digits of raw and reads them as centavos,
// so "R$ 1.500,00" becomes 150000. Empty input yields 0.
func ParseCurrencyInput(raw string) Cents {
	var c Cents
	for _, r := range raw {
		if r < '0' || r > '9' {
			continue
		}
		if c > (math.MaxInt64-9)/10 {
			return c
		}
		c = c*10 + Cents(r-'0')
	}
	return c
}

// ParseCurrencyValue reads the loosely typed amounts the API hands around:
// "150.00", "150,50", "1.500,00", 150, 150.5, json.Number or nil.
func ParseCurrencyValue(v any) (Cents, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case Amount:
		return val.Cents, val.Valid
	case *Amount:
		if val == nil {
			return 0, false
		}
		return val.Cents, val.Valid
	case Cents:
		return val, true
	case int:
		return fromInt(int64(val))
	case int32:
		return fromInt(int64(val))
	case int64:
		return fromInt(val)
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return fromFloat(f)
	case string:
		return parseDecimal(val)
	case *string:
		if val == nil {
			return 0, false
		}
		return parseDecimal(*val)
	default:
		return 0, false
	}
}

func fromInt(n int64) (Cents, bool) {
	if n > math.MaxInt64/100 || n < math.MinInt64/100 {
		return 0, false
	}
	return Cents(n * 100), true
}

func fromFloat(f float64) (Cents, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > 1e13 {
		return 0, false
	}
	return Cents(math.Round(f * 100)), true
}

// parseDecimal understands both "1500.00" and the pt-BR "1.500,00" notation.
// A lone "." followed by exactly three digits groups thousands ("1.500");
// any other single separator is the decimal point.
func parseDecimal(raw string) (Cents, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.NewReplacer(" ", "", "\u00a0", "").Replace(s)
	if s == "" {
		return 0, false
	}

	negative := false
	if s[0] == '-' {
		negative = true
		s = s[1:]
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	var decimalSep, groupSep string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			decimalSep, groupSep = ",", "."
		} else {
			decimalSep, groupSep = ".", ","
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			groupSep = ","
		} else {
			decimalSep = ","
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || (lastDot > 0 && len(s)-lastDot-1 == 3) {
			groupSep = "."
		} else {
			decimalSep = "."
		}
	}

	intPart, fracPart := s, ""
	if decimalSep != "" {
		idx := strings.LastIndex(s, decimalSep)
		intPart, fracPart = s[:idx], s[idx+1:]
	}
	if groupSep != "" {
		intPart = strings.ReplaceAll(intPart, groupSep, "")
	}
	if intPart == "" && fracPart == "" {
		return 0, false
	}
	if !allDigits(intPart) || !allDigits(fracPart) || len(intPart) > maxIntegerDigits {
		return 0, false
	}

	var units int64
	if intPart != "" {
		n, err := strconv.ParseInt(intPart, 10, 64)
		if err != nil {
			return 0, false
		}
		units = n
	}

	padded := fracPart + "000"
	frac := int64(padded[0]-'0')*10 + int64(padded[1]-'0')
	if padded[2] >= '5' {
		frac++
	}

	total := Cents(units*100 + frac)
	if negative {
		total = -total
	}
	return total, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatCents renders c as "R$ 1.500,00". Non-positive amounts render as ToBeArranged.
func FormatCents(c Cents) string {
	if c <= 0 {
		return ToBeArranged
	}
	p := message.NewPrinter(language.BrazilianPortuguese)
	reais := p.Sprintf("%d", int64(c)/100)
	return fmt.Sprintf("R$ %s,%02d", reais, int64(c)%100)
}

// FormatAmount renders a nullable amount.
func FormatAmount(a Amount) string {
	if !a.Valid {
		return ToBeArranged
	}
	return FormatCents(a.Cents)
}

// FormatValue parses v with ParseCurrencyValue and formats the result.
func FormatValue(v any) string {
	c, ok := ParseCurrencyValue(v)
	if !ok {
		return ToBeArranged
	}
	return FormatCents(c)
}

// Decimal returns the plain "150.00" form used on the wire.
func (c Cents) Decimal() string {
	sign := ""
	n := int64(c)
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d.%02d", sign, n/100, n%100)
}

func (a Amount) String() string {
	return FormatAmount(a)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.Cents.Decimal())
}

// UnmarshalJSON accepts strings, numbers and null. Unreadable strings decode as null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	switch {
	case raw == "null" || raw == "":
		*a = Amount{}
		return nil
	case strings.HasPrefix(raw, `"`):
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		c, ok := parseDecimal(s)
		*a = Amount{Cents: c, Valid: ok}
		return nil
	case raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9'):
		// JSON numbers always use "." as the decimal point.
		var c Cents
		ok := false
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			c, ok = fromFloat(f)
		}
		*a = Amount{Cents: c, Valid: ok}
		return nil
	default:
		return fmt.Errorf("money: cannot decode %s into an amount", raw)
	}
}

// Scan implements sql.Scanner; amounts are stored as INTEGER centavos.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Amount{}
	case int64:
		*a = NewAmount(Cents(v))
	case float64:
		*a = NewAmount(Cents(math.Round(v)))
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("money: scan %q: %w", v, err)
		}
		*a = NewAmount(Cents(n))
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("money: scan %q: %w", v, err)
		}
		*a = NewAmount(Cents(n))
	default:
		return fmt.Errorf("money: unsupported scan type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (a Amount) Value() (driver.Value, error) {
	if !a.Valid {
		return nil, nil
	}
	return int64(a.Cents), nil
}
