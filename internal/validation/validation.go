// Package validation содержит функции и типы валидации входных данных.
package validation

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout — формат дат, принимаемый API (совпадает с input type=date).
const DateLayout = "2006-01-02"

// LenientDecimal — десятичное число с мягким разбором JSON: отсутствующее,
// null, пустое или нечисловое значение трактуется как ноль, ошибок нет.
type LenientDecimal struct {
	decimal.Decimal
}

// UnmarshalJSON принимает числа и строки с числами; всё остальное — ноль.
func (d *LenientDecimal) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(data), `"`))
	if s == "" || s == "null" {
		d.Decimal = decimal.Zero
		return nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		d.Decimal = decimal.Zero
		return nil
	}
	d.Decimal = v
	return nil
}

// MarshalJSON сериализует значение как обычное число.
func (d LenientDecimal) MarshalJSON() ([]byte, error) {
	return []byte(d.Decimal.String()), nil
}

// ParseDate разбирает дату в формате YYYY-MM-DD.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}
