package payments

import (
	"regexp"
	"strings"

	"storefront-service/internal/apperr"

	"github.com/shopspring/decimal"
)

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

// Currencies whose minor unit is not 1/100 of the major unit.
var exponents = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "JPY": 0, "KMF": 0, "KRW": 0, "MGA": 0,
	"PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "JOD": 3, "KWD": 3, "OMR": 3, "TND": 3,
}

// NormalizeCurrency upper-cases code and checks it looks like an ISO 4217 code.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !currencyCode.MatchString(c) {
		return "", apperr.Validation("currency %q is not a valid ISO 4217 code", code)
	}
	return c, nil
}

func Exponent(currency string) int32 {
	if e, ok := exponents[currency]; ok {
		return e
	}
	return 2
}

// MinorUnits converts amount to the gateway's integer convention, e.g. 499.00 INR -> 49900 paise.
func MinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if !amount.IsPositive() {
		return 0, apperr.Validation("amount must be greater than zero")
	}
	exp := Exponent(currency)
	minor := amount.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, apperr.Validation("amount has more decimal places than %s allows", currency)
	}
	return minor.IntPart(), nil
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -Exponent(currency))
}
