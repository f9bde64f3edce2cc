package domain

import (
	"strings"

	dErrors "veriflow/pkg/domain-errors"
)

// CompanyNumber is a normalized 8-digit company-register number (KvK-nummer).
// Immutable once parsed; shorter all-digit inputs are zero-padded to 8 digits
// since the register itself pads historical numbers.
type CompanyNumber string

// TaxNumber is a normalized VAT identification number (BTW-nummer) in the
// NL<9 digits>B<2 digits> shape. Immutable once parsed.
type TaxNumber string

func (n CompanyNumber) String() string { return string(n) }
func (n TaxNumber) String() string     { return string(n) }

const companyNumberLength = 8

// stripSeparators removes the separators users habitually paste along with
// registry identifiers (spaces, dots, dashes).
func stripSeparators(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '\t':
			return -1
		}
		return r
	}, raw)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseCompanyNumber normalizes and validates a company-register number.
// Format errors are local: no registry call may be attempted for input that
// fails here.
func ParseCompanyNumber(raw string) (CompanyNumber, error) {
	normalized := stripSeparators(raw)
	if normalized == "" {
		return "", dErrors.New(dErrors.CodeValidation, "company number is required")
	}
	if !isDigits(normalized) {
		return "", dErrors.Newf(dErrors.CodeValidation, "company number %q must contain only digits", raw)
	}
	if len(normalized) > companyNumberLength {
		return "", dErrors.Newf(dErrors.CodeValidation, "company number %q must be at most %d digits", raw, companyNumberLength)
	}
	for len(normalized) < companyNumberLength {
		normalized = "0" + normalized
	}
	return CompanyNumber(normalized), nil
}

// ParseTaxNumber normalizes and validates a VAT number.
// Accepted shape after separator stripping and uppercasing: NL + 9 digits +
// B + 2 digits (e.g. NL123456789B01).
func ParseTaxNumber(raw string) (TaxNumber, error) {
	normalized := strings.ToUpper(stripSeparators(raw))
	if normalized == "" {
		return "", dErrors.New(dErrors.CodeValidation, "tax number is required")
	}
	if len(normalized) != 14 {
		return "", dErrors.Newf(dErrors.CodeValidation, "tax number %q must be 14 characters after normalization", raw)
	}
	if !strings.HasPrefix(normalized, "NL") {
		return "", dErrors.Newf(dErrors.CodeValidation, "tax number %q must start with the NL country prefix", raw)
	}
	if !isDigits(normalized[2:11]) {
		return "", dErrors.Newf(dErrors.CodeValidation, "tax number %q must contain 9 digits after the country prefix", raw)
	}
	if normalized[11] != 'B' {
		return "", dErrors.Newf(dErrors.CodeValidation, "tax number %q must carry a B suffix marker", raw)
	}
	if !isDigits(normalized[12:]) {
		return "", dErrors.Newf(dErrors.CodeValidation, "tax number %q must end with a 2-digit suffix", raw)
	}
	return TaxNumber(normalized), nil
}
