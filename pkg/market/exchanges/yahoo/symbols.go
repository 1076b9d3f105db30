package yahoo

import "strings"

// ToProviderSymbol maps a bare futures root to Yahoo's continuous-contract
// form: "MES" -> "MES=F". Symbols already carrying a suffix pass through.
func ToProviderSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.Contains(s, "=") || strings.Contains(s, ".") {
		return s
	}
	return s + "=F"
}

// FromProviderSymbol strips the "=F" suffix back to the storage form.
func FromProviderSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.TrimSuffix(s, "=F")
}
