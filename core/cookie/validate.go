package cookie

import "fmt"

// validateValue rejects control characters, whitespace, DQUOTE, comma,
// semicolon and backslash. A value wrapped in double quotes is allowed.
func validateValue(value string) error {
	start, end := 0, len(value)
	if end > 1 && value[0] == '"' && value[end-1] == '"' {
		start, end = 1, end-1
	}
	for i := start; i < end; i++ {
		c := value[i]
		if c < 0x21 || c == '"' || c == ',' || c == ';' || c == '\\' || c >= 0x7f {
			return fmt.Errorf("%w: 0x%02x", ErrInvalidValue, c)
		}
	}
	return nil
}

// validateDomain accepts letters, digits, dots and hyphens, rejecting empty
// labels and labels that start with a hyphen or end with one.
func validateDomain(domain string) error {
	prev := byte(0)
	for i := 0; i < len(domain); i++ {
		c := domain[i]
		valid := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '.' || c == '-'
		if !valid ||
			((prev == '.' || i == 0) && (c == '.' || c == '-')) ||
			(prev == '-' && c == '.') {
			return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
		}
		prev = c
	}
	if prev == '.' || prev == '-' {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return nil
}

// validatePath accepts printable ASCII except semicolon.
func validatePath(path string) error {
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c < 0x20 || c > 0x7e || c == ';' {
			return fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return nil
}
