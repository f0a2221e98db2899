package dlp

import "regexp"

// Pattern-based masking for PII categories that show up in support
// conversations. Placeholders are built from '#' so a masked span can
// never be re-matched by a later category (none of the patterns match '#').
var categories = []struct {
	re          *regexp.Regexp
	placeholder string
}{
	// resident registration number (주민등록번호)
	{regexp.MustCompile(`\d{6}-\d{7}`), "######-#######"},
	// mobile phone number
	{regexp.MustCompile(`01\d-\d{3,4}-\d{4}`), "###-####-####"},
	// email address
	{regexp.MustCompile(`[\w.-]+@[\w.-]+\.\w+`), "#####@#####.###"},
	// payment card number
	{regexp.MustCompile(`\d{4}-\d{4}-\d{4}-\d{4}`), "####-####-####-####"},
}

// Redact masks all recognized PII spans in text. It is deterministic,
// never fails, and is idempotent: Redact(Redact(x)) == Redact(x).
func Redact(text string) string {
	masked := text
	for _, c := range categories {
		masked = c.re.ReplaceAllString(masked, c.placeholder)
	}
	return masked
}

// WasRedacted reports whether redaction would alter text.
func WasRedacted(text string) bool {
	return Redact(text) != text
}
