// Package secret detects and redacts credential-shaped substrings (API
// keys, tokens, passwords) from request and response bodies before they
// are persisted or logged.
package secret

import "regexp"

type pattern struct {
	re          *regexp.Regexp
	replacement string
}

var patterns = compilePatterns([]struct {
	expr        string
	replacement string
}{
	// Stripe keys
	{`(sk_(?:test|live)_)[a-zA-Z0-9]{20,}`, `${1}****`},
	{`(rk_(?:test|live)_)[a-zA-Z0-9]{20,}`, `${1}****`},
	{`(pk_(?:test|live)_)[a-zA-Z0-9]{20,}`, `${1}****`},
	// OpenAI keys
	{`(sk-)[a-zA-Z0-9]{32,}`, `${1}****`},
	// GitHub tokens
	{`(ghp_)[a-zA-Z0-9]{36}`, `${1}****`},
	{`(gho_)[a-zA-Z0-9]{36}`, `${1}****`},
	{`(github_pat_)[a-zA-Z0-9_]{22,}`, `${1}****`},
	// Slack tokens
	{`(xox[baprs]-)[a-zA-Z0-9\-]{10,}`, `${1}****`},
	// AWS keys
	{`(AKIA)[A-Z0-9]{16}`, `${1}****`},
	// JWT tokens: keep header, redact payload and signature
	{`(eyJ[a-zA-Z0-9_-]{10,})\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`, `${1}.[REDACTED].[REDACTED]`},
	// Generic API key / token patterns
	{`(api[_-]?key[:\s]*['"]?)[a-zA-Z0-9_\-]{20,}`, `${1}[REDACTED]`},
	{`(api[_-]?secret[:\s]*['"]?)[a-zA-Z0-9_\-]{20,}`, `${1}[REDACTED]`},
	{`(access[_-]?token[:\s]*['"]?)[a-zA-Z0-9_\-]{20,}`, `${1}[REDACTED]`},
	{`(auth[_-]?token[:\s]*['"]?)[a-zA-Z0-9_\-]{20,}`, `${1}[REDACTED]`},
	{`(bearer[:\s]+)[a-zA-Z0-9_\-.]{20,}`, `${1}[REDACTED]`},
	// Passwords
	{`(password[:=]\s*)[^\s]{8,50}`, `${1}[REDACTED]`},
	{`(passwd[:=]\s*)[^\s]{8,50}`, `${1}[REDACTED]`},
	{`(pwd[:=]\s*)[^\s]{8,50}`, `${1}[REDACTED]`},
	// Passwords in backticks
	{"`([A-Z][a-z]{3,15}[0-9]{1,6})`", "`[REDACTED]`"},
	{"`([A-Za-z0-9!@#$%^&*_]{8,30})`", "`[REDACTED]`"},
	{"`([A-Z][a-z]+[A-Z][a-z]+[A-Za-z0-9!]*)`", "`[REDACTED]`"},
	// Passwords after bullet points
	{`([•\-*]\s*)([A-Z][a-z]+[A-Z]?[a-z]*[0-9]*[!@#$%^&*]+[A-Za-z0-9!@#$%^&*]*)`, `${1}[REDACTED]`},
	{`([•\-*]\s*)([A-Z][a-z]+@[A-Za-z]+[0-9]+)`, `${1}[REDACTED]`},
	{`([•\-*]\s*)([A-Z][a-z]+[0-9]+[!@#$%^&*]+)`, `${1}[REDACTED]`},
	// Common password shapes anywhere in the text
	{`\b([A-Z][a-z]{3,10}[!@#$%^&*][A-Za-z0-9!@#$%^&*]{2,15})\b`, `[REDACTED]`},
	{`\b([A-Z][a-z]{3,10}@[A-Za-z]+[0-9]{2,6})\b`, `[REDACTED]`},
	{`\b([A-Z][a-z]+[0-9]{2,6}[!@#$%^&*]{1,3})\b`, `[REDACTED]`},
})

func compilePatterns(raw []struct {
	expr        string
	replacement string
}) []pattern {
	compiled := make([]pattern, len(raw))
	for i, r := range raw {
		compiled[i] = pattern{re: regexp.MustCompile(`(?i)` + r.expr), replacement: r.replacement}
	}
	return compiled
}

// typeMatcher identifies the human-readable category of a detected
// secret, independent of the redaction pattern that caught it.
type typeMatcher struct {
	name string
	re   *regexp.Regexp
}

var typeMatchers = []typeMatcher{
	{"Stripe key", regexp.MustCompile(`(?i)[srp]k_(?:test|live)_[a-zA-Z0-9]{20,}`)},
	{"OpenAI key", regexp.MustCompile(`(?i)sk-[a-zA-Z0-9]{32,}`)},
	{"GitHub token", regexp.MustCompile(`(?i)gh[po]_[a-zA-Z0-9]{36}|github_pat_`)},
	{"Slack token", regexp.MustCompile(`(?i)xox[baprs]-`)},
	{"AWS key", regexp.MustCompile(`AKIA[A-Z0-9]{16}`)},
	{"JWT token", regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`)},
	{"API key", regexp.MustCompile(`(?i)api[_-]?(?:key|secret)[:\s]`)},
	{"Access token", regexp.MustCompile(`(?i)(?:access|auth)[_-]?token[:\s]`)},
	{"Bearer token", regexp.MustCompile(`(?i)bearer[:\s]+[a-zA-Z0-9_\-.]{20,}`)},
	{"Password", regexp.MustCompile(`(?i)(?:password|passwd|pwd)[:\s]`)},
}

// Redact scans text and replaces every detected secret, returning the
// redacted text and how many substitutions were made.
func Redact(text string) (string, int) {
	if text == "" {
		return text, 0
	}

	redacted := text
	count := 0
	for _, p := range patterns {
		matches := p.re.FindAllStringIndex(redacted, -1)
		if len(matches) == 0 {
			continue
		}
		redacted = p.re.ReplaceAllString(redacted, p.replacement)
		count += len(matches)
	}
	return redacted, count
}

// HasSecrets reports whether text contains anything a pattern recognizes.
func HasSecrets(text string) bool {
	if text == "" {
		return false
	}
	for _, p := range patterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

// Types returns the distinct secret categories detected in text, in a
// fixed, deterministic order.
func Types(text string) []string {
	if text == "" {
		return nil
	}
	var detected []string
	for _, m := range typeMatchers {
		if m.re.MatchString(text) {
			detected = append(detected, m.name)
		}
	}
	return detected
}
