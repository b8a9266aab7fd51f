// Package redactor implements the secret redaction pipeline stage (spec
// §4.3.4): every ToolResult payload is scanned before being appended to the
// session transcript or sent to the LLM. Pattern/whitelist structure is
// grounded on `sipeed-picoclaw/pkg/redaction`, generalized from that
// package's single enable/disable toggles into the specification's five
// ordered levels and its precise category enumeration (PII, cryptographic
// material, API keys, bearer/basic tokens).
package redactor

import (
	"regexp"
	"strconv"
	"strings"
)

// Level is one of the five redaction levels from the specification. Levels
// are ordered; each level's policy matrix is evaluated independently rather
// than inherited, matching the literal table in spec §4.3.4.
type Level string

const (
	LevelOff           Level = "off"
	LevelPII           Level = "pii"
	LevelAPIPermissive Level = "api_permissive"
	LevelStandard      Level = "standard"
	LevelStrict        Level = "strict"
)

// category is one of the four pattern families the policy matrix gates.
type category string

const (
	catPII    category = "pii"
	catCrypto category = "crypto"
	catAPIKey category = "api_key"
	catToken  category = "token"
)

// policy[level][category] reports whether that category is redacted at that
// level, transcribed directly from the spec §4.3.4 table.
var policy = map[Level]map[category]bool{
	LevelOff:           {catPII: false, catCrypto: false, catAPIKey: false, catToken: false},
	LevelPII:           {catPII: true, catCrypto: false, catAPIKey: false, catToken: false},
	LevelAPIPermissive: {catPII: true, catCrypto: true, catAPIKey: false, catToken: false},
	LevelStandard:      {catPII: true, catCrypto: true, catAPIKey: true, catToken: true},
	LevelStrict:        {catPII: true, catCrypto: true, catAPIKey: true, catToken: true},
}

const mask = "[REDACTED]"

// pattern is one named, category-tagged regex. When group is > 0 only that
// capture group is replaced, preserving surrounding text (e.g. `password=`
// stays, only the value is masked); group 0 replaces the whole match.
type pattern struct {
	name     string
	cat      category
	re       *regexp.Regexp
	group    int
	validate func(full string) bool
}

var patterns = buildPatterns()

func buildPatterns() []pattern {
	return []pattern{
		// --- PII ---
		{name: "email", cat: catPII, re: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
		{name: "us_ssn", cat: catPII, re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{name: "us_phone", cat: catPII, re: regexp.MustCompile(`\b(?:\(\d{3}\)\s*|\d{3}[\s.\-])\d{3}[\s.\-]\d{4}\b`)},
		{name: "uk_ni", cat: catPII, re: regexp.MustCompile(`\b[A-CEGHJ-PR-TW-Z]{2}\d{6}[A-D]\b`)},
		{
			name: "card_number", cat: catPII,
			re: regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`),
			validate: func(full string) bool {
				digits := stripNonDigits(full)
				return len(digits) >= 13 && len(digits) <= 19 && luhnValid(digits)
			},
		},

		// --- Cryptographic ---
		{name: "pem_block", cat: catCrypto, re: regexp.MustCompile(`(?s)-----BEGIN (RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----.*?-----END (RSA |DSA |EC |OPENSSH )?PRIVATE KEY-----`)},
		{name: "db_conn_password", cat: catCrypto, re: regexp.MustCompile(`(?i)(://[^:/\s]+:)([^@\s]+)(@)`), group: 2},
		{name: "generic_password", cat: catCrypto, re: regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?([^'"\s]{3,})['"]?`), group: 2},

		// --- API keys ---
		{name: "aws_access_key", cat: catAPIKey, re: regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
		{name: "aws_secret_key", cat: catAPIKey, re: regexp.MustCompile(`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[=:]\s*['"]?([a-zA-Z0-9/+=]{40})['"]?`), group: 1},
		{name: "github_token", cat: catAPIKey, re: regexp.MustCompile(`\bgh[posu]_[A-Za-z0-9]{36,}\b`)},
		{name: "github_fine_grained", cat: catAPIKey, re: regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{22,}\b`)},
		{name: "stripe_key", cat: catAPIKey, re: regexp.MustCompile(`\b(sk|pk|rk)_(live|test)_[A-Za-z0-9]{16,}\b`)},
		{name: "google_api_key", cat: catAPIKey, re: regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`)},
		{name: "openai_key", cat: catAPIKey, re: regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`)},
		{name: "anthropic_key", cat: catAPIKey, re: regexp.MustCompile(`\bsk-ant-[A-Za-z0-9\-]{20,}\b`)},
		{name: "slack_token", cat: catAPIKey, re: regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9\-]{10,}\b`)},
		{name: "slack_webhook", cat: catAPIKey, re: regexp.MustCompile(`https://hooks\.slack\.com/services/[A-Za-z0-9/]+`)},
		{name: "discord_token", cat: catAPIKey, re: regexp.MustCompile(`\b[MN][A-Za-z0-9_\-]{23}\.[A-Za-z0-9_\-]{6}\.[A-Za-z0-9_\-]{27,}\b`)},
		{name: "discord_webhook", cat: catAPIKey, re: regexp.MustCompile(`https://discord(?:app)?\.com/api/webhooks/\d+/[A-Za-z0-9_\-]+`)},
		{name: "twilio_sid", cat: catAPIKey, re: regexp.MustCompile(`\bAC[a-fA-F0-9]{32}\b`)},
		{name: "generic_secret_kv", cat: catAPIKey, re: regexp.MustCompile(`(?i)\b(key|secret|token)\s*[=:]\s*['"]?([A-Za-z0-9_\-./+]{12,})['"]?`), group: 2},

		// --- Tokens ---
		{name: "jwt", cat: catToken, re: regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]*\.eyJ[A-Za-z0-9_\-]*\.[A-Za-z0-9_\-]+\b`)},
		{name: "bearer_auth", cat: catToken, re: regexp.MustCompile(`(?i)(Authorization:\s*Bearer\s+)(\S+)`), group: 2},
		{name: "basic_auth", cat: catToken, re: regexp.MustCompile(`(?i)(Authorization:\s*Basic\s+)(\S+)`), group: 2},
	}
}

// whitelist suppresses false positives on safe literals commonly mistaken
// for secrets (localhost addresses, boolean literals, placeholder hosts).
var whitelist = map[string]bool{
	"localhost": true, "127.0.0.1": true, "0.0.0.0": true,
	"example": true, "example.com": true, "test": true,
	"true": true, "false": true, "null": true, "nil": true,
}

// Redactor applies the level-gated pattern set to text.
type Redactor struct {
	level Level
}

// New constructs a Redactor at the given level, defaulting to LevelPII (the
// specification's stated default) for an unrecognized/empty level.
func New(level Level) *Redactor {
	if _, ok := policy[level]; !ok {
		level = LevelPII
	}
	return &Redactor{level: level}
}

// Level returns the redactor's configured level.
func (r *Redactor) Level() Level { return r.level }

// Redact scans text and replaces every matched, non-whitelisted secret with
// the mask, for every category enabled at the redactor's level.
func (r *Redactor) Redact(text string) string {
	if r.level == LevelOff {
		return text
	}
	enabled := policy[r.level]

	result := text
	for _, p := range patterns {
		if !enabled[p.cat] {
			continue
		}
		result = applyPattern(p, result)
	}
	return result
}

func applyPattern(p pattern, text string) string {
	return p.re.ReplaceAllStringFunc(text, func(match string) string {
		if whitelist[strings.ToLower(match)] {
			return match
		}
		if p.validate != nil && !p.validate(match) {
			return match
		}
		if p.group == 0 {
			return mask
		}
		sub := p.re.FindStringSubmatch(match)
		if len(sub) <= p.group || sub[p.group] == "" {
			return match
		}
		if whitelist[strings.ToLower(sub[p.group])] {
			return match
		}
		return strings.Replace(match, sub[p.group], mask, 1)
	})
}

func stripNonDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// luhnValid implements the Luhn checksum used to validate candidate card
// numbers before redacting them, avoiding false positives on arbitrary
// 13-19 digit runs (phone numbers, IDs, hashes).
func luhnValid(digits string) bool {
	sum := 0
	alt := false
	for i := len(digits) - 1; i >= 0; i-- {
		d, err := strconv.Atoi(string(digits[i]))
		if err != nil {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}
