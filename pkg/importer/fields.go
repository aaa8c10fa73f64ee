package importer

import (
	"regexp"
	"strconv"
	"strings"
)

// SecretMinLength is the shortest base32 run accepted as a 2FA secret.
const SecretMinLength = 16

var countries = map[string]bool{
	"india": true, "france": true, "brazil": true, "laos": true, "china": true,
	"usa": true, "germany": true, "japan": true, "korea": true, "vietnam": true,
	"thailand": true, "indonesia": true, "malaysia": true, "singapore": true,
	"philippines": true, "russia": true, "uk": true, "canada": true,
	"australia": true, "mexico": true, "spain": true, "italy": true,
	"netherlands": true, "belgium": true, "switzerland": true, "austria": true,
	"poland": true, "turkey": true, "egypt": true, "nigeria": true,
	"south africa": true, "argentina": true, "chile": true, "colombia": true,
	"peru": true,
}

var (
	emailRegex      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	yearRegex       = regexp.MustCompile(`\b20\d{2}\b`)
	twoFALiveRegex  = regexp.MustCompile(`(?i)2fa\.live/(?:tok|ok)/([a-z2-7]{16,})`)
	base32Regex     = regexp.MustCompile(`^[A-Z2-7]+$`)
	base32RunRegex  = regexp.MustCompile(`[A-Z2-7]{16,}`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+\d[\d\s\-]{6,}\d`),
		regexp.MustCompile(`\b1[3-9]\d{9}\b`),
		regexp.MustCompile(`\b\d{10,15}\b`),
	}
)

// IsEmail reports whether s looks like a single email address.
func IsEmail(s string) bool {
	return s != "" && emailRegex.MatchString(s)
}

// IsYear reports whether s is a four-digit year in 2015..2030.
func IsYear(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= 2015 && n <= 2030
}

// IsCountry reports whether s names a known country (case-insensitive).
func IsCountry(s string) bool {
	return countries[strings.ToLower(strings.TrimSpace(s))]
}

// ExtractSecret returns an upper-cased base32 2FA secret found in s: from a
// 2fa.live URL, from s itself with spaces removed, or from the first long
// base32 run. It returns "" when none is found.
func ExtractSecret(s string) string {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return ""
	}
	if m := twoFALiveRegex.FindStringSubmatch(raw); m != nil {
		return strings.ToUpper(m[1])
	}

	compact := strings.ToUpper(whitespaceRegex.ReplaceAllString(raw, ""))
	if len(compact) >= SecretMinLength && base32Regex.MatchString(compact) {
		return compact
	}

	return base32RunRegex.FindString(strings.ToUpper(raw))
}

func extractYearAndPhone(s string) (year, phone string) {
	for _, y := range yearRegex.FindAllString(s, -1) {
		if IsYear(y) {
			year = y
			break
		}
	}

	for _, p := range phonePatterns {
		for _, candidate := range p.FindAllString(s, -1) {
			if n := NormalizePhone(candidate); IsPhoneNumber(n) {
				return year, n
			}
		}
	}
	return year, ""
}
