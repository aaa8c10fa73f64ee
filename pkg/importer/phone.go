package importer

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// DefaultCountryCode is assumed for numbers without a recognizable prefix.
const DefaultCountryCode = "86"

const (
	minLocalLength = 6
	maxLocalLength = 14
)

// dialingCodes is ordered longest first so a longer code wins over its prefix.
var dialingCodes = func() []string {
	codes := []string{
		"1", "7", "20", "27", "30", "31", "32", "33", "34", "36", "39",
		"40", "41", "43", "44", "45", "46", "47", "48", "49",
		"51", "52", "53", "54", "55", "56", "57", "58",
		"60", "61", "62", "63", "64", "65", "66",
		"81", "82", "84", "86", "90", "91", "92", "93", "94", "95", "98",
		"212", "213", "216", "218", "220", "221", "222", "223", "224", "225", "226", "227", "228", "229",
		"230", "231", "232", "233", "234", "235", "236", "237", "238", "239",
		"240", "241", "242", "243", "244", "245", "246", "248", "249",
		"250", "251", "252", "253", "254", "255", "256", "257", "258",
		"260", "261", "262", "263", "264", "265", "266", "267", "268", "269",
		"290", "291", "297", "298", "299",
		"350", "351", "352", "353", "354", "355", "356", "357", "358", "359",
		"370", "371", "372", "373", "374", "375", "376", "377", "378", "380",
		"381", "382", "383", "385", "386", "387", "389",
		"420", "421", "423",
		"500", "501", "502", "503", "504", "505", "506", "507", "508", "509",
		"591", "592", "593", "594", "595", "596", "597", "598", "599",
		"670", "672", "673", "674", "675", "676", "677", "678", "679", "680", "681", "682", "683", "685", "686", "687", "688", "689", "690", "691", "692",
		"850", "852", "853", "855", "856", "880", "886",
		"960", "961", "962", "963", "964", "965", "966", "967", "968", "970", "971", "972", "973", "974", "975", "976", "977",
	}
	sort.SliceStable(codes, func(i, j int) bool { return len(codes[i]) > len(codes[j]) })
	return codes
}()

var dialingCodeSet = func() map[string]bool {
	m := make(map[string]bool, len(dialingCodes))
	for _, c := range dialingCodes {
		m[c] = true
	}
	return m
}()

type countryHint struct {
	hint, code string
}

// countryHints maps country words next to a number to a dialing code.
// Order matters for substring matching.
var countryHints = []countryHint{
	{"cn", "86"}, {"china", "86"}, {"中国", "86"},
	{"us", "1"}, {"usa", "1"}, {"unitedstates", "1"}, {"美国", "1"},
	{"uk", "44"}, {"gb", "44"}, {"britain", "44"}, {"england", "44"}, {"英国", "44"},
	{"jp", "81"}, {"japan", "81"}, {"日本", "81"},
	{"kr", "82"}, {"korea", "82"}, {"韩国", "82"},
	{"vn", "84"}, {"vietnam", "84"}, {"越南", "84"},
	{"in", "91"}, {"india", "91"}, {"印度", "91"},
	{"ru", "7"}, {"russia", "7"}, {"俄罗斯", "7"},
	{"de", "49"}, {"germany", "49"}, {"德国", "49"},
	{"fr", "33"}, {"france", "33"}, {"法国", "33"},
	{"br", "55"}, {"brazil", "55"}, {"巴西", "55"},
	{"mx", "52"}, {"mexico", "52"}, {"墨西哥", "52"},
	{"sg", "65"}, {"singapore", "65"}, {"新加坡", "65"},
	{"my", "60"}, {"malaysia", "60"}, {"马来西亚", "60"},
	{"id", "62"}, {"indonesia", "62"}, {"印度尼西亚", "62"},
	{"ph", "63"}, {"philippines", "63"}, {"菲律宾", "63"},
	{"th", "66"}, {"thailand", "66"}, {"泰国", "66"},
	{"hk", "852"}, {"hongkong", "852"}, {"香港", "852"},
	{"tw", "886"}, {"taiwan", "886"}, {"台湾", "886"},
	{"mo", "853"}, {"macao", "853"}, {"macau", "853"}, {"澳门", "853"},
	{"ca", "1"}, {"canada", "1"}, {"加拿大", "1"},
	{"au", "61"}, {"australia", "61"}, {"澳大利亚", "61"},
	{"nz", "64"}, {"newzealand", "64"}, {"新西兰", "64"},
}

var countryHintIndex = func() map[string]string {
	m := make(map[string]string, len(countryHints))
	for _, h := range countryHints {
		m[h.hint] = h.code
	}
	return m
}()

var (
	explicitCodeRegex = regexp.MustCompile(`(?:^|[^\d])\+\s*\d{1,4}`)
	nonDigitRegex     = regexp.MustCompile(`[^\d]`)
	nonDialRegex      = regexp.MustCompile(`[^\d+]`)
	digitRunRegex     = regexp.MustCompile(`\d+`)
	hintTokenRegex    = regexp.MustCompile(`[A-Za-z\x{4e00}-\x{9fff}]+`)
	nonHintRegex      = regexp.MustCompile(`[^A-Za-z\x{4e00}-\x{9fff}]`)
	hintNoiseRegex    = regexp.MustCompile(`[\s._-]`)
	cnMobileRegex     = regexp.MustCompile(`^1[3-9]\d{9}$`)
	e164Regex         = regexp.MustCompile(`^\+\d{8,18}$`)
)

// foldPhone narrows full-width digits and the full-width plus sign.
var foldPhone = runes.If(runes.Predicate(func(r rune) bool {
	return (r >= '０' && r <= '９') || r == '＋'
}), width.Fold, nil)

// NormalizePhone converts a phone number written in any common style to
// E.164 ("+<code><number>"). Resolution order: an explicit "+" code, a
// "00"/"011" international prefix, a country word such as "CN" or "美国",
// a separated leading code ("44 7700 900123"), a mainland China mobile
// number, a known leading dialing code, and finally DefaultCountryCode.
func NormalizePhone(value string) string {
	raw, _, err := transform.String(foldPhone, value)
	if err != nil {
		raw = value
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	digits := nonDigitRegex.ReplaceAllString(raw, "")
	if digits == "" {
		return ""
	}

	if explicitCodeRegex.MatchString(raw) {
		return "+" + digits
	}

	compact := nonDialRegex.ReplaceAllString(raw, "")
	if strings.HasPrefix(compact, "00") && len(digits) > 2 {
		return "+" + digits[2:]
	}
	if strings.HasPrefix(compact, "011") && len(digits) > 3 {
		return "+" + digits[3:]
	}

	if code := codeFromHint(raw); code != "" {
		if strings.HasPrefix(digits, code) && len(digits)-len(code) >= minLocalLength {
			return "+" + digits
		}
		return "+" + code + digits
	}

	if n := segmentedNumber(raw); n != "" {
		return n
	}

	if cnMobileRegex.MatchString(digits) {
		return "+" + DefaultCountryCode + digits
	}
	if codeFromLeadingDigits(digits) != "" {
		return "+" + digits
	}
	if strings.HasPrefix(digits, DefaultCountryCode) && len(digits) >= 10 {
		return "+" + digits
	}
	return "+" + DefaultCountryCode + digits
}

// IsPhoneNumber reports whether s normalizes to a plausible E.164 number.
func IsPhoneNumber(s string) bool {
	if s == "" {
		return false
	}
	return e164Regex.MatchString(NormalizePhone(s))
}

func hintKey(s string) string {
	return hintNoiseRegex.ReplaceAllString(strings.ToLower(s), "")
}

func codeFromHint(raw string) string {
	for _, tok := range hintTokenRegex.FindAllString(raw, -1) {
		if code, ok := countryHintIndex[hintKey(tok)]; ok {
			return code
		}
	}

	letters := hintKey(nonHintRegex.ReplaceAllString(raw, ""))
	if letters == "" {
		return ""
	}
	for _, h := range countryHints {
		if strings.Contains(letters, h.hint) {
			return h.code
		}
	}
	return ""
}

func codeFromLeadingDigits(digits string) string {
	for _, code := range dialingCodes {
		if !strings.HasPrefix(digits, code) {
			continue
		}
		if local := len(digits) - len(code); local >= minLocalLength && local <= maxLocalLength {
			return code
		}
	}
	return ""
}

func segmentedNumber(raw string) string {
	tokens := digitRunRegex.FindAllString(raw, -1)
	if len(tokens) < 2 {
		return ""
	}

	code := tokens[0]
	if strings.HasPrefix(code, "00") && len(code) > 2 {
		code = code[2:]
	}
	if strings.HasPrefix(code, "011") && len(code) > 3 {
		code = code[3:]
	}
	if !dialingCodeSet[code] {
		return ""
	}

	local := strings.Join(tokens[1:], "")
	if len(local) < minLocalLength || len(local) > maxLocalLength {
		return ""
	}
	return "+" + code + local
}
