package importer

import (
	"regexp"
	"strings"

	"github.com/forest6511/acctvault/pkg/vault"
)

// NoSeparator is reported for lines that were not split.
const NoSeparator = "none"

var (
	groupHeaderRegex = regexp.MustCompile(`^第(?:\d+|[一二三四五六七八九十百千万]+)组`)
	accountSetRegex  = regexp.MustCompile(`^账号集\d+`)
	ruleLineRegex    = regexp.MustCompile(`^[-—=]+$`)
	groupPrefixRegex = regexp.MustCompile(`^(主号|成员\d+)[：:]\s*`)
	tagRegex         = regexp.MustCompile(`<([^>]+)>`)
	specialRegex     = regexp.MustCompile(`卡号[：:]\s*(.+?)\s*密码[：:]\s*(.+?)(?:\s*(----|\||——|---|--)\s*(.*))?$`)
)

// ShouldSkipLine reports whether a line carries no account: blank lines,
// code fences, comments, bare URLs, section headers and rule lines.
func ShouldSkipLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return true
	case strings.HasPrefix(trimmed, "```"):
		return true
	case strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, "//"):
		return true
	case strings.HasPrefix(trimmed, "http://"), strings.HasPrefix(trimmed, "https://"):
		return true
	case groupHeaderRegex.MatchString(trimmed),
		strings.HasPrefix(trimmed, "待加入"),
		accountSetRegex.MatchString(trimmed),
		ruleLineRegex.MatchString(trimmed):
		return true
	}
	return false
}

// ExtractGroup strips a "主号:" / "成员N:" prefix and returns it as the group.
func ExtractGroup(line string) (group, rest string) {
	m := groupPrefixRegex.FindStringSubmatch(line)
	if m == nil {
		return "", line
	}
	return m[1], line[len(m[0]):]
}

// ExtractTags joins the contents of <tag> annotations with spaces.
func ExtractTags(s string) string {
	var tags []string
	for _, m := range tagRegex.FindAllStringSubmatch(s, -1) {
		tags = append(tags, m[1])
	}
	return strings.Join(tags, " ")
}

// CleanTags removes <tag> annotations.
func CleanTags(s string) string {
	return strings.TrimSpace(tagRegex.ReplaceAllString(s, ""))
}

// DetectAndSplit splits a line on the first separator that applies, in
// order: "|", "----", "——", "---", "--". A pipe only counts when the line
// neither starts nor ends with one and no part is empty.
func DetectAndSplit(line string) (parts []string, sep string) {
	if strings.Contains(line, "|") {
		if strings.HasPrefix(line, "|") || strings.HasSuffix(line, "|") {
			return []string{line}, NoSeparator
		}
		parts := strings.Split(line, "|")
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				return []string{line}, NoSeparator
			}
		}
		return parts, "|"
	}
	for _, sep := range []string{"----", "——", "---", "--"} {
		if strings.Contains(line, sep) {
			return strings.Split(line, sep), sep
		}
	}
	return []string{line}, NoSeparator
}

func nonEmpty(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseStandardLine(line, group, remark string) (*vault.Input, string) {
	raw, sep := DetectAndSplit(line)
	parts := nonEmpty(raw)

	emailIdx := -1
	for i, p := range parts {
		if IsEmail(p) {
			emailIdx = i
			break
		}
	}
	if emailIdx < 0 || emailIdx+1 >= len(parts) || IsEmail(parts[emailIdx+1]) {
		return nil, sep
	}

	in := &vault.Input{
		Email:     parts[emailIdx],
		Password:  parts[emailIdx+1],
		GroupName: group,
		Remark:    remark,
	}
	parseTailFields(parts[emailIdx+2:], in)
	return in, sep
}

// parseSpecialLine handles "卡号：<email> 密码：<password> [sep rest]".
// ok is false when the line is not in that form at all.
func parseSpecialLine(line, group, remark string) (in *vault.Input, sep string, ok bool) {
	m := specialRegex.FindStringSubmatch(line)
	if m == nil {
		return nil, "", false
	}

	email, password := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	sep = m[3]
	if sep == "" {
		sep = NoSeparator
	}
	if !IsEmail(email) || password == "" {
		return nil, sep, true
	}

	in = &vault.Input{
		Email:     email,
		Password:  password,
		GroupName: group,
		Remark:    remark,
	}
	if rest := strings.TrimSpace(m[4]); rest != "" {
		parts, _ := DetectAndSplit(rest)
		parseTailFields(nonEmpty(parts), in)
	}
	return in, sep, true
}

// parseTailFields fills empty slots of in; the first match for each wins.
func parseTailFields(fields []string, in *vault.Input) {
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}

		if in.Recovery == "" && IsEmail(f) {
			in.Recovery = f
			continue
		}

		year, phone := extractYearAndPhone(f)
		if in.RegYear == "" {
			in.RegYear = year
		}
		if in.Phone == "" {
			in.Phone = phone
		}
		if in.Secret == "" {
			in.Secret = ExtractSecret(f)
		}
		if in.Country == "" && IsCountry(f) {
			in.Country = f
		}
	}
}
