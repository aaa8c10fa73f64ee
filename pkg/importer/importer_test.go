package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmpty(t *testing.T) {
	res := Parse("  \n ")
	assert.Empty(t, res.Accounts)
	assert.Empty(t, res.Notes)
}

func TestParseLines(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		check func(t *testing.T, res *Result)
	}{
		{
			name: "basic dashes",
			line: "test@gmail.com----password123",
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "test@gmail.com", res.Accounts[0].Email)
				assert.Equal(t, "password123", res.Accounts[0].Password)
			},
		},
		{
			name: "recovery and secret",
			line: "test@gmail.com----pass123----recovery@example.com----JBSWY3DPEHPK3PXP",
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "recovery@example.com", res.Accounts[0].Recovery)
				assert.Equal(t, "JBSWY3DPEHPK3PXP", res.Accounts[0].Secret)
			},
		},
		{
			name: "year and country",
			line: "test@gmail.com----pass123----2021----India",
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "2021", res.Accounts[0].RegYear)
				assert.Equal(t, "India", res.Accounts[0].Country)
			},
		},
		{
			name: "china mobile gets +86",
			line: "test@gmail.com----pass123----13812345678",
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "+8613812345678", res.Accounts[0].Phone)
			},
		},
		{
			name: "pipe separated",
			line: "test@gmail.com|pass123|recovery@example.com|JBSWY3DPEHPK3PXP",
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "pass123", res.Accounts[0].Password)
				assert.Equal(t, "recovery@example.com", res.Accounts[0].Recovery)
				assert.Equal(t, []string{"|"}, res.Stats.Separators)
			},
		},
		{
			name: "base32-looking password stays password",
			line: "DmDayouss559@gmail.com|gsygevwbm|DmDayouss55923433@merrce.site|wplvdtltztircw4k7jlafjkp6jfj6h5o",
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "gsygevwbm", res.Accounts[0].Password)
				assert.Equal(t, "DmDayouss55923433@merrce.site", res.Accounts[0].Recovery)
				assert.Equal(t, "WPLVDTLTZTIRCW4K7JLAFJKP6JFJ6H5O", res.Accounts[0].Secret)
			},
		},
		{
			name: "card and password form with tail",
			line: "卡号：GhshdbdKaocher68@gmail.com密码：Zhh10@666888xb22 ----GhshdbdKaocher6864647@raink.site ----razpoziyf6w5m4kpgfubrsbxuiaa3spv",
			check: func(t *testing.T, res *Result) {
				a := res.Accounts[0]
				assert.Equal(t, "GhshdbdKaocher68@gmail.com", a.Email)
				assert.Equal(t, "Zhh10@666888xb22", a.Password)
				assert.Equal(t, "GhshdbdKaocher6864647@raink.site", a.Recovery)
				assert.Equal(t, "RAZPOZIYF6W5M4KPGFUBRSBXUIAA3SPV", a.Secret)
				assert.Equal(t, 1, res.Stats.SpecialFormat)
				assert.Equal(t, []string{"----"}, res.Stats.Separators)
			},
		},
		{
			name: "card and password form secret only",
			line: "卡号：test@gmail.com密码：pass123----JBSWY3DPEHPK3PXP",
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "pass123", res.Accounts[0].Password)
				assert.Equal(t, "JBSWY3DPEHPK3PXP", res.Accounts[0].Secret)
			},
		},
		{
			name: "year and phone in one field",
			line: "jacinthee1jd666@gmail.com----9dj3xACGDER----rpyyjmhp3nnum@disbox.org----2021   -- 18024048401",
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "2021", res.Accounts[0].RegYear)
				assert.Equal(t, "+8618024048401", res.Accounts[0].Phone)
			},
		},
		{
			name: "2fa.live url",
			line: "test@gmail.com----pass123----https://2fa.live/tok/jbswy3dpehpk3pxp",
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "JBSWY3DPEHPK3PXP", res.Accounts[0].Secret)
			},
		},
		{
			name: "group prefix and tags",
			line: "成员2：a@gmail.com----pw <VIP> <重要>",
			check: func(t *testing.T, res *Result) {
				assert.Equal(t, "成员2", res.Accounts[0].GroupName)
				assert.Equal(t, "VIP 重要", res.Accounts[0].Remark)
				assert.Equal(t, "pw", res.Accounts[0].Password)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.line)
			require.Len(t, res.Accounts, 1)
			tt.check(t, res)
		})
	}
}

func TestParseSkipsAndInvalid(t *testing.T) {
	text := "# comment\n" +
		"https://example.com\n" +
		"第二组\n" +
		"账号集3\n" +
		"=========\n" +
		"```\n" +
		"test@gmail.com----pass123\r\n" +
		"\n" +
		"// another\n" +
		"notanemail----password\n" +
		"only-email@gmail.com\n" +
		"user@gmail.com----pass456"

	res := Parse(text)
	require.Len(t, res.Accounts, 2)
	assert.Equal(t, "pass123", res.Accounts[0].Password)
	assert.Equal(t, 2, res.Stats.InvalidLines)
	assert.Contains(t, res.Notes, "2 lines not imported (missing email/password or unrecognized format)")
}

func TestParseNotes(t *testing.T) {
	res := Parse("a@gmail.com----pass1----recovery@gmail.com\nb@gmail.com|pass2")
	require.Len(t, res.Accounts, 2)
	assert.Equal(t, []string{"----", "|"}, res.Stats.Separators)
	require.NotEmpty(t, res.Notes)
	assert.Contains(t, res.Notes[0], "separators")
	assert.Contains(t, res.Notes, "some lines have a recovery email (1 lines), some do not (1 lines)")
}

func TestDetectAndSplit(t *testing.T) {
	tests := []struct {
		line      string
		wantSep   string
		wantParts []string
	}{
		{"a----b----c", "----", []string{"a", "b", "c"}},
		{"a——b——c", "——", []string{"a", "b", "c"}},
		{"a---b---c", "---", []string{"a", "b", "c"}},
		{"a|b|c", "|", []string{"a", "b", "c"}},
		{"a--b--c", "--", []string{"a", "b", "c"}},
		{"a----b---c", "----", []string{"a", "b---c"}},
		{"test@gmail.com", NoSeparator, []string{"test@gmail.com"}},
		{"|a|b", NoSeparator, []string{"|a|b"}},
		{"a||b", NoSeparator, []string{"a||b"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			parts, sep := DetectAndSplit(tt.line)
			assert.Equal(t, tt.wantSep, sep)
			assert.Equal(t, tt.wantParts, parts)
		})
	}
}

func TestShouldSkipLine(t *testing.T) {
	for _, line := range []string{"", "   ", "# note", "// note", "http://x", "第1组", "第二组", "待加入", "--------", "```go"} {
		assert.True(t, ShouldSkipLine(line), line)
	}
	assert.False(t, ShouldSkipLine("test@gmail.com----password"))
}

func TestExtractHelpers(t *testing.T) {
	g, rest := ExtractGroup("主号：test@gmail.com")
	assert.Equal(t, "主号", g)
	assert.Equal(t, "test@gmail.com", rest)

	g, rest = ExtractGroup("test@gmail.com----pass")
	assert.Empty(t, g)
	assert.Equal(t, "test@gmail.com----pass", rest)

	assert.Equal(t, "VIP 重要", ExtractTags("test <VIP> <重要>"))
	assert.Equal(t, "test  content", CleanTags("test <VIP> content"))
}

func TestFieldPredicates(t *testing.T) {
	assert.True(t, IsEmail("user.name@example.co.uk"))
	assert.True(t, IsEmail("a@b.c"))
	assert.False(t, IsEmail("@gmail.com"))
	assert.False(t, IsEmail(""))

	assert.True(t, IsYear("2015"))
	assert.True(t, IsYear("2030"))
	assert.False(t, IsYear("2014"))
	assert.False(t, IsYear("2031"))
	assert.False(t, IsYear("abcd"))

	assert.True(t, IsCountry("China"))
	assert.True(t, IsCountry(" south africa "))
	assert.False(t, IsCountry("password123"))
}

func TestExtractSecret(t *testing.T) {
	tests := map[string]string{
		"JBSWY3DPEHPK3PXP":                     "JBSWY3DPEHPK3PXP",
		"https://2fa.live/ok/jbswy3dpehpk3pxp": "JBSWY3DPEHPK3PXP",
		"JBSW Y3DP EHPK 3PXP":                  "JBSWY3DPEHPK3PXP",
		"JBSWY3DPEHPK3PXP --<note>":            "JBSWY3DPEHPK3PXP",
		"short":                                "",
		"password123":                          "",
		"":                                     "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractSecret(in), in)
	}
}
