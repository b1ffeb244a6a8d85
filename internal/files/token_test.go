package files

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "plain", input: "report.pdf", expected: "report.pdf"},
		{name: "traversal", input: "a/../b.txt", expected: "a_.._b.txt"},
		{name: "windows separators", input: `C:\temp\x.png`, expected: "C_temp_x.png"},
		{name: "reserved characters", input: `a<b>c|d?e*f"g`, expected: "a_b_c_d_e_f_g"},
		{name: "control characters", input: "a\x00b\nc", expected: "a_b_c"},
		{name: "empty", input: "", expected: "file"},
		{name: "only separators", input: "///", expected: "file"},
		{name: "dot dot", input: "..", expected: "file"},
		{name: "unicode kept", input: "größe.txt", expected: "größe.txt"},
		{name: "single dot", input: ".", expected: "file"},
		{name: "trailing dots and spaces", input: " notes.txt. . ", expected: "notes.txt"},
		{name: "leading dot kept", input: ".env", expected: ".env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeName(tt.input))
		})
	}
}

func TestSanitizeNameTruncates(t *testing.T) {
	name := SanitizeName(strings.Repeat("é", 300))

	assert.LessOrEqual(t, len(name), maxNameLength)
	assert.True(t, strings.HasPrefix(strings.Repeat("é", 300), name))
}

func TestSanitizeNameIsStable(t *testing.T) {
	inputs := []string{
		strings.Repeat("a", 199) + " report.txt",
		strings.Repeat("a", 199) + ". report.txt",
		strings.Repeat("a", 200) + "report.txt",
		strings.Repeat("é", 99) + "a .txt",
		strings.Repeat(" ", 250) + "x",
		"a/../b.txt",
	}

	for _, input := range inputs {
		once := SanitizeName(input)
		assert.Equal(t, once, SanitizeName(once), "input %q", input)
		assert.LessOrEqual(t, len(once), maxNameLength)
		assert.False(t, strings.HasSuffix(once, " "), "input %q", input)

		name, err := ParseToken(NewToken(input))
		require.NoError(t, err, "input %q", input)
		assert.Equal(t, once, name)
	}
}

func TestSanitizeNameCutAtSpace(t *testing.T) {
	name := SanitizeName(strings.Repeat("a", 199) + " report.txt")

	assert.Equal(t, strings.Repeat("a", 199), name)
}

func TestNewTokenRoundTrip(t *testing.T) {
	token := NewToken("a/../b.txt")

	assert.NotContains(t, token, "/")
	assert.LessOrEqual(t, len(token), MaxTokenLength)

	name, err := ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "a_.._b.txt", name)
}

func TestNewTokenIsUnique(t *testing.T) {
	assert.NotEqual(t, NewToken("same.txt"), NewToken("same.txt"))
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "bare uuid", token: "0b6a3f5e-9f43-4f7e-8f3c-2d1d8f0f4a11"},
		{name: "missing separator", token: "0b6a3f5e-9f43-4f7e-8f3c-2d1d8f0f4a11xname"},
		{name: "not a uuid", token: "not-a-uuid-at-all-not-a-uuid-at-all_name.txt"},
		{name: "path separator", token: "0b6a3f5e-9f43-4f7e-8f3c-2d1d8f0f4a11_../etc/passwd"},
		{name: "too long", token: "0b6a3f5e-9f43-4f7e-8f3c-2d1d8f0f4a11_" + strings.Repeat("x", 1024)},
		{name: "invalid utf8", token: "0b6a3f5e-9f43-4f7e-8f3c-2d1d8f0f4a11_\xff\xfe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
