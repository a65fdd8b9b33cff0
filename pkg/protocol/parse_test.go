package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrim(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"GET_TEMP", "GET_TEMP"},
		{"  \tGET_TEMP", "GET_TEMP"},
		{"GET_TEMP \t\r\n", "GET_TEMP"},
		{" \t ", ""},
		{"SET_PWM = 5", "SET_PWM = 5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Trim(tt.in), "Trim(%q)", tt.in)
	}
}

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Command
		wantErr error
	}{
		{
			name: "command only",
			line: `{"type":"cmd","command":"GET_TEMP"}`,
			want: Command{Form: Structured, Name: "GET_TEMP"},
		},
		{
			name: "with params",
			line: `{"type":"cmd","command":"SET_PWM","params":{"duty":50}}`,
			want: Command{Form: Structured, Name: "SET_PWM", Params: `{"duty":50}`},
		},
		{
			name: "host key order with timestamp",
			line: `{"command":"SET_LED","params":{"state":1},"timestamp":"2024-01-01T00:00:00","type":"cmd"}`,
			want: Command{Form: Structured, Name: "SET_LED", Params: `{"state":1}`},
		},
		{
			name: "whitespace around colon",
			line: `{ "type" : "cmd", "command" : "STATUS", "params" : { "a" : 1 } }`,
			want: Command{Form: Structured, Name: "STATUS", Params: `{ "a" : 1 }`},
		},
		{
			name: "nested params matched",
			line: `{"command":"X","params":{"a":{"b":2},"c":3}}`,
			want: Command{Form: Structured, Name: "X", Params: `{"a":{"b":2},"c":3}`},
		},
		{
			name: "type value named command",
			line: `{"type":"command","command":"RESET"}`,
			want: Command{Form: Structured, Name: "RESET"},
		},
		{
			name: "unterminated params ignored",
			line: `{"command":"SET_PWM","params":{"duty":50`,
			want: Command{Form: Structured, Name: "SET_PWM"},
		},
		{
			name:    "missing command",
			line:    `{"type":"cmd","cmd":"GET_TEMP"}`,
			wantErr: ErrFieldNotFound,
		},
		{
			name:    "command not a string",
			line:    `{"command":5}`,
			wantErr: ErrFieldNotFound,
		},
		{
			name:    "unterminated command",
			line:    `{"command":"GET_TE`,
			wantErr: ErrFieldNotFound,
		},
		{
			name:    "legacy line",
			line:    "GET_TEMP",
			wantErr: ErrNotStructured,
		},
		{
			name:    "empty",
			line:    "",
			wantErr: ErrNotStructured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStructured(tt.line)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseStructured_Truncates(t *testing.T) {
	long := strings.Repeat("N", 100)
	got, err := ParseStructured(`{"command":"` + long + `","params":{"k":"` + strings.Repeat("v", 200) + `"}}`)
	require.NoError(t, err)
	assert.Len(t, got.Name, MaxNameLen)
	assert.Len(t, got.Params, MaxParamsLen)
}

func TestParse_FallsBackToLegacy(t *testing.T) {
	line := `{"type":"cmd","cmd":"GET_TEMP"}`
	got := Parse(line)
	assert.Equal(t, Legacy, got.Form)
	assert.Equal(t, line, got.Name)

	got = Parse("SET_PWM=50")
	assert.Equal(t, Command{Form: Legacy, Name: "SET_PWM", Value: "50", HasArg: true}, got)
}

func TestParseLegacy(t *testing.T) {
	assert.Equal(t, Command{Form: Legacy, Name: "STATUS"}, ParseLegacy("STATUS"))
	assert.Equal(t, Command{Form: Legacy, Name: "SET_LED", Value: "1", HasArg: true}, ParseLegacy("SET_LED=1"))
	assert.Equal(t, Command{Form: Legacy, Name: "SET_LED", Value: "", HasArg: true}, ParseLegacy("SET_LED="))
	assert.Equal(t, Command{Form: Legacy, Name: "A", Value: "b=c", HasArg: true}, ParseLegacy("A=b=c"))
}

func TestAtoi(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"50", 50},
		{"  42", 42},
		{"-7", -7},
		{"+3", 3},
		{"12abc", 12},
		{"50}", 50},
		{"abc", 0},
		{"", 0},
		{"-", 0},
		{"99999999999", 2147483647},
		{"-99999999999", -2147483648},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Atoi(tt.in), "Atoi(%q)", tt.in)
	}
}

func TestIntField(t *testing.T) {
	v, err := IntField(`{"duty":75}`, "duty")
	require.NoError(t, err)
	assert.Equal(t, 75, v)

	v, err = IntField(`{"state": 1}`, "state")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = IntField(`{"interval":2000,"x":1}`, "interval")
	require.NoError(t, err)
	assert.Equal(t, 2000, v)

	_, err = IntField(`{"speed":75}`, "duty")
	assert.ErrorIs(t, err, ErrFieldNotFound)

	_, err = IntField("", "duty")
	assert.ErrorIs(t, err, ErrFieldNotFound)
}
