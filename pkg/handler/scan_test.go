package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantOK     bool
		wantMethod string
		wantTarget string
	}{
		{"request line", "GET /index.html HTTP/1.1\r\n", true, "GET", "/index.html"},
		{"no version", "GET /", true, "GET", "/"},
		{"leading whitespace", " \t\r\nGET   /x", true, "GET", "/x"},
		{"tabs between", "GET\t/x", true, "GET", "/x"},
		{"one token", "GET", false, "", ""},
		{"one token trailing space", "GET   \r\n", false, "", ""},
		{"empty", "", false, "", ""},
		{"nul ends input", "GET\x00/x", false, "", ""},
		{"method cut at 31", strings.Repeat("M", 35) + " /x", true, strings.Repeat("M", 31), "MMMM"},
		{"target cut at 1023", "GET /" + strings.Repeat("t", 1100), true, "GET", "/" + strings.Repeat("t", 1022)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ok := ParseRequestLine([]byte(tt.input))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMethod, req.Method)
			assert.Equal(t, tt.wantTarget, req.RawTarget)
		})
	}
}
