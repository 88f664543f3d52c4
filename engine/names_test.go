package engine

import "testing"

func TestHostName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"poll", "poll"},
		{"get-value", "get_value"},
		{"UserID", "user_id"},
		{"Name", "name"},
		{"parseHTTPHeader", "parse_http_header"},
		{"HTTPServer", "http_server"},
		{"Field2", "field2"},
		{"open-at", "open_at"},
		{"already_snake", "already_snake"},
		{"Some_Mixed", "some_mixed"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := HostName(tt.input)
			if result != tt.expected {
				t.Errorf("HostName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestValidIdent(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"ValueError", true},
		{"_private", true},
		{"x1", true},
		{"1x", false},
		{"", false},
		{"a-b", false},
		{"a.b", false},
	}

	for _, tt := range tests {
		if got := ValidIdent(tt.input); got != tt.valid {
			t.Errorf("ValidIdent(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}
