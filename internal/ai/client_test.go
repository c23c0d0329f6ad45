package ai

import "testing"

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"score": 7}`, `{"score": 7}`},
		{"json fence", "```json\n{\"score\": 7}\n```", `{"score": 7}`},
		{"plain fence", "```\n{\"score\": 7}\n```", `{"score": 7}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripJSONFences(tt.in); got != tt.want {
				t.Errorf("stripJSONFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
