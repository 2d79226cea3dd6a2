package middleware

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{
			"UUID replacement",
			"/api/links/550e8400-e29b-41d4-a716-446655440000/clicks",
			"/api/links/:id/clicks",
		},
		{
			"redirect path collapsed",
			"/abcXYZ12",
			"/:code",
		},
		{
			"custom code collapsed",
			"/my-link_1",
			"/:code",
		},
		{
			"numeric ID replacement",
			"/api/links/12345",
			"/api/links/:id",
		},
		{
			"root path unchanged",
			"/",
			"/",
		},
		{
			"health endpoint collapsed like a code",
			"/health",
			"/:code",
		},
		{
			"api prefix unchanged",
			"/api/links",
			"/api/links",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizePath(tt.path)
			if got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
