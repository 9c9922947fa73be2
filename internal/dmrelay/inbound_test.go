package dmrelay

import "testing"

func TestTruncateToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short token kept whole", in: "short", want: "short"},
		{name: "exactly twelve kept whole", in: "123456789012", want: "123456789012"},
		{name: "long token redacted", in: "abcdefghijklmnopqrstuvwxyz", want: "abcdefgh…wxyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := truncateToken(tt.in); got != tt.want {
				t.Errorf("truncateToken(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
