package validation

import "testing"

func TestNormalizeISBN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"hyphens drop", "978-0-441-01359-3", "9780441013593"},
		{"spaces drop", "978 0 441 01359 3", "9780441013593"},
		{"surrounding whitespace drops", "  0441013593  ", "0441013593"},
		{"check digit uppercased", "0-19-852663-x", "019852663X"},
		{"already canonical", "9780441013593", "9780441013593"},
		{"junk survives for rejection", "not-an-isbn", "notanisbn"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeISBN(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeISBN(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsValidISBN(t *testing.T) {
	tests := []struct {
		isbn string
		want bool
	}{
		{"9780441013593", true},
		{"0441013593", true},
		{"043942089X", true},
		{"978044101359X", false},
		{"04394X0893", false},
		{"12345", false},
		{"97804410135931", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.isbn, func(t *testing.T) {
			got := isValidISBN(tt.isbn)
			if got != tt.want {
				t.Errorf("isValidISBN(%q) = %v, want %v", tt.isbn, got, tt.want)
			}
		})
	}
}
