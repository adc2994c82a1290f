package util

import (
	"net/url"
	"testing"
)

func TestCleanNumericString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"12 345", "12345"},
		{"12\u00a0345", "12345"},
		{"4 500 kr", "4500"},
		{"kr", ""},
	}
	for _, tt := range tests {
		if got := CleanNumericString(tt.input); got != tt.want {
			t.Errorf("CleanNumericString(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCollapseSpace(t *testing.T) {
	if got := CollapseSpace("  Gaming \n\t PC  "); got != "Gaming PC" {
		t.Errorf("CollapseSpace() = %q", got)
	}
}

func TestCanonicalURL(t *testing.T) {
	base, _ := url.Parse("https://www.blocket.se/annonser/hela_sverige?q=rtx")

	tests := []struct {
		name    string
		href    string
		want    string
		wantErr bool
	}{
		{
			name: "Relative listing path",
			href: "/annons/stockholm/rtx_3080/1098765432",
			want: "https://www.blocket.se/annons/stockholm/rtx_3080/1098765432",
		},
		{
			name: "Strips query and fragment",
			href: "https://www.blocket.se/recommerce/forsale/item/12345678?ref=search#top",
			want: "https://www.blocket.se/recommerce/forsale/item/12345678",
		},
		{
			name: "Forces https and trims slash",
			href: "http://www.blocket.se/annons/1098765432/",
			want: "https://www.blocket.se/annons/1098765432",
		},
		{
			name: "Local host keeps scheme",
			href: "http://127.0.0.1:8080/annons/1234",
			want: "http://127.0.0.1:8080/annons/1234",
		},
		{
			name:    "Empty href",
			href:    "  ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(base, tt.href)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CanonicalURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CanonicalURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"Subdomain", "www.blocket.se", "blocket.se"},
		{"Bare domain", "blocket.se", "blocket.se"},
		{"Two-part TLD", "shop.example.co.uk", "example.co.uk"},
		{"With port", "www.blocket.se:443", "blocket.se"},
		{"IP address", "127.0.0.1", "127.0.0.1"},
		{"Localhost", "localhost", "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RegistrableDomain(tt.input); got != tt.want {
				t.Errorf("RegistrableDomain() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSameSite(t *testing.T) {
	if !SameSite("www.blocket.se", "blocket.se") {
		t.Error("www.blocket.se and blocket.se should be the same site")
	}
	if SameSite("www.blocket.se", "tradera.com") {
		t.Error("blocket.se and tradera.com should differ")
	}
}
