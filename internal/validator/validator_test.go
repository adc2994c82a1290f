package validator

import (
	"testing"

	"github.com/pauljones0/flipscout/internal/models"
)

func TestValidator_ValidateStruct(t *testing.T) {
	v := New()

	valid := models.Listing{
		ID:     "1098765432",
		Title:  "Gaming PC RTX 3080",
		Price:  7500,
		URL:    "https://www.blocket.se/annons/stockholm/gaming_pc/1098765432",
		Source: models.SourceBlocket,
	}

	tests := []struct {
		name    string
		mutate  func(l *models.Listing)
		wantErr bool
	}{
		{"Valid Listing", func(l *models.Listing) {}, false},
		{"Missing ID", func(l *models.Listing) { l.ID = "" }, true},
		{"Non-numeric ID", func(l *models.Listing) { l.ID = "blocket_abc" }, true},
		{"Short Title", func(l *models.Listing) { l.Title = "PC" }, true},
		{"Zero Price", func(l *models.Listing) { l.Price = 0 }, true},
		{"Relative URL", func(l *models.Listing) { l.URL = "/annons/1098765432" }, true},
		{"Bad Image URL", func(l *models.Listing) { l.Image = "not a url" }, true},
		{"Optional fields empty", func(l *models.Listing) { l.Location = ""; l.Image = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := valid
			tt.mutate(&l)
			if err := v.ValidateStruct(l); (err != nil) != tt.wantErr {
				t.Errorf("ValidateStruct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidator_SearchSpec(t *testing.T) {
	v := New()

	tests := []struct {
		name    string
		spec    models.SearchSpec
		wantErr bool
	}{
		{"Query search", models.SearchSpec{Name: "rtx", Query: "rtx 3080", MaxPrice: 8000, MaxPages: 2}, false},
		{"Category search", models.SearchSpec{Name: "all", CategoryPath: "/annonser/hela_sverige/elektronik", MaxPrice: 15000, MaxPages: 1}, false},
		{"Neither query nor category", models.SearchSpec{Name: "none", MaxPrice: 100, MaxPages: 1}, true},
		{"Zero page budget", models.SearchSpec{Name: "rtx", Query: "rtx", MaxPrice: 8000}, true},
		{"Ceiling below floor", models.SearchSpec{Name: "rtx", Query: "rtx", MinPrice: 500, MaxPrice: 100, MaxPages: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.ValidateStruct(tt.spec); (err != nil) != tt.wantErr {
				t.Errorf("ValidateStruct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
