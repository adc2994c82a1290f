package models

import (
	"testing"
	"time"
)

func TestSearchSpec_Accepts(t *testing.T) {
	workstation := SearchSpec{Name: "Workstation Xeon", MaxPrice: 5000, MaxPages: 1, Keywords: []string{"xeon", "workstation"}}

	tests := []struct {
		name   string
		spec   SearchSpec
		title  string
		price  int
		accept bool
	}{
		{"keyword match under ceiling", workstation, "Dell Xeon Workstation", 4500, true},
		{"keyword match over ceiling", workstation, "Dell Xeon Workstation", 6000, false},
		{"case insensitive", workstation, "HP WORKSTATION Z440", 3000, true},
		{"no keyword match", workstation, "Gaming PC RTX 3070", 3000, false},
		{"price at ceiling", workstation, "Xeon E5 server", 5000, true},
		{"empty keywords accept on price", SearchSpec{MaxPrice: 15000}, "Stationär dator", 14999, true},
		{"below floor", SearchSpec{MinPrice: 100, MaxPrice: 15000}, "Tangentbord och mus", 50, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.spec.Accepts(Listing{Title: tt.title, Price: tt.price})
			if got != tt.accept {
				t.Errorf("Accepts(%q, %d) = %v, want %v", tt.title, tt.price, got, tt.accept)
			}
		})
	}
}

func TestParseTier(t *testing.T) {
	tests := map[string]Tier{
		"HOT":     TierHot,
		" good ":  TierGood,
		"fair":    TierFair,
		"BAD":     TierBad,
		"AMAZING": TierBad,
		"":        TierBad,
	}
	for in, want := range tests {
		if got := ParseTier(in); got != want {
			t.Errorf("ParseTier(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestTier_Notifiable(t *testing.T) {
	if !TierHot.Notifiable() || !TierGood.Notifiable() {
		t.Error("HOT and GOOD should be notifiable")
	}
	if TierFair.Notifiable() || TierBad.Notifiable() {
		t.Error("FAIR and BAD should not be notifiable")
	}
}

func TestFallbackVerdict(t *testing.T) {
	v := FallbackVerdict("evaluator unavailable")
	if v.Tier != TierBad {
		t.Errorf("Tier = %s, want BAD", v.Tier)
	}
	if v.EstimatedValue != 0 || v.EstimatedProfit != 0 || v.ProfitPercentage != 0 || v.ComparisonCount != 0 {
		t.Errorf("fallback figures should be zero, got %+v", v)
	}
}

func TestNewSeenRecord(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	l := Listing{ID: "1234567", Title: "RTX 3080 FE", Price: 4500, URL: "https://www.blocket.se/annons/1234567", Source: SourceBlocket}

	rec := NewSeenRecord(l, now)
	if rec.ID != l.ID || rec.Price != l.Price || rec.URL != l.URL || rec.Source != l.Source {
		t.Errorf("record fields not copied: %+v", rec)
	}
	if !rec.FirstSeenAt.Equal(now) || rec.FirstSeenAt.Location() != time.UTC {
		t.Errorf("FirstSeenAt = %v, want %v in UTC", rec.FirstSeenAt, now)
	}
}
