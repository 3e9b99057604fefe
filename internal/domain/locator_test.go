package domain

import "testing"

func TestLocator_Validate(t *testing.T) {
	tests := []struct {
		name    string
		locator Locator
		wantErr bool
	}{
		{"href only", Locator{Href: "/c1"}, false},
		{"bounds inclusive", Locator{Href: "/c1", Locations: &Locations{Progression: Float64(0), TotalProgression: Float64(1)}}, false},
		{"missing href", Locator{Href: "  "}, true},
		{"negative progression", Locator{Href: "/c1", Locations: &Locations{Progression: Float64(-0.1)}}, true},
		{"total progression above one", Locator{Href: "/c1", Locations: &Locations{TotalProgression: Float64(1.01)}}, true},
		{"negative position", Locator{Href: "/c1", Locations: &Locations{Position: Int(-1)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.locator.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLocator_Fingerprint(t *testing.T) {
	base := Locator{
		Href:      "/c1",
		MediaType: "application/xhtml+xml",
		Locations: &Locations{Position: Int(3), Progression: Float64(0.5), TotalProgression: Float64(0.2)},
	}

	tests := []struct {
		name  string
		other Locator
		same  bool
	}{
		{
			name:  "identical",
			other: base,
			same:  true,
		},
		{
			name: "title and text ignored",
			other: Locator{
				Href:      "/c1",
				Title:     String("Chapter"),
				Text:      &LocatorText{Highlight: String("whale")},
				Locations: &Locations{Position: Int(3), Progression: Float64(0.5), TotalProgression: Float64(0.2)},
			},
			same: true,
		},
		{
			name:  "different href",
			other: Locator{Href: "/c2", Locations: base.Locations},
			same:  false,
		},
		{
			name:  "different progression",
			other: Locator{Href: "/c1", Locations: &Locations{Position: Int(3), Progression: Float64(0.6), TotalProgression: Float64(0.2)}},
			same:  false,
		},
		{
			name:  "missing locations",
			other: Locator{Href: "/c1"},
			same:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.Fingerprint() == tt.other.Fingerprint()
			if got != tt.same {
				t.Fatalf("expected same=%v for %q vs %q", tt.same, base.Fingerprint(), tt.other.Fingerprint())
			}
		})
	}

	var nilLocator *Locator
	if nilLocator.Fingerprint() != "" {
		t.Fatalf("expected empty fingerprint for nil locator")
	}
}
