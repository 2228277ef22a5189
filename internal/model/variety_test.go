package model

import (
	"errors"
	"testing"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ISO日時", "2024-09-15T00:00:00.000Z", "2024-09-15"},
		{"日付のみ", "2024-09-15", "2024-09-15"},
		{"空文字列", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDate(tt.in); got != tt.want {
				t.Errorf("NormalizeDate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormFromVariety_CopiesFieldsAndNormalizesDate(t *testing.T) {
	v := &AppleVariety{
		ID:           "v1",
		Title:        "Honeycrisp",
		Description:  "Crisp",
		Origin:       "USA",
		TastingNotes: "Sweet",
		HarvestDate:  "2024-09-15T00:00:00.000Z",
	}

	f := FormFromVariety(v)

	want := VarietyForm{
		Title:        "Honeycrisp",
		Description:  "Crisp",
		Origin:       "USA",
		TastingNotes: "Sweet",
		HarvestDate:  "2024-09-15",
	}
	if f != want {
		t.Errorf("FormFromVariety = %+v, want %+v", f, want)
	}
}

func TestVarietyForm_Validate(t *testing.T) {
	if err := (VarietyForm{Title: "Fuji"}).Validate(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	for _, title := range []string{"", "   "} {
		err := VarietyForm{Title: title, Origin: "Japan"}.Validate()
		if err == nil {
			t.Fatalf("title %q: expected validation error", title)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Code != ErrCodeValidationFailed {
			t.Errorf("title %q: error = %v, want %s", title, err, ErrCodeValidationFailed)
		}
	}
}

func TestVarietyForm_Fields_EmptyHarvestDateIsNull(t *testing.T) {
	fields := VarietyForm{Title: "Gala"}.Fields()
	if v, ok := fields["harvestDate"]; !ok || v != nil {
		t.Errorf("harvestDate = %v, want nil", v)
	}

	fields = VarietyForm{Title: "Gala", HarvestDate: "2024-10-01"}.Fields()
	if fields["harvestDate"] != "2024-10-01" {
		t.Errorf("harvestDate = %v, want 2024-10-01", fields["harvestDate"])
	}
	if fields["title"] != "Gala" {
		t.Errorf("title = %v, want Gala", fields["title"])
	}
}

func TestAppleVariety_ThumbnailURL(t *testing.T) {
	v := &AppleVariety{}
	if v.ThumbnailURL() != "" {
		t.Error("expected empty thumbnail URL")
	}
	v.Image = &VarietyImage{Thumbnail: &ImageSize{URL: "https://cdn.example.com/t.jpg"}}
	if v.ThumbnailURL() != "https://cdn.example.com/t.jpg" {
		t.Errorf("ThumbnailURL = %q", v.ThumbnailURL())
	}
}

func TestUser_DisplayName(t *testing.T) {
	if got := (&User{Name: "Ann", Email: "ann@example.com"}).DisplayName(); got != "Ann" {
		t.Errorf("DisplayName = %q, want Ann", got)
	}
	if got := (&User{Email: "ann@example.com"}).DisplayName(); got != "ann@example.com" {
		t.Errorf("DisplayName = %q, want email", got)
	}
	var u *User
	if got := u.DisplayName(); got != "" {
		t.Errorf("nil DisplayName = %q, want empty", got)
	}
}
