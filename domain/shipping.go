package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

type Country string

const (
	CountryNigeria       Country = "Nigeria"
	CountryUnitedKingdom Country = "United Kingdom"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type ShippingDetails struct {
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	Phone      string  `json:"phone"`
	Address    string  `json:"address"`
	City       string  `json:"city"`
	PostalCode string  `json:"postal_code"`
	Country    Country `json:"country"`
	SaveInfo   bool    `json:"save_info"`
}

// ParseCountry accepts the supported country names case-insensitively.
func ParseCountry(s string) (Country, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nigeria":
		return CountryNigeria, true
	case "united kingdom", "uk":
		return CountryUnitedKingdom, true
	}
	return "", false
}

// Normalize trims all fields and canonicalizes the country name.
func (s ShippingDetails) Normalize() ShippingDetails {
	out := ShippingDetails{
		Name:       strings.TrimSpace(s.Name),
		Email:      strings.TrimSpace(s.Email),
		Phone:      strings.TrimSpace(s.Phone),
		Address:    strings.TrimSpace(s.Address),
		City:       strings.TrimSpace(s.City),
		PostalCode: strings.TrimSpace(s.PostalCode),
		Country:    Country(strings.TrimSpace(string(s.Country))),
		SaveInfo:   s.SaveInfo,
	}
	if c, ok := ParseCountry(string(out.Country)); ok {
		out.Country = c
	}
	return out
}

// Validate checks the buyer-entered fields. Postal code is optional.
func (s ShippingDetails) Validate() error {
	n := s.Normalize()
	fields := map[string]string{}
	required := []struct{ name, value string }{
		{"name", n.Name},
		{"email", n.Email},
		{"phone", n.Phone},
		{"address", n.Address},
		{"city", n.City},
		{"country", string(n.Country)},
	}
	for _, f := range required {
		if f.value == "" {
			fields[f.name] = "is required"
		}
	}
	if n.Email != "" && !emailPattern.MatchString(n.Email) {
		fields["email"] = "must be a valid email address"
	}
	if n.Country != "" {
		if _, ok := ParseCountry(string(n.Country)); !ok {
			fields["country"] = fmt.Sprintf("%q is not a supported country", n.Country)
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidationError carries field-level messages for rejected buyer input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return "invalid shipping details: " + strings.Join(parts, "; ")
}
