package merging

import (
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
)

// mergeableFields is the canonical resolution order for plan fields.
// Categories are handled separately because they always resolve to a union.
var mergeableFields = []string{
	"name",
	"provider",
	"description",
	"contact_email",
	"contact_phone",
	"website",
	"registration_url",
	"price_min",
	"price_max",
	"price_unit",
	"rating",
	"rating_count",
	"address",
	"neighborhood",
	"latitude",
	"longitude",
}

// fieldValue reads a mergeable field off a program. Pointer fields are
// dereferenced so resolved values compare with ==.
func fieldValue(p *models.Program, field string) any {
	switch field {
	case "name":
		return p.Name
	case "provider":
		return p.Provider
	case "description":
		return p.Description
	case "contact_email":
		return p.ContactEmail
	case "contact_phone":
		return p.ContactPhone
	case "website":
		return p.Website
	case "registration_url":
		return p.RegistrationURL
	case "price_min":
		return floatValue(p.PriceMin)
	case "price_max":
		return floatValue(p.PriceMax)
	case "price_unit":
		return stringValue(p.PriceUnit)
	case "rating":
		return floatValue(p.Rating)
	case "rating_count":
		return intValue(p.RatingCount)
	case "address":
		if p.Location == nil {
			return ""
		}
		return p.Location.Address
	case "neighborhood":
		if p.Location == nil {
			return ""
		}
		return p.Location.Neighborhood
	case "latitude":
		if p.Location == nil {
			return nil
		}
		return floatValue(p.Location.Latitude)
	case "longitude":
		if p.Location == nil {
			return nil
		}
		return floatValue(p.Location.Longitude)
	}
	return nil
}

func setFieldValue(p *models.Program, field string, value any) {
	switch field {
	case "name":
		p.Name = asString(value)
	case "provider":
		p.Provider = asString(value)
	case "description":
		p.Description = asString(value)
	case "contact_email":
		p.ContactEmail = asString(value)
	case "contact_phone":
		p.ContactPhone = asString(value)
	case "website":
		p.Website = asString(value)
	case "registration_url":
		p.RegistrationURL = asString(value)
	case "price_min":
		p.PriceMin = asFloatPtr(value)
	case "price_max":
		p.PriceMax = asFloatPtr(value)
	case "price_unit":
		p.PriceUnit = asStringPtr(value)
	case "rating":
		p.Rating = asFloatPtr(value)
	case "rating_count":
		p.RatingCount = asIntPtr(value)
	case "address":
		ensureLocation(p).Address = asString(value)
	case "neighborhood":
		ensureLocation(p).Neighborhood = asString(value)
	case "latitude":
		ensureLocation(p).Latitude = asFloatPtr(value)
	case "longitude":
		ensureLocation(p).Longitude = asFloatPtr(value)
	}
}

func ensureLocation(p *models.Program) *models.ProgramLocation {
	if p.Location == nil {
		p.Location = &models.ProgramLocation{ProgramID: p.ID}
	}
	return p.Location
}

func floatValue(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func intValue(i *int) any {
	if i == nil {
		return nil
	}
	return *i
}

func stringValue(s *string) any {
	if s == nil {
		return ""
	}
	return *s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func asFloatPtr(v any) *float64 {
	switch val := v.(type) {
	case float64:
		return &val
	case int:
		f := float64(val)
		return &f
	}
	return nil
}

func asIntPtr(v any) *int {
	switch val := v.(type) {
	case int:
		return &val
	case float64:
		i := int(val)
		return &i
	}
	return nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	case []string:
		return len(val) == 0
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a == b
}

// unionCategories merges category sets preserving first-seen order and
// spelling, deduplicating case-insensitively
func unionCategories(sets ...[]string) []string {
	seen := make(map[string]bool)
	union := make([]string, 0)
	for _, set := range sets {
		for _, c := range set {
			key := normalizeCategoryKey(c)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			union = append(union, c)
		}
	}
	return union
}

func normalizeCategoryKey(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
