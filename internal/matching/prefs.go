// Package matching implements the waiting pool and pairing engine that turn
// searching users into chat sessions. Preferences are closed types per axis
// with an explicit symmetric compatibility rule; the pool is owned by a
// single matching actor so scan-and-claim is race-free.
package matching

import "fmt"

// Year is a student year, used both as a profile attribute and as a match
// preference. YearRandom is valid only as a preference; YearUnknown only as
// an attribute (it pairs with wildcard seekers only).
type Year string

const (
	YearRandom  Year = "Random"
	YearFirst   Year = "1st"
	YearSecond  Year = "2nd"
	YearThird   Year = "3rd"
	YearFourth  Year = "4th"
	YearUnknown Year = "unknown"
)

// Gender is a profile attribute and match preference. GenderAny is valid
// only as a preference; GenderUnknown only as an attribute.
type Gender string

const (
	GenderAny     Gender = "Any"
	GenderMale    Gender = "Male"
	GenderFemale  Gender = "Female"
	GenderOther   Gender = "Other"
	GenderUnknown Gender = "unknown"
)

// Matches reports whether the preference y accepts the attribute attr.
func (y Year) Matches(attr Year) bool {
	return y == YearRandom || y == attr
}

// Matches reports whether the preference g accepts the attribute attr.
func (g Gender) Matches(attr Gender) bool {
	return g == GenderAny || g == attr
}

// ParseYearPref validates a year preference from the lobby.
func ParseYearPref(s string) (Year, error) {
	switch Year(s) {
	case YearRandom, YearFirst, YearSecond, YearThird, YearFourth:
		return Year(s), nil
	}
	return "", fmt.Errorf("matching: invalid year preference %q", s)
}

// ParseYearAttr validates a year profile attribute. An empty value maps to
// YearUnknown.
func ParseYearAttr(s string) (Year, error) {
	switch Year(s) {
	case YearFirst, YearSecond, YearThird, YearFourth, YearUnknown:
		return Year(s), nil
	case "":
		return YearUnknown, nil
	}
	return "", fmt.Errorf("matching: invalid year %q", s)
}

// ParseGenderPref validates a gender preference from the lobby.
func ParseGenderPref(s string) (Gender, error) {
	switch Gender(s) {
	case GenderAny, GenderMale, GenderFemale, GenderOther:
		return Gender(s), nil
	}
	return "", fmt.Errorf("matching: invalid gender preference %q", s)
}

// ParseGenderAttr validates a gender profile attribute. An empty value maps
// to GenderUnknown.
func ParseGenderAttr(s string) (Gender, error) {
	switch Gender(s) {
	case GenderMale, GenderFemale, GenderOther, GenderUnknown:
		return Gender(s), nil
	case "":
		return GenderUnknown, nil
	}
	return "", fmt.Errorf("matching: invalid gender %q", s)
}

// Compatible reports whether two waiting entries satisfy each other's
// preferences on both axes, in both directions.
func Compatible(a, b *Entry) bool {
	return a.YearPref.Matches(b.Year) && b.YearPref.Matches(a.Year) &&
		a.GenderPref.Matches(b.Gender) && b.GenderPref.Matches(a.Gender)
}
