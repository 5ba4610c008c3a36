package matching

import (
	"testing"

	"github.com/google/uuid"
)

func entry(year Year, gender Gender, yearPref Year, genderPref Gender) *Entry {
	return &Entry{
		UserID:     uuid.New(),
		Year:       year,
		Gender:     gender,
		YearPref:   yearPref,
		GenderPref: genderPref,
	}
}

func TestCompatible_WildcardBothSides(t *testing.T) {
	a := entry(YearSecond, GenderMale, YearRandom, GenderAny)
	b := entry(YearFourth, GenderFemale, YearRandom, GenderAny)

	if !Compatible(a, b) {
		t.Error("two wildcard seekers should be compatible")
	}
}

func TestCompatible_ConcreteMeetsWildcard(t *testing.T) {
	// A wants 2nd-years; B is a 2nd-year who takes anyone.
	a := entry(YearThird, GenderMale, YearSecond, GenderAny)
	b := entry(YearSecond, GenderFemale, YearRandom, GenderAny)

	if !Compatible(a, b) {
		t.Error("concrete preference matching the partner's attribute should pair")
	}
}

func TestCompatible_OneSidedRejection(t *testing.T) {
	// A accepts B, but B wants 1st-years and A is a 3rd-year.
	a := entry(YearThird, GenderMale, YearRandom, GenderAny)
	b := entry(YearSecond, GenderFemale, YearFirst, GenderAny)

	if Compatible(a, b) {
		t.Error("compatibility must hold in both directions")
	}
}

func TestCompatible_GenderAxisIndependent(t *testing.T) {
	// Years line up but A wants Female and B is Male.
	a := entry(YearSecond, GenderMale, YearSecond, GenderFemale)
	b := entry(YearSecond, GenderMale, YearRandom, GenderAny)

	if Compatible(a, b) {
		t.Error("both axes must match, not just year")
	}
}

func TestCompatible_UnknownAttrNeedsWildcard(t *testing.T) {
	a := entry(YearUnknown, GenderUnknown, YearRandom, GenderAny)
	wild := entry(YearSecond, GenderMale, YearRandom, GenderAny)
	picky := entry(YearSecond, GenderMale, YearSecond, GenderMale)

	if !Compatible(a, wild) {
		t.Error("unknown attributes should pair with wildcard seekers")
	}
	if Compatible(a, picky) {
		t.Error("unknown attributes must not satisfy concrete preferences")
	}
}

func TestParseYearPref(t *testing.T) {
	for _, valid := range []string{"Random", "1st", "2nd", "3rd", "4th"} {
		if _, err := ParseYearPref(valid); err != nil {
			t.Errorf("ParseYearPref(%q) unexpected error: %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "5th", "unknown", "random"} {
		if _, err := ParseYearPref(invalid); err == nil {
			t.Errorf("ParseYearPref(%q) should fail", invalid)
		}
	}
}

func TestParseYearAttr_EmptyMapsToUnknown(t *testing.T) {
	y, err := ParseYearAttr("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if y != YearUnknown {
		t.Errorf("empty year attribute should map to unknown, got %q", y)
	}
	if _, err := ParseYearAttr("Random"); err == nil {
		t.Error("Random is a preference, not a valid attribute")
	}
}

func TestParseGenderPref(t *testing.T) {
	for _, valid := range []string{"Any", "Male", "Female", "Other"} {
		if _, err := ParseGenderPref(valid); err != nil {
			t.Errorf("ParseGenderPref(%q) unexpected error: %v", valid, err)
		}
	}
	if _, err := ParseGenderPref("unknown"); err == nil {
		t.Error("unknown is an attribute, not a valid preference")
	}
}
