package ml

import (
	"errors"
	"reflect"
	"testing"
)

func miniSchema() FeatureSchema {
	return FeatureSchema{
		{Name: "age", Kind: Numeric},
		{Name: "smoker", Kind: Categorical, CatDefault: CategoricalUnknown},
	}
}

func TestEncodeDefaultsMissingFields(t *testing.T) {
	vec, err := Encode(Submission{"age": "34"}, miniSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec.Values[0].Num != 34.0 || vec.Values[0].Missing {
		t.Fatalf("expected age 34.0, got %+v", vec.Values[0])
	}
	if vec.Values[1].Cat != "unknown" || !vec.Values[1].Missing {
		t.Fatalf("expected smoker to default to unknown, got %+v", vec.Values[1])
	}
}

func TestEncodeCoercion(t *testing.T) {
	vec, err := Encode(Submission{"age": "abc", "smoker": " Yes "}, miniSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec.Values[0].Num != 0.0 || !vec.Values[0].Missing {
		t.Fatalf("unparsable numeric must fall back to default, got %+v", vec.Values[0])
	}
	if vec.Values[1].Cat != "Yes" || vec.Values[1].Missing {
		t.Fatalf("categorical must be trimmed, not defaulted, got %+v", vec.Values[1])
	}
}

func TestEncodeDeterministic(t *testing.T) {
	sub := Submission{"age": "28", "smoker": "0"}
	a, err := Encode(sub, miniSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Encode(sub, miniSchema())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("encoding must be deterministic: %+v vs %+v", a, b)
	}
}

func TestEncodeNilSubmission(t *testing.T) {
	if _, err := Encode(nil, miniSchema()); !errors.Is(err, ErrNilSubmission) {
		t.Fatalf("expected ErrNilSubmission, got %v", err)
	}
}

// Omitting any single key never raises, and the result differs from the
// fully populated case only at that position.
func TestDefaultSubstitutionTotality(t *testing.T) {
	schema := ScreeningSchema()
	full := Submission{}
	for i, spec := range schema {
		if spec.Kind == Numeric {
			full[spec.Name] = float64(10 + i)
		} else {
			full[spec.Name] = "val"
		}
	}
	reference, err := Encode(full, schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for drop, spec := range schema {
		// bmi and map_mmhg are re-derived from their source fields, so
		// dropping them changes only the derivation inputs used
		if spec.Name == "bmi" || spec.Name == "map_mmhg" {
			continue
		}
		partial := Submission{}
		for k, v := range full {
			if k != spec.Name {
				partial[k] = v
			}
		}
		vec, err := Encode(partial, schema)
		if err != nil {
			t.Fatalf("dropping %s raised: %v", spec.Name, err)
		}
		for i := range schema {
			same := reflect.DeepEqual(vec.Values[i], reference.Values[i])
			if i == drop && same {
				t.Fatalf("dropping %s did not change position %d", spec.Name, i)
			}
			if i != drop && !same {
				t.Fatalf("dropping %s changed unrelated position %d (%s)", spec.Name, i, schema[i].Name)
			}
		}
	}
}

func TestBodyMassIndex(t *testing.T) {
	bmi, err := BodyMassIndex(60, 160)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bmi != 23.4 {
		t.Fatalf("expected 23.4, got %v", bmi)
	}
	if _, err := BodyMassIndex(60, 0); err == nil {
		t.Fatal("expected error for zero height")
	}
}

func TestMeanArterialPressure(t *testing.T) {
	m, err := MeanArterialPressure(120, 80)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != 93.3 {
		t.Fatalf("expected 93.3, got %v", m)
	}
}

// A blank bmi cell is re-derived from weight and height instead of being
// treated as missing.
func TestEncodeDerivesBMIAndMAP(t *testing.T) {
	schema := FeatureSchema{
		{Name: "pre_pregnancy_weight", Kind: Numeric},
		{Name: "height_cm", Kind: Numeric},
		{Name: "bmi", Kind: Numeric},
		{Name: "systolic_bp", Kind: Numeric},
		{Name: "diastolic_bp", Kind: Numeric},
		{Name: "map_mmhg", Kind: Numeric},
	}
	vec, err := Encode(Submission{
		"pre_pregnancy_weight": "60",
		"height_cm":            "160",
		"bmi":                  "",
		"systolic_bp":          "120",
		"diastolic_bp":         "80",
	}, schema)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec.Values[2].Missing || vec.Values[2].Num != 23.4 {
		t.Fatalf("expected derived bmi 23.4, got %+v", vec.Values[2])
	}
	if vec.Values[5].Missing || vec.Values[5].Num != 93.3 {
		t.Fatalf("expected derived map 93.3, got %+v", vec.Values[5])
	}
}

func TestCoerceNumericCleansInput(t *testing.T) {
	cases := map[string]float64{
		` "36.5" `: 36.5,
		"'120'":    120,
		"23,4":     23.4,
	}
	for raw, want := range cases {
		got, err := CoerceNumeric(raw)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("%q: expected %v, got %v", raw, want, got)
		}
	}
	if _, err := CoerceNumeric(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}
