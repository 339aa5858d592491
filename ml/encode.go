package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Submission is one raw screening form as the boundary hands it over:
// loosely typed values keyed by field name. Keys not in the schema are
// ignored; schema fields not in the map are defaulted.
type Submission map[string]interface{}

// FeatureValue is one resolved slot of an encoded vector. Missing marks a
// value that was absent or failed coercion; the slot then carries the spec
// default until the fitted preprocessor imputes the trained statistic.
type FeatureValue struct {
	Num     float64
	Cat     string
	Missing bool
}

// EncodedVector is a fixed-length vector laid out in schema order.
// Constructed fresh per submission and never mutated afterwards.
type EncodedVector struct {
	Values []FeatureValue
}

// Encode maps one raw submission onto the schema. It is the only place in
// the system that interprets form keys and the only implementation of the
// derived features (BMI, MAP); the training pipeline goes through the same
// coercion helpers so the two paths cannot drift.
func Encode(sub Submission, schema FeatureSchema) (*EncodedVector, error) {
	if sub == nil {
		return nil, ErrNilSubmission
	}
	vec := &EncodedVector{Values: make([]FeatureValue, len(schema))}
	for i, spec := range schema {
		raw, ok := sub[spec.Name]
		switch spec.Kind {
		case Numeric:
			if !ok {
				vec.Values[i] = deriveNumeric(spec, sub)
				continue
			}
			num, err := CoerceNumeric(raw)
			if err != nil {
				vec.Values[i] = deriveNumeric(spec, sub)
				continue
			}
			vec.Values[i] = FeatureValue{Num: num}
		case Categorical:
			cat := CoerceCategorical(raw)
			if !ok || cat == "" {
				vec.Values[i] = FeatureValue{Cat: spec.CatDefault, Missing: true}
				continue
			}
			vec.Values[i] = FeatureValue{Cat: cat}
		}
	}
	return vec, nil
}

// MissingFields lists the schema names whose values were absent or failed
// coercion; those slots carry defaults until the preprocessor imputes them.
func (v *EncodedVector) MissingFields(schema FeatureSchema) []string {
	var missing []string
	for i, spec := range schema {
		if i < len(v.Values) && v.Values[i].Missing {
			missing = append(missing, spec.Name)
		}
	}
	return missing
}

// deriveNumeric recomputes a derivable feature from its source fields, or
// falls back to the spec default with the missing marker set.
func deriveNumeric(spec FeatureSpec, sub Submission) FeatureValue {
	switch spec.Name {
	case "bmi":
		weight, werr := CoerceNumeric(sub["pre_pregnancy_weight"])
		height, herr := CoerceNumeric(sub["height_cm"])
		if werr == nil && herr == nil {
			if bmi, err := BodyMassIndex(weight, height); err == nil {
				return FeatureValue{Num: bmi}
			}
		}
	case "map_mmhg":
		sys, serr := CoerceNumeric(sub["systolic_bp"])
		dia, derr := CoerceNumeric(sub["diastolic_bp"])
		if serr == nil && derr == nil {
			if m, err := MeanArterialPressure(sys, dia); err == nil {
				return FeatureValue{Num: m}
			}
		}
	}
	return FeatureValue{Num: spec.NumDefault, Missing: true}
}

// BodyMassIndex computes weight(kg) / height(m)^2, rounded to one decimal.
func BodyMassIndex(weightKg, heightCm float64) (float64, error) {
	if heightCm <= 0 {
		return 0, fmt.Errorf("height must be positive, got %g", heightCm)
	}
	if weightKg <= 0 {
		return 0, fmt.Errorf("weight must be positive, got %g", weightKg)
	}
	m := heightCm / 100
	return round1(weightKg / (m * m)), nil
}

// MeanArterialPressure computes (systolic + 2*diastolic) / 3, rounded to
// one decimal.
func MeanArterialPressure(systolic, diastolic float64) (float64, error) {
	if systolic <= 0 || diastolic <= 0 {
		return 0, fmt.Errorf("blood pressure must be positive, got %g/%g", systolic, diastolic)
	}
	return round1((systolic + 2*diastolic) / 3), nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// CoerceNumeric parses a loosely typed raw value into a float64. Strings
// are trimmed of surrounding whitespace and quote characters first; a
// decimal comma is accepted.
func CoerceNumeric(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, fmt.Errorf("value is nil")
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		s := cleanCell(v)
		if s == "" {
			return 0, fmt.Errorf("value is empty")
		}
		s = strings.ReplaceAll(s, ",", ".")
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", v)
		}
		return num, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}

// CoerceCategorical normalizes a raw value to a category string. Booleans
// map to "1"/"0" to match how the form encodes yes/no fields. The result is
// "" when nothing usable was supplied.
func CoerceCategorical(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return cleanCell(v)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return cleanCell(fmt.Sprintf("%v", raw))
	}
}

// cleanCell strips surrounding whitespace and stray quoting, the same
// cleanup the dataset loader applies to text cells.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
