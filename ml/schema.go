package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// FeatureKind distinguishes how a feature is coerced and preprocessed.
type FeatureKind string

const (
	Numeric     FeatureKind = "numeric"
	Categorical FeatureKind = "categorical"
)

// CategoricalUnknown is the sentinel bucket for missing or unparsable
// categorical values. The preprocessor learns it like any other category,
// so the forest was trained to recognize it.
const CategoricalUnknown = "unknown"

// FeatureSpec describes one model input. Column is the dataset header the
// training CSV uses for this feature; it falls back to Name when empty.
type FeatureSpec struct {
	Name       string      `json:"name"`
	Column     string      `json:"column,omitempty"`
	Kind       FeatureKind `json:"kind"`
	NumDefault float64     `json:"num_default,omitempty"`
	CatDefault string      `json:"cat_default,omitempty"`
}

// DatasetColumn returns the header this feature is read from in a dataset.
func (s FeatureSpec) DatasetColumn() string {
	if s.Column != "" {
		return s.Column
	}
	return s.Name
}

// FeatureSchema is an ordered sequence of FeatureSpec. The order is the
// contract: training and serving both lay out vectors in this order, and the
// one-hot expansion of categorical columns follows it as well.
type FeatureSchema []FeatureSpec

// Validate checks structural soundness: non-empty, no duplicate names,
// known kinds.
func (fs FeatureSchema) Validate() error {
	if len(fs) == 0 {
		return fmt.Errorf("schema is empty")
	}
	seen := make(map[string]bool, len(fs))
	for i, spec := range fs {
		if spec.Name == "" {
			return fmt.Errorf("feature %d has empty name", i)
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate feature name %q", spec.Name)
		}
		seen[spec.Name] = true
		if spec.Kind != Numeric && spec.Kind != Categorical {
			return fmt.Errorf("feature %q has unknown kind %q", spec.Name, spec.Kind)
		}
	}
	return nil
}

// Names returns feature names in schema order.
func (fs FeatureSchema) Names() []string {
	names := make([]string, len(fs))
	for i, spec := range fs {
		names[i] = spec.Name
	}
	return names
}

// Fingerprint hashes the ordered (name, kind) tuples. Two schemas score
// against the same artifact only when their fingerprints match.
func (fs FeatureSchema) Fingerprint() string {
	var b strings.Builder
	for _, spec := range fs {
		b.WriteString(spec.Name)
		b.WriteByte(0x1f)
		b.WriteString(string(spec.Kind))
		b.WriteByte(0x1e)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ValidateCompatibility checks structural equality (same ordered names, same
// kinds) against another schema. A mismatch is a hard failure: positional
// drift between encoder and artifact silently corrupts predictions.
func (fs FeatureSchema) ValidateCompatibility(other FeatureSchema) error {
	if len(fs) != len(other) {
		return fmt.Errorf("%w: %d features vs %d", ErrSchemaMismatch, len(fs), len(other))
	}
	for i := range fs {
		if fs[i].Name != other[i].Name {
			return fmt.Errorf("%w: position %d is %q vs %q", ErrSchemaMismatch, i, fs[i].Name, other[i].Name)
		}
		if fs[i].Kind != other[i].Kind {
			return fmt.Errorf("%w: feature %q is %s vs %s", ErrSchemaMismatch, fs[i].Name, fs[i].Kind, other[i].Kind)
		}
	}
	return nil
}

// ScreeningSchema returns the canonical preeclampsia screening schema.
// Defined once and shared by the training pipeline and the inference
// encoder; neither side re-derives it. Column values match the headers of
// the clinical registry export the model is trained from.
func ScreeningSchema() FeatureSchema {
	num := func(name, column string) FeatureSpec {
		return FeatureSpec{Name: name, Column: column, Kind: Numeric}
	}
	cat := func(name, column string) FeatureSpec {
		return FeatureSpec{Name: name, Column: column, Kind: Categorical, CatDefault: CategoricalUnknown}
	}
	return FeatureSchema{
		num("patient_age", "Umur (Tahun)"),
		num("marriage_order", "Pernikahan Ke"),
		num("pre_pregnancy_weight", "BB Sebelum Hamil (Kg)"),
		num("height_cm", "TB (Cm)"),
		num("bmi", "Indeks Massa Tubuh (IMT)"),
		num("lila_cm", "Lingkar Lengan Atas (Cm)"),
		num("systolic_bp", "TD Sistolik I"),
		num("diastolic_bp", "TD Diastolik I"),
		num("map_mmhg", "MAP (mmHg)"),
		num("hemoglobin", "Hb (gr/dl)"),
		cat("district_city", "Kabupaten/Kota"),
		cat("education_level", "Pendidikan"),
		cat("current_occupation", "Pekerjaan"),
		cat("marital_status", "Status Nikah"),
		cat("parity", "Paritas"),
		cat("new_partner_pregnancy", "Hamil Pasangan Baru"),
		cat("child_spacing_over_10_years", "Jarak Anak >10 tahun"),
		cat("ivf_pregnancy", "Bayi Tabung"),
		cat("multiple_pregnancy", "Gemelli"),
		cat("smoker", "Perokok"),
		cat("planned_pregnancy", "Hamil Direncanakan"),
		cat("family_history_pe", "Riwayat Keluarga Preeklampsia"),
		cat("personal_history_pe", "Riwayat Preeklampsia"),
		cat("chronic_hypertension", "Hipertensi Kronis"),
		cat("diabetes_mellitus", "Diabetes Melitus"),
		cat("kidney_disease", "Riwayat Penyakit Ginjal"),
		cat("autoimmune_disease", "Penyakit Autoimune"),
		cat("aps_history", "APS"),
		cat("family_history_hypertension", "Hipertensi Keluarga"),
		cat("family_history_kidney", "Riwayat Penyakit Ginjal Keluarga"),
		cat("family_history_heart", "Riwayat Penyakit Jantung Keluarga"),
	}
}
