package ml

import (
	"fmt"
	"math/rand"
	"sort"
)

// GenerateSynthetic builds a labeled dataset of plausible-looking screening
// rows with a simple linear decision rule, for exercising the pipeline when
// no real registry export is available. Artifacts trained on it are tagged
// synthetic and must never serve production traffic.
func GenerateSynthetic(schema FeatureSchema, n int, seed int64) *Dataset {
	if n <= 0 {
		n = 500
	}
	rng := rand.New(rand.NewSource(seed))

	pools := map[string][]string{
		"district_city":      {"Kota A", "Kota B", "Kota C"},
		"education_level":    {"SD", "SMP", "SMA", "S1"},
		"current_occupation": {"IRT", "Swasta", "PNS"},
		"marital_status":     {"Menikah", "Belum Menikah"},
		"parity":             {"Primipara", "Multipara"},
	}

	ds := &Dataset{Rows: make([]Submission, n), Labels: make([]string, n)}
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		age := 18 + rng.Float64()*27
		weight := 42 + rng.Float64()*45
		height := 145 + rng.Float64()*25
		systolic := 95 + rng.Float64()*65
		diastolic := 55 + rng.Float64()*45
		lila := 21 + rng.Float64()*12
		hb := 8 + rng.Float64()*7
		bmi, _ := BodyMassIndex(weight, height)
		mapValue, _ := MeanArterialPressure(systolic, diastolic)

		sub := Submission{}
		for _, spec := range schema {
			switch spec.Name {
			case "patient_age":
				sub[spec.Name] = fmtFloat(age)
			case "marriage_order":
				sub[spec.Name] = fmt.Sprintf("%d", 1+rng.Intn(3))
			case "pre_pregnancy_weight":
				sub[spec.Name] = fmtFloat(weight)
			case "height_cm":
				sub[spec.Name] = fmtFloat(height)
			case "bmi":
				sub[spec.Name] = fmtFloat(bmi)
			case "lila_cm":
				sub[spec.Name] = fmtFloat(lila)
			case "systolic_bp":
				sub[spec.Name] = fmtFloat(systolic)
			case "diastolic_bp":
				sub[spec.Name] = fmtFloat(diastolic)
			case "map_mmhg":
				sub[spec.Name] = fmtFloat(mapValue)
			case "hemoglobin":
				sub[spec.Name] = fmtFloat(hb)
			default:
				if pool, ok := pools[spec.Name]; ok {
					sub[spec.Name] = pool[rng.Intn(len(pool))]
				} else {
					sub[spec.Name] = fmt.Sprintf("%d", rng.Intn(2))
				}
			}
		}
		ds.Rows[i] = sub
		// linear rule: hypertension and BMI dominate, age contributes
		scores[i] = mapValue + bmi/2 + age/10
	}

	// split at the median so classes are balanced enough to stratify
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	cut := sorted[len(sorted)/2]
	for i, score := range scores {
		if score > cut {
			ds.Labels[i] = LabelPositive
		} else {
			ds.Labels[i] = LabelNegative
		}
	}
	return ds
}

func fmtFloat(v float64) string {
	return fmt.Sprintf("%.1f", v)
}
