package ml

import (
	"errors"
	"fmt"
	"sort"
)

// Preprocessor is the fitted stage between encoded vectors and the dense
// float input the forest consumes: median imputation for numeric features,
// most-frequent imputation for categorical ones, then one-hot expansion
// with the category order learned at fit time. A category unseen during
// training expands to an all-zeros block instead of raising, matching the
// behavior the forest was trained against.
//
// Slices are indexed by schema position; Medians and Modes hold zero values
// at positions of the other kind.
type Preprocessor struct {
	Medians    []float64  `json:"medians"`
	Modes      []string   `json:"modes"`
	Categories [][]string `json:"categories"`
}

// FitPreprocessor learns imputation statistics and category vocabularies
// from training rows. Rows must already be encoded against schema.
func FitPreprocessor(schema FeatureSchema, rows []*EncodedVector) (*Preprocessor, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows to fit on")
	}
	for _, row := range rows {
		if len(row.Values) != len(schema) {
			return nil, fmt.Errorf("row has %d values, schema has %d", len(row.Values), len(schema))
		}
	}

	p := &Preprocessor{
		Medians:    make([]float64, len(schema)),
		Modes:      make([]string, len(schema)),
		Categories: make([][]string, len(schema)),
	}

	for i, spec := range schema {
		switch spec.Kind {
		case Numeric:
			var present []float64
			for _, row := range rows {
				if !row.Values[i].Missing {
					present = append(present, row.Values[i].Num)
				}
			}
			if len(present) == 0 {
				p.Medians[i] = spec.NumDefault
				continue
			}
			p.Medians[i] = medianOf(present)
		case Categorical:
			counts := make(map[string]int)
			for _, row := range rows {
				if !row.Values[i].Missing {
					counts[row.Values[i].Cat]++
				}
			}
			if len(counts) == 0 {
				p.Modes[i] = spec.CatDefault
				p.Categories[i] = []string{spec.CatDefault}
				continue
			}
			p.Modes[i] = mostFrequent(counts)
			cats := make([]string, 0, len(counts))
			for cat := range counts {
				cats = append(cats, cat)
			}
			sort.Strings(cats)
			p.Categories[i] = cats
		}
	}
	return p, nil
}

// Transform maps an encoded vector onto the dense float layout the forest
// was trained on: numeric slots first at their schema positions, each
// categorical slot expanded to its indicator block. Deterministic for a
// given fitted state.
func (p *Preprocessor) Transform(schema FeatureSchema, vec *EncodedVector) ([]float64, error) {
	if vec == nil {
		return nil, errors.New("vector is nil")
	}
	if len(vec.Values) != len(schema) {
		return nil, fmt.Errorf("vector has %d values, schema has %d", len(vec.Values), len(schema))
	}
	if len(p.Medians) != len(schema) {
		return nil, fmt.Errorf("preprocessor fitted for %d features, schema has %d", len(p.Medians), len(schema))
	}

	out := make([]float64, 0, p.OutputDim(schema))
	for i, spec := range schema {
		value := vec.Values[i]
		switch spec.Kind {
		case Numeric:
			if value.Missing {
				out = append(out, p.Medians[i])
			} else {
				out = append(out, value.Num)
			}
		case Categorical:
			cat := value.Cat
			if value.Missing {
				cat = p.Modes[i]
			}
			for _, known := range p.Categories[i] {
				if known == cat {
					out = append(out, 1)
				} else {
					out = append(out, 0)
				}
			}
		}
	}
	return out, nil
}

// OutputDim is the length of transformed vectors.
func (p *Preprocessor) OutputDim(schema FeatureSchema) int {
	dim := 0
	for i, spec := range schema {
		if spec.Kind == Numeric {
			dim++
		} else if i < len(p.Categories) {
			dim += len(p.Categories[i])
		}
	}
	return dim
}

// ExpandedNames lists the transformed column names, one per output slot.
func (p *Preprocessor) ExpandedNames(schema FeatureSchema) []string {
	names := make([]string, 0, p.OutputDim(schema))
	for i, spec := range schema {
		if spec.Kind == Numeric {
			names = append(names, spec.Name)
			continue
		}
		for _, cat := range p.Categories[i] {
			names = append(names, spec.Name+"="+cat)
		}
	}
	return names
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// mostFrequent breaks count ties by lexicographic order so fitting is
// deterministic.
func mostFrequent(counts map[string]int) string {
	best := ""
	bestCount := -1
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if counts[key] > bestCount {
			bestCount = counts[key]
			best = key
		}
	}
	return best
}
