package export

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// hydropathyScaleKey names the scale range entry in AVG_HYDROPATHY; it is not a cavity.
const hydropathyScaleKey = "EisenbergWeiss"

// Results is a parsed results file.
type Results struct {
	Files         ResultFiles           `json:"files"`
	StepSize      float64               `json:"step_size,omitempty"`
	Volume        map[string]float64    `json:"volume"`
	Area          map[string]float64    `json:"area"`
	AvgDepth      map[string]float64    `json:"avg_depth"`
	MaxDepth      map[string]float64    `json:"max_depth"`
	AvgHydropathy map[string]float64    `json:"avg_hydropathy"`
	Residues      map[string][][]string `json:"residues"`
}

// ResultFiles are the paths recorded in FILES_PATH.
type ResultFiles struct {
	Input  string `json:"input,omitempty"`
	Ligand string `json:"ligand,omitempty"`
	Output string `json:"output"`
}

// Cavities returns the cavity tags, sorted.
func (r *Results) Cavities() []string {
	tags := make([]string, 0, len(r.Volume))
	for tag := range r.Volume {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// LoadResults reads a results file written by Export or by parKVFinder
// itself. Older files use FILES for FILES_PATH and STEP for STEP_SIZE.
func LoadResults(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file %s: %w", path, err)
	}
	return ParseResults(data)
}

// ParseResults decodes the contents of a results file.
func ParseResults(data []byte) (*Results, error) {
	raw := map[string]interface{}{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid results file: %w", err)
	}

	files, ok := raw["FILES_PATH"].(map[string]interface{})
	if !ok {
		files, ok = raw["FILES"].(map[string]interface{})
	}
	if !ok {
		return nil, fmt.Errorf("invalid results file: no FILES_PATH table")
	}

	results := &Results{
		Files: ResultFiles{
			Input:  stringValue(files["INPUT"]),
			Ligand: stringValue(files["LIGAND"]),
			Output: stringValue(files["OUTPUT"]),
		},
	}

	if params, ok := raw["PARAMETERS"].(map[string]interface{}); ok {
		if v, ok := params["STEP_SIZE"]; ok {
			results.StepSize, _ = floatValue(v)
		} else if v, ok := params["STEP"]; ok {
			results.StepSize, _ = floatValue(v)
		}
	}

	section, _ := raw["RESULTS"].(map[string]interface{})
	results.Volume = floatTable(section["VOLUME"])
	results.Area = floatTable(section["AREA"])
	results.AvgDepth = floatTable(section["AVG_DEPTH"])
	results.MaxDepth = floatTable(section["MAX_DEPTH"])
	results.AvgHydropathy = floatTable(section["AVG_HYDROPATHY"])
	delete(results.AvgHydropathy, hydropathyScaleKey)
	results.Residues = residueTable(section["RESIDUES"])

	return results, nil
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}

func floatValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// floatTable keeps the numeric entries of a table.
func floatTable(v interface{}) map[string]float64 {
	out := map[string]float64{}
	table, ok := v.(map[string]interface{})
	if !ok {
		return out
	}
	for key, value := range table {
		if f, ok := floatValue(value); ok {
			out[key] = f
		}
	}
	return out
}

// residueTable decodes per-cavity residue lists of [number, chain, name] triples.
func residueTable(v interface{}) map[string][][]string {
	out := map[string][][]string{}
	table, ok := v.(map[string]interface{})
	if !ok {
		return out
	}
	for cavity, value := range table {
		rows, ok := value.([]interface{})
		if !ok {
			continue
		}
		residues := make([][]string, 0, len(rows))
		for _, row := range rows {
			fields, ok := row.([]interface{})
			if !ok {
				continue
			}
			residue := make([]string, 0, len(fields))
			for _, field := range fields {
				residue = append(residue, fmt.Sprint(field))
			}
			residues = append(residues, residue)
		}
		out[cavity] = residues
	}
	return out
}
