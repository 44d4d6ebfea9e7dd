package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Settings mirrors the "settings" object of the detection service create
// request. The same structure is persisted in job.toml and exported in the
// parameters file.
type Settings struct {
	Modes       Modes    `json:"modes" toml:"modes"`
	StepSize    StepSize `json:"step_size" toml:"step_size"`
	Probes      Probes   `json:"probes" toml:"probes"`
	Cutoffs     Cutoffs  `json:"cutoffs" toml:"cutoffs"`
	VisibleBox  Box      `json:"visiblebox" toml:"visiblebox"`
	InternalBox Box      `json:"internalbox" toml:"internalbox"`
}

// Modes selects the detection modes.
type Modes struct {
	WholeProteinMode bool   `json:"whole_protein_mode" toml:"whole_protein_mode"`
	BoxMode          bool   `json:"box_mode" toml:"box_mode"`
	ResolutionMode   string `json:"resolution_mode" toml:"resolution_mode" validate:"oneof=Off Low Medium High"`
	SurfaceMode      bool   `json:"surface_mode" toml:"surface_mode"`
	KvpMode          bool   `json:"kvp_mode" toml:"kvp_mode"`
	LigandMode       bool   `json:"ligand_mode" toml:"ligand_mode"`
}

type StepSize struct {
	StepSize float64 `json:"step_size" toml:"step_size" validate:"gte=0"`
}

// Probes are the probe radii in angstroms.
type Probes struct {
	ProbeIn  float64 `json:"probe_in" toml:"probe_in" validate:"gte=0,lte=5"`
	ProbeOut float64 `json:"probe_out" toml:"probe_out" validate:"gte=0,lte=50"`
}

// Cutoffs; VolumeCutoff and RemovalDistance may not both be zero.
type Cutoffs struct {
	VolumeCutoff    float64 `json:"volume_cutoff" toml:"volume_cutoff" validate:"gte=0"`
	LigandCutoff    float64 `json:"ligand_cutoff" toml:"ligand_cutoff" validate:"gte=0"`
	RemovalDistance float64 `json:"removal_distance" toml:"removal_distance" validate:"gte=0,lte=10"`
}

// Box is a search-space box given by its origin (P1) and axis end points.
// The vertices are computed by the interactive layer; they are opaque here.
type Box struct {
	P1 Point `json:"p1" toml:"p1"`
	P2 Point `json:"p2" toml:"p2"`
	P3 Point `json:"p3" toml:"p3"`
	P4 Point `json:"p4" toml:"p4"`
}

type Point struct {
	X float64 `json:"x" toml:"x"`
	Y float64 `json:"y" toml:"y"`
	Z float64 `json:"z" toml:"z"`
}

// DefaultSettings returns the default detection parameters for a
// whole-protein run.
func DefaultSettings() *Settings {
	return &Settings{
		Modes: Modes{
			WholeProteinMode: true,
			BoxMode:          false,
			ResolutionMode:   "Low",
			SurfaceMode:      true,
			KvpMode:          false,
			LigandMode:       false,
		},
		StepSize: StepSize{StepSize: 0.0},
		Probes: Probes{
			ProbeIn:  1.4,
			ProbeOut: 4.0,
		},
		Cutoffs: Cutoffs{
			VolumeCutoff:    5.0,
			LigandCutoff:    5.0,
			RemovalDistance: 2.4,
		},
	}
}

// Validate validates the settings using go-playground/validator.
func (s *Settings) Validate() error {
	validate := validator.New()
	validate.RegisterStructValidation(validateCutoffs, Cutoffs{})
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid detection settings: %w", err)
	}
	return nil
}

func validateCutoffs(sl validator.StructLevel) {
	c := sl.Current().Interface().(Cutoffs)
	if c.VolumeCutoff == 0 && c.RemovalDistance == 0 {
		sl.ReportError(c.RemovalDistance, "RemovalDistance", "removal_distance", "nonzero_with_volume_cutoff", "")
	}
}
