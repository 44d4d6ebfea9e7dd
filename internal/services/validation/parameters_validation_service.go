// -----------------------------------------------------------------------
// Package validation checks parameters files before their settings are reused
// -----------------------------------------------------------------------

package validation

import (
	"context"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/models"
)

// noLigand marks an absent ligand in a parameters file.
const noLigand = "-"

// ParametersValidationService validates exported parameters files
type ParametersValidationService struct {
	logger arbor.ILogger
}

// ValidationResult contains the result of parameters validation
type ValidationResult struct {
	Valid    bool             `json:"valid"`
	Error    string           `json:"error,omitempty"`
	Message  string           `json:"message"`
	Input    string           `json:"input,omitempty"`
	Ligand   string           `json:"ligand,omitempty"`
	Settings *models.Settings `json:"settings,omitempty"`
}

// NewParametersValidationService creates a new validation service
func NewParametersValidationService(logger arbor.ILogger) *ParametersValidationService {
	return &ParametersValidationService{
		logger: logger,
	}
}

// ParametersFile is the layout of <base_name>_parameters.toml
type ParametersFile struct {
	Title string `toml:"title"`
	Files struct {
		PDB    string `toml:"pdb"`
		Ligand string `toml:"ligand"`
	} `toml:"files"`
	Settings *models.Settings `toml:"settings"`
}

// ValidateParameters parses a parameters file and validates its settings
func (s *ParametersValidationService) ValidateParameters(ctx context.Context, content string) ValidationResult {
	// Step 1: Parse TOML
	var file ParametersFile
	if err := toml.Unmarshal([]byte(content), &file); err != nil {
		return ValidationResult{
			Valid:   false,
			Error:   err.Error(),
			Message: fmt.Sprintf("TOML syntax error: %v", err),
		}
	}

	// Step 2: Required tables
	if file.Settings == nil {
		return ValidationResult{
			Valid:   false,
			Error:   "settings table is required",
			Message: "Parameters validation failed: settings table is required",
		}
	}

	result := ValidationResult{
		Input:    file.Files.PDB,
		Settings: file.Settings,
	}
	if file.Files.Ligand != noLigand {
		result.Ligand = file.Files.Ligand
	}

	// Step 3: Detection settings
	if err := file.Settings.Validate(); err != nil {
		result.Error = err.Error()
		result.Message = fmt.Sprintf("Parameters validation failed: %v", err)
		return result
	}
	if file.Settings.Modes.LigandMode && result.Ligand == "" {
		result.Error = "ligand mode requires a ligand structure"
		result.Message = "Parameters validation failed: ligand mode requires a ligand structure"
		return result
	}

	s.logger.Debug().
		Str("input", result.Input).
		Bool("ligand_mode", file.Settings.Modes.LigandMode).
		Msg("Parameters file validated")

	result.Valid = true
	result.Message = "Parameters are valid"
	return result
}
