// -----------------------------------------------------------------------
// Export - writes a completed job's output under output_directory/id
// -----------------------------------------------------------------------

package export

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/common"
	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
)

const (
	resultsHeader    = "# TOML results file for parKVFinder software\n\n"
	parametersHeader = "# TOML configuration file for KVFinder-web job.\n\n"
	parametersTitle  = "KVFinder-web parameters file"

	runningMarker    = "Running parKVFinder for: "
	dictionaryMarker = "Dictionary: "
)

// ErrNoOutput is returned when Export is called on a job without output.
var ErrNoOutput = errors.New("job has no output to export")

// Exporter writes job artifacts. Every file is replaced atomically and the
// bytes depend only on the job, so exporting twice yields identical files.
type Exporter struct {
	logger arbor.ILogger
}

var _ interfaces.Exporter = (*Exporter)(nil)

// NewExporter creates an exporter.
func NewExporter(logger arbor.ILogger) *Exporter {
	return &Exporter{logger: logger}
}

// Export writes the cavity, results, log and (for form jobs) parameters files.
func (e *Exporter) Export(job *models.Job) error {
	if job.Output == nil {
		return fmt.Errorf("export job %s: %w", job.ID, ErrNoOutput)
	}

	if err := os.MkdirAll(job.ResultDir(), 0755); err != nil {
		return fmt.Errorf("export job %s: failed to create %s: %w", job.ID, job.ResultDir(), err)
	}

	if err := common.WriteFileAtomic(job.CavityPath(), []byte(job.Output.PdbKV)); err != nil {
		return fmt.Errorf("export job %s: cavity file: %w", job.ID, err)
	}

	results, err := renderResults(job)
	if err != nil {
		return fmt.Errorf("export job %s: results file: %w", job.ID, err)
	}
	if err := common.WriteFileAtomic(job.ResultsPath(), results); err != nil {
		return fmt.Errorf("export job %s: results file: %w", job.ID, err)
	}

	if err := common.WriteFileAtomic(job.LogPath(), renderLog(job.ID, job.Output.Log)); err != nil {
		return fmt.Errorf("export job %s: log file: %w", job.ID, err)
	}

	if path := job.ParametersPath(); path != "" {
		params, err := renderParameters(job)
		if err != nil {
			return fmt.Errorf("export job %s: parameters file: %w", job.ID, err)
		}
		if err := common.WriteFileAtomic(path, params); err != nil {
			return fmt.Errorf("export job %s: parameters file: %w", job.ID, err)
		}
	}

	e.logger.Info().
		Str("job_id", job.ID).
		Str("dir", job.ResultDir()).
		Msg("Job results exported")
	return nil
}

// Missing lists the artifacts of job that are not on disk.
func (e *Exporter) Missing(job *models.Job) []string {
	var missing []string
	for _, path := range job.ArtifactPaths() {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	return missing
}

// Complete reports whether every artifact of job is on disk.
func (e *Exporter) Complete(job *models.Job) bool {
	return len(e.Missing(job)) == 0
}

// renderResults rewrites FILES_PATH of the service report to the local paths.
func renderResults(job *models.Job) ([]byte, error) {
	report := map[string]interface{}{}
	if strings.TrimSpace(job.Output.Report) != "" {
		if err := toml.Unmarshal([]byte(job.Output.Report), &report); err != nil {
			return nil, fmt.Errorf("invalid report: %w", err)
		}
	}

	files, _ := report["FILES_PATH"].(map[string]interface{})
	if legacy, ok := report["FILES"].(map[string]interface{}); ok && files == nil {
		files = legacy
	}
	delete(report, "FILES")
	if files == nil {
		files = map[string]interface{}{}
	}

	delete(files, "INPUT")
	delete(files, "LIGAND")
	if job.Files.Input != "" {
		files["INPUT"] = job.Files.Input
	}
	if job.Files.Ligand != "" {
		files["LIGAND"] = job.Files.Ligand
	}
	files["OUTPUT"] = job.CavityPath()
	report["FILES_PATH"] = files

	var buf bytes.Buffer
	buf.WriteString(resultsHeader)
	if err := toml.NewEncoder(&buf).Encode(report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderLog names the job in the run line and drops dictionary lines.
func renderLog(id, log string) []byte {
	var buf bytes.Buffer
	for _, line := range strings.Split(log, "\n") {
		switch {
		case strings.Contains(line, runningMarker):
			line = "Running parKVFinder for job ID: " + id
		case strings.Contains(line, dictionaryMarker):
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

type parametersFile struct {
	Title    string           `toml:"title"`
	Files    parametersFiles  `toml:"files"`
	Settings *models.Settings `toml:"settings" comment:"Settings for cavity detection."`
}

type parametersFiles struct {
	PDB    string `toml:"pdb" comment:"The path of the input PDB file."`
	Ligand string `toml:"ligand" comment:"The path for the ligand's PDB file."`
}

func renderParameters(job *models.Job) ([]byte, error) {
	ligand := job.Files.Ligand
	if ligand == "" {
		ligand = "-"
	}

	var buf bytes.Buffer
	buf.WriteString(parametersHeader)
	err := toml.NewEncoder(&buf).Encode(parametersFile{
		Title:    parametersTitle,
		Files:    parametersFiles{PDB: job.Files.Input, Ligand: ligand},
		Settings: job.Settings,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
