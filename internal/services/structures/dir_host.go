// Package structures serves named molecular structures from a directory.
package structures

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/common"
	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
)

const pdbExt = ".pdb"

// ErrUnknownStructure is returned for a name with no file behind it.
var ErrUnknownStructure = errors.New("unknown structure")

// DirHost exposes every <name>.pdb file in a directory as a structure object.
type DirHost struct {
	dir    string
	logger arbor.ILogger
}

var _ interfaces.StructureHost = (*DirHost)(nil)

// NewDirHost creates a host over dir.
func NewDirHost(dir string, logger arbor.ILogger) *DirHost {
	return &DirHost{dir: dir, logger: logger}
}

func (h *DirHost) path(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrUnknownStructure, name)
	}
	p := filepath.Join(h.dir, name+pdbExt)
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownStructure, name)
	}
	return p, nil
}

// Names lists the structure objects, sorted. A missing directory has none.
func (h *DirHost) Names() ([]string, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list structures in %s: %w", h.dir, err)
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != pdbExt {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), pdbExt))
	}
	sort.Strings(names)
	return names, nil
}

// Export writes the structure to path.
func (h *DirHost) Export(name, path string) error {
	src, err := h.path(name)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read structure %s: %w", name, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := common.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to export structure %s: %w", name, err)
	}

	h.logger.Debug().Str("structure", name).Str("path", path).Msg("Structure exported")
	return nil
}

// Read returns the PDB text of the structure.
func (h *DirHost) Read(name string) (string, error) {
	src, err := h.path(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("failed to read structure %s: %w", name, err)
	}
	return string(data), nil
}

// Extent returns the bounding box of the structure's atoms.
func (h *DirHost) Extent(name string) (*models.Extent, error) {
	src, err := h.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read structure %s: %w", name, err)
	}
	extent, err := PDBExtent(data)
	if err != nil {
		return nil, fmt.Errorf("structure %s: %w", name, err)
	}
	return extent, nil
}

// PDBExtent computes the bounding box of ATOM and HETATM records.
// Coordinates are read from the fixed PDB columns 31-54.
func PDBExtent(data []byte) (*models.Extent, error) {
	min := models.Point{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := models.Point{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	atoms := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "ATOM") && !strings.HasPrefix(line, "HETATM") {
			continue
		}
		if len(line) < 54 {
			return nil, fmt.Errorf("short coordinate record %q", line)
		}

		var xyz [3]float64
		for i := range xyz {
			field := strings.TrimSpace(line[30+8*i : 38+8*i])
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("bad coordinate %q: %w", field, err)
			}
			xyz[i] = v
		}

		min.X, max.X = math.Min(min.X, xyz[0]), math.Max(max.X, xyz[0])
		min.Y, max.Y = math.Min(min.Y, xyz[1]), math.Max(max.Y, xyz[1])
		min.Z, max.Z = math.Min(min.Z, xyz[2]), math.Max(max.Z, xyz[2])
		atoms++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if atoms == 0 {
		return nil, fmt.Errorf("no atom records")
	}

	return &models.Extent{Min: min, Max: max}, nil
}
