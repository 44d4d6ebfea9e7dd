package interfaces

import "github.com/ternarybob/cavitas/internal/models"

// StructureHost is the visualization host seen from the core: a set of
// named molecular structure objects that can be written to disk and
// measured. Rendering stays on the host side.
type StructureHost interface {
	Names() ([]string, error)
	Export(name, path string) error
	Extent(name string) (*models.Extent, error)
}
