// Package manifest describes an RT study on disk as a YAML document and turns it
// into exportables: raw volume files for images, dose and masks, and STL files for
// closed surface structures.
package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// Manifest is the root of a study manifest
type Manifest struct {
	// OutputDirectory is where exported files go, relative to the manifest
	OutputDirectory string `yaml:"outputDirectory"`

	Study Study  `yaml:"study"`
	Items []Item `yaml:"items"`

	// baseDir resolves relative file names
	baseDir string
}

// Study holds patient and study information shared by every item
type Study struct {
	InstanceUID string            `yaml:"instanceUID"`
	ID          string            `yaml:"id"`
	Tags        map[string]string `yaml:"tags"`
}

// Item is one exportable entry. Exactly one of Volume and Segmentation is set.
type Item struct {
	Name string            `yaml:"name"`
	Tags map[string]string `yaml:"tags"`

	Volume       *Volume       `yaml:"volume,omitempty"`
	Segmentation *Segmentation `yaml:"segmentation,omitempty"`

	// SliceInstanceUIDs lists the instance UID of every slice of an image, in slice order
	SliceInstanceUIDs []string `yaml:"sliceInstanceUIDs,omitempty"`
}

// Volume is a raw little-endian sample file and its geometry
type Volume struct {
	File string `yaml:"file"`

	// Type is the sample type: uint8, int16, uint16, float32 or float64
	Type string `yaml:"type"`

	// Extent is the inclusive index range per axis: i0 i1 j0 j1 k0 k1
	Extent [6]int `yaml:"extent"`

	// IndexToWorld, when set, is the full 4x4 row-major matrix and overrides
	// Origin, Spacing and Directions
	IndexToWorld [][]float64 `yaml:"indexToWorld,omitempty"`

	Origin     [3]float64   `yaml:"origin"`
	Spacing    [3]float64   `yaml:"spacing"`
	Directions [][3]float64 `yaml:"directions,omitempty"`

	// Samples are stored as value*RescaleSlope + RescaleIntercept; a zero slope means 1
	RescaleSlope     float64 `yaml:"rescaleSlope,omitempty"`
	RescaleIntercept float64 `yaml:"rescaleIntercept,omitempty"`
}

// Segmentation is a set of segments sharing a master representation
type Segmentation struct {
	// Master is binaryLabelmap, closedSurface, planarContour or fractionalLabelmap
	Master string `yaml:"master"`

	// ParentTransform maps segmentation space to world space (4x4, row-major)
	ParentTransform [][]float64 `yaml:"parentTransform,omitempty"`

	Segments []SegmentEntry `yaml:"segments"`
}

// SegmentEntry is one structure. Surface names an STL file, Mask a raw labelmap.
type SegmentEntry struct {
	ID      string     `yaml:"id"`
	Name    string     `yaml:"name"`
	Color   [3]float64 `yaml:"color"`
	Surface string     `yaml:"surface,omitempty"`
	Mask    *Volume    `yaml:"mask,omitempty"`
}

// Load reads the manifest at path. Relative file names are resolved against the
// manifest's directory.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	m, err := Parse(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest, resolving relative file names against baseDir
func Parse(r io.Reader, baseDir string) (*Manifest, error) {
	m := &Manifest{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	m.baseDir = baseDir
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	if len(m.Items) == 0 {
		return fmt.Errorf("manifest lists no items")
	}
	for i, item := range m.Items {
		if item.Name == "" {
			return fmt.Errorf("item %d has no name", i)
		}
		if (item.Volume == nil) == (item.Segmentation == nil) {
			return fmt.Errorf("item %s must have exactly one of volume and segmentation", item.Name)
		}
		if item.Segmentation != nil {
			if _, err := parseRepresentation(item.Segmentation.Master); err != nil {
				return fmt.Errorf("item %s: %w", item.Name, err)
			}
		}
	}
	return nil
}

// resolve returns name relative to the manifest directory unless it is absolute
func (m *Manifest) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(m.baseDir, name)
}

func parseRepresentation(name string) (models.RepresentationKind, error) {
	switch strings.ToLower(name) {
	case "binarylabelmap", "labelmap":
		return models.BinaryLabelmap, nil
	case "closedsurface", "surface":
		return models.ClosedSurface, nil
	case "planarcontour":
		return models.PlanarContour, nil
	case "fractionallabelmap":
		return models.FractionalLabelmap, nil
	default:
		return models.RepresentationUnknown, fmt.Errorf("unknown representation %q", name)
	}
}

// matrix converts a 4x4 row-major list to a Matrix4
func matrix(rows [][]float64) (geometry.Matrix4, error) {
	var m geometry.Matrix4
	if len(rows) != 4 {
		return m, fmt.Errorf("transform must have 4 rows, got %d", len(rows))
	}
	for r, row := range rows {
		if len(row) != 4 {
			return m, fmt.Errorf("transform row %d must have 4 values, got %d", r, len(row))
		}
		copy(m[r][:], row)
	}
	return m, nil
}
