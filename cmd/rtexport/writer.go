package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/export"
	"rtstudyexport/pkg/manifest"
	"rtstudyexport/pkg/stl"
	"rtstudyexport/pkg/visualization"
)

// studyWriter stores an export bundle as raw volumes, YAML contours and a summary
type studyWriter struct {
	log          logrus.FieldLogger
	savePreviews bool
	previewDir   string
	previewSize  int
	saveMeshes   bool
	meshDir      string
}

// contourFile is the YAML layout of one structure's contours
type contourFile struct {
	Name   string         `yaml:"name"`
	Color  [3]float64     `yaml:"color"`
	Slices []contourSlice `yaml:"slices"`
}

type contourSlice struct {
	Index    int            `yaml:"index"`
	UID      string         `yaml:"uid,omitempty"`
	Contours [][][3]float64 `yaml:"contours"`
}

// Write implements export.Writer
func (w *studyWriter) Write(bundle *models.ExportBundle) error {
	dir := bundle.OutputDirectory
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := manifest.WriteRaw(filepath.Join(dir, "image.raw"), bundle.Image, "float32"); err != nil {
		return err
	}
	if bundle.Dose != nil {
		if err := manifest.WriteRaw(filepath.Join(dir, "dose.raw"), bundle.Dose, "float32"); err != nil {
			return err
		}
	}

	for i := range bundle.Structures {
		st := &bundle.Structures[i]
		base := filepath.Join(dir, "structures", fileName(st.Name))
		if err := os.MkdirAll(filepath.Dir(base), 0755); err != nil {
			return fmt.Errorf("failed to create structure directory: %w", err)
		}
		if st.IsMask() {
			if err := manifest.WriteRaw(base+".raw", st.Mask, "uint8"); err != nil {
				return err
			}
			continue
		}
		if err := writeYAML(base+".yaml", contoursOf(st)); err != nil {
			return err
		}
		if w.saveMeshes && st.WorldMesh != nil {
			path := filepath.Join(dir, w.meshDir, fileName(st.Name)+".stl")
			if err := stl.SaveToSTL(path, stl.TrianglesFromMesh(st.WorldMesh)); err != nil {
				return fmt.Errorf("failed to save world mesh of %s: %w", st.Name, err)
			}
		}
	}

	summary := export.Summarize(bundle)
	if err := writeYAML(filepath.Join(dir, "summary.yaml"), summary); err != nil {
		return err
	}
	for _, s := range summary.Structures {
		w.log.WithFields(logrus.Fields{
			"structure": s.Name,
			"kind":      s.Kind,
			"slices":    s.Slices,
			"voxels":    s.Voxels,
		}).Info("Exported structure")
	}

	if w.savePreviews {
		viewer, err := visualization.NewViewer(bundle.Image, bundle.Structures)
		if err != nil {
			return fmt.Errorf("failed to create preview viewer: %w", err)
		}
		previewDir := filepath.Join(dir, w.previewDir)
		if err := viewer.SaveSliceSequence(previewDir, w.previewSize); err != nil {
			// Previews are a convenience; the export itself is complete
			w.log.WithError(err).Warn("Failed to save previews")
		} else {
			w.log.WithField("dir", previewDir).Info("Saved slice previews")
		}
	}
	return nil
}

func contoursOf(st *models.Structure) contourFile {
	out := contourFile{
		Name:  st.Name,
		Color: [3]float64{st.Color.R, st.Color.G, st.Color.B},
	}
	for _, sc := range st.Slices {
		slice := contourSlice{Index: sc.SliceIndex, UID: sc.SliceInstanceUID}
		for _, c := range sc.Contours {
			points := make([][3]float64, len(c.Points))
			for i, p := range c.Points {
				points[i] = [3]float64{p.X, p.Y, p.Z}
			}
			slice.Contours = append(slice.Contours, points)
		}
		out.Slices = append(out.Slices, slice)
	}
	return out
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// fileName makes a structure name safe to use as a file name
func fileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
