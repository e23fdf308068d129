package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/export"
	"rtstudyexport/pkg/geometry"
	"rtstudyexport/pkg/logging"
	"rtstudyexport/pkg/stl"
)

func TestStudyWriter(t *testing.T) {
	dir := t.TempDir()
	img := models.NewVolumeGrid("CT", [6]int{0, 3, 0, 3, 0, 1}, geometry.Identity())
	mask := models.NewVolumeGrid("Mask", img.Extent, img.IndexToWorld)
	mask.Set(1, 1, 0, 1)

	bundle := &models.ExportBundle{
		Image: img,
		Structures: []models.Structure{
			{Name: "Left Lung", Mask: mask},
			{Name: "PTV", Slices: []models.SliceContours{{
				SliceIndex: 1,
				Contours: []models.Contour{{
					Closed: true,
					Points: []geometry.Vec3{{X: 1, Y: 1, Z: 1}, {X: 2, Y: 1, Z: 1}, {X: 2, Y: 2, Z: 1}},
				}},
			}}},
		},
		OutputDirectory: dir,
	}

	w := &studyWriter{log: logging.Discard(), savePreviews: true, previewDir: "previews", previewSize: 32}
	if err := w.Write(bundle); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	for _, name := range []string{
		"image.raw",
		"summary.yaml",
		filepath.Join("structures", "Left_Lung.raw"),
		filepath.Join("structures", "PTV.yaml"),
		filepath.Join("previews", "slice_001.png"),
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to be written: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "dose.raw")); !os.IsNotExist(err) {
		t.Errorf("Expected no dose file without a dose grid")
	}

	data, err := os.ReadFile(filepath.Join(dir, "summary.yaml"))
	if err != nil {
		t.Fatalf("Failed to read summary: %v", err)
	}
	var summary export.Summary
	if err := yaml.Unmarshal(data, &summary); err != nil {
		t.Fatalf("Failed to parse summary: %v", err)
	}
	if len(summary.Structures) != 2 || summary.Structures[0].Voxels != 1 {
		t.Errorf("Unexpected summary: %+v", summary.Structures)
	}

	var contours contourFile
	data, err = os.ReadFile(filepath.Join(dir, "structures", "PTV.yaml"))
	if err != nil {
		t.Fatalf("Failed to read contours: %v", err)
	}
	if err := yaml.Unmarshal(data, &contours); err != nil {
		t.Fatalf("Failed to parse contours: %v", err)
	}
	if len(contours.Slices) != 1 || len(contours.Slices[0].Contours[0]) != 3 {
		t.Errorf("Unexpected contours: %+v", contours)
	}
}

func TestStudyWriterWorldMeshes(t *testing.T) {
	dir := t.TempDir()
	img := models.NewVolumeGrid("CT", [6]int{0, 3, 0, 3, 0, 1}, geometry.Identity())
	surface := &models.ClosedSurfaceMesh{
		Points: []geometry.Vec3{{}, {X: 1}, {Y: 1}, {Z: 1}},
		Polys:  [][]int{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}},
	}
	bundle := &models.ExportBundle{
		Image: img,
		Structures: []models.Structure{
			{Name: "GTV 1", WorldMesh: surface},
			{Name: "Body"},
		},
		OutputDirectory: dir,
	}

	w := &studyWriter{log: logging.Discard(), saveMeshes: true, meshDir: "meshes"}
	if err := w.Write(bundle); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	triangles, err := stl.LoadSTL(filepath.Join(dir, "meshes", "GTV_1.stl"))
	if err != nil {
		t.Fatalf("Failed to load world mesh: %v", err)
	}
	if len(triangles) != 4 {
		t.Errorf("Expected 4 triangles, got %d", len(triangles))
	}
	if _, err := os.Stat(filepath.Join(dir, "meshes", "Body.stl")); !os.IsNotExist(err) {
		t.Errorf("Expected no mesh for a structure without a surface")
	}
}

func TestFileName(t *testing.T) {
	if got := fileName("GTV 1/2: boost"); got != "GTV_1_2__boost" {
		t.Errorf("Unexpected file name %q", got)
	}
}
