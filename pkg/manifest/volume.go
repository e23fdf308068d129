package manifest

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// indexToWorld returns the index-to-world matrix described by v
func (v *Volume) indexToWorld() (geometry.Matrix4, error) {
	if len(v.IndexToWorld) > 0 {
		return matrix(v.IndexToWorld)
	}

	spacing := v.Spacing
	for axis := range spacing {
		if spacing[axis] == 0 {
			spacing[axis] = 1
		}
	}
	axes := [3]geometry.Vec3{{X: 1}, {Y: 1}, {Z: 1}}
	if len(v.Directions) > 0 {
		if len(v.Directions) != 3 {
			return geometry.Matrix4{}, fmt.Errorf("directions must list 3 axes, got %d", len(v.Directions))
		}
		for axis, d := range v.Directions {
			axes[axis] = geometry.Vec3{X: d[0], Y: d[1], Z: d[2]}
			if axes[axis].Norm() == 0 {
				return geometry.Matrix4{}, fmt.Errorf("direction %d: %w", axis, geometry.ErrDegenerateTransform)
			}
		}
	}
	origin := geometry.Vec3{X: v.Origin[0], Y: v.Origin[1], Z: v.Origin[2]}
	return geometry.FromAxes(origin, spacing, axes), nil
}

// load reads the raw samples of v from path
func (v *Volume) load(name, path string) (*models.VolumeGrid, error) {
	m, err := v.indexToWorld()
	if err != nil {
		return nil, fmt.Errorf("volume %s geometry: %w", name, err)
	}
	grid := models.NewVolumeGrid(name, v.Extent, m)
	if len(grid.Data) == 0 {
		return nil, fmt.Errorf("volume %s has an empty extent %v", name, v.Extent)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume file: %w", err)
	}
	defer f.Close()

	if err := readSamples(bufio.NewReader(f), v.Type, grid.Data); err != nil {
		return nil, fmt.Errorf("failed to read volume %s from %s: %w", name, path, err)
	}

	slope := v.RescaleSlope
	if slope == 0 {
		slope = 1
	}
	if slope != 1 || v.RescaleIntercept != 0 {
		for i, s := range grid.Data {
			grid.Data[i] = s*slope + v.RescaleIntercept
		}
	}
	return grid, nil
}

// readSamples fills out with little-endian samples of the given type
func readSamples(r *bufio.Reader, sampleType string, out []float64) error {
	n := len(out)
	switch sampleType {
	case "uint8", "":
		buf := make([]uint8, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return err
		}
		for i, s := range buf {
			out[i] = float64(s)
		}
	case "int16":
		buf := make([]int16, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return err
		}
		for i, s := range buf {
			out[i] = float64(s)
		}
	case "uint16":
		buf := make([]uint16, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return err
		}
		for i, s := range buf {
			out[i] = float64(s)
		}
	case "float32":
		buf := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return err
		}
		for i, s := range buf {
			out[i] = float64(s)
		}
	case "float64":
		if err := binary.Read(r, binary.LittleEndian, out); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported sample type %q", sampleType)
	}
	return nil
}

// WriteRaw stores the samples of v as little-endian values of sampleType
func WriteRaw(path string, v *models.VolumeGrid, sampleType string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create volume file: %w", err)
	}
	w := bufio.NewWriter(f)

	var data any
	switch sampleType {
	case "uint8":
		buf := make([]uint8, len(v.Data))
		for i, s := range v.Data {
			buf[i] = uint8(s)
		}
		data = buf
	case "int16":
		buf := make([]int16, len(v.Data))
		for i, s := range v.Data {
			buf[i] = int16(s)
		}
		data = buf
	case "uint16":
		buf := make([]uint16, len(v.Data))
		for i, s := range v.Data {
			buf[i] = uint16(s)
		}
		data = buf
	case "float32":
		buf := make([]float32, len(v.Data))
		for i, s := range v.Data {
			buf[i] = float32(s)
		}
		data = buf
	case "float64":
		data = v.Data
	default:
		f.Close()
		return fmt.Errorf("unsupported sample type %q", sampleType)
	}

	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write volume file: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write volume file: %w", err)
	}
	return f.Close()
}
