package export

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/contour"
	"rtstudyexport/pkg/geometry"
)

// VolumeSummary describes an exported grid
type VolumeSummary struct {
	Dimensions [3]int     `yaml:"dimensions"`
	Spacing    [3]float64 `yaml:"spacing"`
	Origin     [3]float64 `yaml:"origin"`
	Min        float64    `yaml:"min"`
	Max        float64    `yaml:"max"`
	Mean       float64    `yaml:"mean"`
}

// StructureSummary describes an exported structure
type StructureSummary struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Mask structures
	Voxels int     `yaml:"voxels,omitempty"`
	Volume float64 `yaml:"volume,omitempty"`

	// Contour structures
	Slices     int     `yaml:"slices,omitempty"`
	Contours   int     `yaml:"contours,omitempty"`
	FirstSlice int     `yaml:"firstSlice,omitempty"`
	LastSlice  int     `yaml:"lastSlice,omitempty"`
	MeanArea   float64 `yaml:"meanArea,omitempty"`
	StdDevArea float64 `yaml:"stdDevArea,omitempty"`
	MaxArea    float64 `yaml:"maxArea,omitempty"`
}

// Summary is a compact, serializable description of an ExportBundle
type Summary struct {
	PatientID        string             `yaml:"patientId"`
	StudyInstanceUID string             `yaml:"studyInstanceUid"`
	Image            VolumeSummary      `yaml:"image"`
	Dose             *VolumeSummary     `yaml:"dose,omitempty"`
	Structures       []StructureSummary `yaml:"structures"`
}

// Summarize computes per-volume and per-structure statistics of bundle
func Summarize(bundle *models.ExportBundle) Summary {
	s := Summary{
		PatientID:        bundle.Study.PatientID,
		StudyInstanceUID: bundle.Study.StudyInstanceUID,
		Image:            summarizeVolume(bundle.Image),
	}
	if bundle.Dose != nil {
		dose := summarizeVolume(bundle.Dose)
		s.Dose = &dose
	}

	normal := bundle.Image.IndexToWorld.Column(2).Normalize()
	for i := range bundle.Structures {
		s.Structures = append(s.Structures, summarizeStructure(&bundle.Structures[i], normal))
	}
	return s
}

func summarizeVolume(v *models.VolumeGrid) VolumeSummary {
	nx, ny, nz := v.Dims()
	origin := v.WorldPosition(float64(v.Extent[0]), float64(v.Extent[2]), float64(v.Extent[4]))
	min, max := v.Range()
	return VolumeSummary{
		Dimensions: [3]int{nx, ny, nz},
		Spacing:    v.Spacing(),
		Origin:     [3]float64{origin.X, origin.Y, origin.Z},
		Min:        min,
		Max:        max,
		Mean:       stat.Mean(v.Data, nil),
	}
}

func summarizeStructure(st *models.Structure, normal geometry.Vec3) StructureSummary {
	if st.IsMask() {
		voxels := 0
		for _, s := range st.Mask.Data {
			if s != 0 {
				voxels++
			}
		}
		sp := st.Mask.Spacing()
		return StructureSummary{
			Name:   st.Name,
			Kind:   "mask",
			Voxels: voxels,
			Volume: float64(voxels) * sp[0] * sp[1] * sp[2],
		}
	}

	out := StructureSummary{
		Name:     st.Name,
		Kind:     "contours",
		Slices:   len(st.Slices),
		Contours: st.ContourCount(),
	}
	if len(st.Slices) == 0 {
		return out
	}
	out.FirstSlice = st.Slices[0].SliceIndex
	out.LastSlice = st.Slices[len(st.Slices)-1].SliceIndex

	// Enclosed area per slice; holes and islands add up by magnitude
	areas := make([]float64, len(st.Slices))
	for i, sc := range st.Slices {
		for _, c := range sc.Contours {
			areas[i] += math.Abs(contour.Area(c, normal))
		}
	}
	out.MeanArea, out.StdDevArea = stat.MeanStdDev(areas, nil)
	if len(areas) < 2 {
		out.StdDevArea = 0
	}
	out.MaxArea = areas[0]
	for _, a := range areas[1:] {
		out.MaxArea = math.Max(out.MaxArea, a)
	}
	return out
}
