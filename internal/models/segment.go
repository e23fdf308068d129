package models

// RepresentationKind names a segmentation representation
type RepresentationKind int

const (
	RepresentationUnknown RepresentationKind = iota
	BinaryLabelmap
	ClosedSurface
	PlanarContour
	FractionalLabelmap
)

// String returns the representation name
func (k RepresentationKind) String() string {
	switch k {
	case BinaryLabelmap:
		return "binary labelmap"
	case ClosedSurface:
		return "closed surface"
	case PlanarContour:
		return "planar contour"
	case FractionalLabelmap:
		return "fractional labelmap"
	default:
		return "unknown"
	}
}

// Representation carries the representation-specific data of a segment.
// The exporter handles *LabelmapRepresentation and *ClosedSurfaceRepresentation;
// anything else is reported as unsupported.
type Representation interface {
	Kind() RepresentationKind
}

// LabelmapRepresentation is a voxel mask in the segmentation's local space
type LabelmapRepresentation struct {
	Mask *VolumeGrid
}

// Kind implements Representation
func (*LabelmapRepresentation) Kind() RepresentationKind { return BinaryLabelmap }

// ClosedSurfaceRepresentation is a surface mesh in the segmentation's local space
type ClosedSurfaceRepresentation struct {
	Mesh *ClosedSurfaceMesh
}

// Kind implements Representation
func (*ClosedSurfaceRepresentation) Kind() RepresentationKind { return ClosedSurface }

// Segment is one named structure inside a segmentation
type Segment struct {
	ID             string
	Name           string
	Color          Color
	Representation Representation
}
