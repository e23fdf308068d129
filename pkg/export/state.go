package export

// State is a stage of the export pipeline
type State int

const (
	CollectingRoles State = iota
	ValidatingPrimaryImage
	NormalizingGeometry
	ProcessingStructures
	Assembling
	Done
	Failed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case CollectingRoles:
		return "CollectingRoles"
	case ValidatingPrimaryImage:
		return "ValidatingPrimaryImage"
	case NormalizingGeometry:
		return "NormalizingGeometry"
	case ProcessingStructures:
		return "ProcessingStructures"
	case Assembling:
		return "Assembling"
	case Done:
		return "Done"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}
