package domain

import "time"

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Surface is a planar element: wall, door, window, opening or floor.
// Dimensions are width, height, depth in meters; Transform is a column-major
// 4x4 matrix placing the element in room space.
type Surface struct {
	Identifier string      `json:"identifier"`
	Category   string      `json:"category"`
	Dimensions [3]float64  `json:"dimensions"`
	Transform  [16]float64 `json:"transform"`
	Confidence Confidence  `json:"confidence"`
}

type Object struct {
	Identifier string      `json:"identifier"`
	Category   string      `json:"category"`
	Dimensions [3]float64  `json:"dimensions"`
	Transform  [16]float64 `json:"transform"`
	Confidence Confidence  `json:"confidence"`
}

type Section struct {
	Label  string     `json:"label"`
	Center [3]float64 `json:"center"`
	Story  int        `json:"story"`
}

// CapturedRoom is the processed result the scanning subsystem hands over.
// It is treated as immutable once delivered.
type CapturedRoom struct {
	Identifier string    `json:"identifier"`
	Story      int       `json:"story"`
	Version    int       `json:"version"`
	Walls      []Surface `json:"walls"`
	Doors      []Surface `json:"doors"`
	Windows    []Surface `json:"windows"`
	Openings   []Surface `json:"openings"`
	Floors     []Surface `json:"floors"`
	Objects    []Object  `json:"objects"`
	Sections   []Section `json:"sections"`
}

type ElementCounts struct {
	Walls    int `json:"walls"`
	Doors    int `json:"doors"`
	Windows  int `json:"windows"`
	Openings int `json:"openings"`
	Floors   int `json:"floors"`
	Objects  int `json:"objects"`
	Sections int `json:"sections"`
}

func (c ElementCounts) Total() int {
	return c.Walls + c.Doors + c.Windows + c.Openings + c.Floors + c.Objects + c.Sections
}

func (r CapturedRoom) Counts() ElementCounts {
	return ElementCounts{
		Walls:    len(r.Walls),
		Doors:    len(r.Doors),
		Windows:  len(r.Windows),
		Openings: len(r.Openings),
		Floors:   len(r.Floors),
		Objects:  len(r.Objects),
		Sections: len(r.Sections),
	}
}

func (r CapturedRoom) IsEmpty() bool {
	return r.Counts().Total() == 0
}

type ExportMode string

const ExportParametric ExportMode = "parametric"

// ExportArtifacts names the two files written for one export. Both share ID.
type ExportArtifacts struct {
	ID        string
	DataPath  string
	ModelPath string
}

type CaptureConfig struct {
	SessionID       string
	CoachingEnabled bool
}

type Capability struct {
	Supported bool
	Device    string
	Reason    string
}

type ScanRecord struct {
	ID        string
	SessionID string
	DataPath  string
	ModelPath string
	Counts    ElementCounts
	CreatedAt time.Time
}
