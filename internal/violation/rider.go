package violation

import (
	"fmt"

	"github.com/ironsheep/traffic-violations-mcp/internal/imaging"
)

// PlateDetectionFailed is stored as the plate number when a plate was seen
// but recognition failed.
const PlateDetectionFailed = "Detection failed"

// HelmetStatus is the helmet state of a rider.
type HelmetStatus int

const (
	HelmetUnknown HelmetStatus = iota
	HelmetWorn
	HelmetNotWorn
)

var helmetNames = map[HelmetStatus]string{
	HelmetUnknown: "unknown",
	HelmetWorn:    "worn",
	HelmetNotWorn: "not_worn",
}

func (s HelmetStatus) String() string {
	if n, ok := helmetNames[s]; ok {
		return n
	}
	return fmt.Sprintf("HelmetStatus(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s HelmetStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *HelmetStatus) UnmarshalText(b []byte) error {
	for k, v := range helmetNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown helmet status %q", b)
}

// PlateStatus is the license-plate visibility of a rider.
type PlateStatus int

const (
	PlateUnknown PlateStatus = iota
	PlateVisible
	PlateNotVisible
)

var plateNames = map[PlateStatus]string{
	PlateUnknown:    "unknown",
	PlateVisible:    "visible",
	PlateNotVisible: "not_visible",
}

func (s PlateStatus) String() string {
	if n, ok := plateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("PlateStatus(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s PlateStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PlateStatus) UnmarshalText(b []byte) error {
	for k, v := range plateNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown plate status %q", b)
}

// RiderRecord aggregates the sub-detections found inside one rider's region.
//
// PlateNumber is only set when Plate is PlateVisible; it holds
// PlateDetectionFailed when recognition was attempted and failed.
// PassengerCount counts every helmet and no-helmet detection, the rider
// included.
type RiderRecord struct {
	Box            imaging.Box  `json:"box"`
	Helmet         HelmetStatus `json:"helmet_status"`
	Plate          PlateStatus  `json:"license_plate_status"`
	PlateNumber    string       `json:"license_plate_number,omitempty"`
	PassengerCount int          `json:"passenger_count"`
	Confidence     float64      `json:"confidence"`
}

// PlateRecognized reports whether a plate number was actually read.
func (r RiderRecord) PlateRecognized() bool {
	return r.Plate == PlateVisible && r.PlateNumber != "" && r.PlateNumber != PlateDetectionFailed
}
