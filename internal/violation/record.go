package violation

import (
	"time"

	"github.com/google/uuid"
)

// Record is a priced, timestamped violation outcome for one rider. Records
// are values: once built they are never modified.
type Record struct {
	ID          uuid.UUID   `json:"id"`
	Rider       RiderRecord `json:"rider"`
	Tags        TagSet      `json:"violations"`
	Fine        int         `json:"fine_amount"`
	Timestamp   time.Time   `json:"timestamp"`
	Filename    string      `json:"filename"`
	VehicleType string      `json:"vehicle_type,omitempty"`
	Location    string      `json:"location,omitempty"`

	// Source names the detector backend that produced the rider.
	Source string `json:"source"`
	// Synthetic is set when Source fabricated its detections.
	Synthetic bool `json:"synthetic"`
}

// RecordInput carries everything NewRecord needs besides the fine table.
type RecordInput struct {
	Rider       RiderRecord
	Tags        TagSet
	Timestamp   time.Time
	Filename    string
	VehicleType string
	Location    string
	Source      string
	Synthetic   bool
}

// NewRecord prices in.Tags with fines and returns the finished record. An
// empty tag set is replaced by the explicit NoViolation set.
func NewRecord(fines *FineTable, in RecordInput) (Record, error) {
	tags := in.Tags
	if tags.Len() == 0 {
		tags = Clean()
	}

	fine, err := fines.Compute(tags)
	if err != nil {
		return Record{}, err
	}

	return Record{
		ID:          uuid.New(),
		Rider:       in.Rider,
		Tags:        tags,
		Fine:        fine,
		Timestamp:   in.Timestamp,
		Filename:    in.Filename,
		VehicleType: in.VehicleType,
		Location:    in.Location,
		Source:      in.Source,
		Synthetic:   in.Synthetic,
	}, nil
}

// HasViolation reports whether the record carries any fined tag.
func (r Record) HasViolation() bool {
	return !r.Tags.IsClean() && len(r.Tags.Violations()) > 0
}
