package violation

// TripleRidingThreshold is the occupant count at which TripleRiding fires.
const TripleRidingThreshold = 3

// Classify maps a rider record to its violation tags.
//
// Each rule is an independent predicate over r:
//   - helmet not worn adds NoHelmet
//   - plate not visible (including unknown) adds NoLicensePlate
//   - TripleRidingThreshold or more occupants adds TripleRiding
//
// Scene-level tags that cannot be derived from a rider crop, such as
// RedLightJumping, are passed in through scene. A rider with no tags gets the
// explicit NoViolation set.
func Classify(r RiderRecord, scene ...Tag) TagSet {
	var tags []Tag

	if r.Helmet == HelmetNotWorn {
		tags = append(tags, NoHelmet)
	}
	if r.Plate != PlateVisible {
		tags = append(tags, NoLicensePlate)
	}
	if r.PassengerCount >= TripleRidingThreshold {
		tags = append(tags, TripleRiding)
	}
	for _, t := range scene {
		if t != NoViolation {
			tags = append(tags, t)
		}
	}

	if len(tags) == 0 {
		return Clean()
	}
	return NewTagSet(tags...)
}
