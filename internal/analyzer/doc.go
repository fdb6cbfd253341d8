// Package analyzer turns raw detector output for a frame into priced
// violation records.
//
// A frame is processed in two passes. The full-frame pass finds riders; for
// each rider the region around it is cropped and searched again for helmets,
// bare heads and license plates. Plates found in the second pass are cropped
// once more and handed to a plate recognizer.
//
// Failures in the per-rider pass never abort the frame: the affected fields
// of the rider record stay unknown and the failure is logged. Only a failure
// of the full-frame pass is returned to the caller.
package analyzer
