// Package imaging provides the frame handling used by the violation pipeline:
// decoding uploaded frames, extracting padded regions of interest, and drawing
// annotated detection overlays.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based with the origin at the
// top-left corner, X increasing rightward and Y increasing downward. For
// regions, (x1,y1) is inclusive (top-left) and (x2,y2) is exclusive
// (bottom-right).
//
// # Region Extraction
//
// ExtractRegion pads a detection box by a margin, clamps the padded box to the
// image bounds and crops it. The pipeline uses a 10px margin to isolate a
// rider from the full frame and a 50px margin to isolate a license plate from
// a rider crop. A padded box that does not overlap the image at all yields
// ErrEmptyRegion; callers treat that as "unknown", never as a crash.
//
// # Thread Safety
//
// FrameCache and Palette are safe for concurrent use. ExtractRegion and
// Annotate never modify their input image.
package imaging
