// Package detection defines the object-detector capability the violation
// pipeline depends on, plus the backends that implement it.
//
// # Detector Contract
//
// An ObjectDetector takes an image and returns one Detection per physical
// object. Backends are expected to apply non-max suppression themselves using
// the thresholds in Options (confidence 0.25, IoU 0.45 by default); this
// package never re-implements NMS. The same detector is used twice per rider:
// once on the full frame (ScopeFrame) and again on the rider crop
// (ScopeRider).
//
// # Backends
//
//   - HTTPDetector: posts the frame to a remote inference endpoint.
//   - SyntheticDetector: fabricates deterministic detections when no model
//     is available. It reports Synthetic() == true so records built from its
//     output can be labeled as such.
//
// # Class Labels
//
// The traffic model emits four classes: "Rider", "Helmet", "No Helmet" and
// "LP" (license plate). Other labels pass through untouched and are ignored
// by the rider analysis.
//
// # Errors
//
// Transport failures, non-2xx responses and malformed payloads wrap
// ErrExternalService.
package detection
