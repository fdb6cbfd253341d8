// Package ocr reads license plates from cropped plate images.
//
// Two PlateRecognizer backends are provided:
//
//   - TesseractRecognizer: local OCR through gosseract/v2. Crops are
//     upscaled, converted to grayscale, contrast-boosted and sharpened before
//     recognition, and Tesseract is restricted to plate characters in
//     single-line mode.
//   - PlateReaderClient: a remote plate-reader HTTP API.
//
// UnavailableRecognizer stands in when neither is configured.
//
// # Prerequisites
//
// TesseractRecognizer needs Tesseract and its language data installed:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// # Normalization
//
// Every backend returns plates passed through NormalizePlate: uppercase,
// letters and digits only. "ka 01-ab 1234" becomes "KA01AB1234".
//
// # Error Handling
//
// All failures, including a read that produced no usable text, wrap
// ErrExternalService. Callers never need to inspect backend-specific errors;
// the rider analysis turns any failure into the "Detection failed" sentinel.
package ocr
