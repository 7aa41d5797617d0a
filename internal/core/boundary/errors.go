package boundary

import "errors"

// Kind classifies import failures so callers can branch on the cause
// instead of matching message strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindEmptyInput
	KindTooLarge
	KindUnsupportedExtension
	KindContainerOpen
	KindXMLParse
	KindMissingShapefile
	KindNoBoundary
	KindShapefileUnavailable
)

// String returns a stable snake_case label, suitable for metrics.
func (k Kind) String() string {
	switch k {
	case KindEmptyInput:
		return "empty_input"
	case KindTooLarge:
		return "too_large"
	case KindUnsupportedExtension:
		return "unsupported_extension"
	case KindContainerOpen:
		return "container_open"
	case KindXMLParse:
		return "xml_parse"
	case KindMissingShapefile:
		return "missing_shapefile"
	case KindNoBoundary:
		return "no_boundary"
	case KindShapefileUnavailable:
		return "shapefile_unavailable"
	default:
		return "unknown"
	}
}

// Error is a terminal import failure. Message is stable and safe to show
// to the uploader verbatim.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf returns the import failure kind of err, or KindUnknown if err
// did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func errEmptyInput() *Error {
	return newError(KindEmptyInput, "File is empty", nil)
}

func errTooLarge() *Error {
	return newError(KindTooLarge, "File too large (max 10 MB)", nil)
}

func errUnsupportedExtension() *Error {
	return newError(KindUnsupportedExtension, "Unsupported file type. Use .kmz, .kml, or .zip (shapefile).", nil)
}

func errContainerOpen(cause error) *Error {
	return newError(KindContainerOpen, "Could not read archive: not a valid zip file.", cause)
}

func errXMLParse(cause error) *Error {
	return newError(KindXMLParse, "KML is not well-formed XML.", cause)
}

func errMissingShapefile() *Error {
	return newError(KindMissingShapefile, "Zip archive contains no .shp member.", nil)
}

func errNoBoundary() *Error {
	return newError(KindNoBoundary, "No polygon boundary found in file or failed to parse.", nil)
}

func errShapefileUnavailable() *Error {
	return newError(KindShapefileUnavailable, "Shapefile support is not enabled in this build.", nil)
}
