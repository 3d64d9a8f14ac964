// Package validate checks identifier syntax (SPEC_FULL.md §6.4) and
// composes validators the way the teacher's internal/validation package
// does: small functions chained in order, first error wins.
package validate

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/webpods-go/webpods/internal/apperrors"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Struct runs struct-tag validation (go-playground/validator) over v,
// translating the first failing field into an INVALID_INPUT error —
// used for request bodies with more than one interdependent field,
// where the single-purpose identifier checks below don't fit.
func Struct(v any) error {
	if err := structValidator.Struct(v); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return apperrors.New(apperrors.KindInvalidInput, "invalid "+fe.Field()+": failed "+fe.Tag())
		}
		return apperrors.Wrap(apperrors.KindInvalidInput, "validate request body", err)
	}
	return nil
}

var (
	podNameRe     = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	recordNameRe  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// PodName validates a pod's DNS label.
func PodName(name string) error {
	if len(name) == 0 || len(name) > 63 || !podNameRe.MatchString(name) {
		return apperrors.New(apperrors.KindInvalidInput, "invalid pod name: "+name)
	}
	return nil
}

// StreamSegment validates a single path segment of a stream (not the
// full slash-joined path): non-empty, no slash, no leading/trailing dot
// (the segment ".config" is allowed).
func StreamSegment(segment string) error {
	if segment == "" {
		return apperrors.New(apperrors.KindInvalidInput, "stream segment must not be empty")
	}
	if strings.Contains(segment, "/") {
		return apperrors.New(apperrors.KindInvalidInput, "stream segment must not contain '/': "+segment)
	}
	if strings.HasPrefix(segment, ".") && segment != ".config" {
		return apperrors.New(apperrors.KindInvalidInput, "stream segment must not start with '.': "+segment)
	}
	if strings.HasSuffix(segment, ".") {
		return apperrors.New(apperrors.KindInvalidInput, "stream segment must not end with '.': "+segment)
	}
	return nil
}

// RecordName validates a record name: <=256 chars, [A-Za-z0-9._-],
// no slash, '.' not at start or end, non-empty.
func RecordName(name string) error {
	if name == "" {
		return apperrors.New(apperrors.KindInvalidInput, "record name must not be empty")
	}
	if len(name) > 256 {
		return apperrors.New(apperrors.KindInvalidInput, "record name exceeds 256 characters")
	}
	if !recordNameRe.MatchString(name) {
		return apperrors.New(apperrors.KindInvalidInput, "record name contains invalid characters: "+name)
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return apperrors.New(apperrors.KindInvalidInput, "record name must not start or end with '.': "+name)
	}
	return nil
}

// SplitPath splits a slash-joined request path into its segments,
// dropping empty leading/trailing segments produced by a leading or
// trailing '/'.
func SplitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
