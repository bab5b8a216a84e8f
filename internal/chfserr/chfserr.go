// Package chfserr defines the error taxonomy of §7: a small set of kinds,
// each carrying its own HTTP status and response code, so every layer
// (storage, rules, auth, direct transfer, API) raises errors the exception
// shield middleware can translate uniformly.
package chfserr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/chfs/chfs/internal/model"
)

// Kind is one taxonomy entry from §7.
type Kind string

const (
	KindAuthRequired    Kind = "AUTH_REQUIRED"
	KindForbidden       Kind = "FORBIDDEN"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindPayloadTooLarge Kind = "PAYLOAD_TOO_LARGE"
	KindQuotaExceeded   Kind = "QUOTA_EXCEEDED"
	KindRateLimited     Kind = "RATE_LIMITED"
	KindBadRequest      Kind = "BAD_REQUEST"
	KindBadPath         Kind = "BAD_PATH"
	KindPathTraversal   Kind = "PATH_TRAVERSAL"
	KindNotDir          Kind = "NOT_DIR"
	KindParentMissing   Kind = "PARENT_MISSING"
	KindInternal        Kind = "INTERNAL_ERROR"
)

// Error is a taxonomy-tagged error carrying an optional human message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return string(e.Kind)
}

// New builds an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// As unwraps err into a *Error if possible.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to its mirrored HTTP status per §7.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPayloadTooLarge, KindQuotaExceeded:
		return http.StatusRequestEntityTooLarge
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindBadRequest, KindBadPath, KindPathTraversal:
		return http.StatusBadRequest
	case KindNotDir, KindParentMissing:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ResponseCode maps a Kind to the code field of the {code,msg,data}
// envelope: code 0 is reserved for success, so every error uses its
// mirrored HTTP status.
func (k Kind) ResponseCode() model.ResponseCode {
	return model.ResponseCode(k.HTTPStatus())
}
