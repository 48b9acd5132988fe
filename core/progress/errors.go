package progress

import (
	"fmt"

	"github.com/pkg/errors"
)

// Learning platform failures. Every RemoteError has one of them as its cause.
var (
	ErrTimeout       = errors.New("learning platform connection timeout")
	ErrUnavailable   = errors.New("learning platform not available")
	ErrCommunication = errors.New("learning platform communication error")
)

// RemoteError describes a failed learning platform request.
type RemoteError struct {
	Kind       error
	Method     string
	Path       string
	Data       map[string]interface{}
	StatusCode int
	Content    string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: invalid http response: %d %s", e.Kind, e.StatusCode, e.Content)
	default:
		return e.Kind.Error()
	}
}

// Cause lets errors.Cause resolve to the error kind.
func (e *RemoteError) Cause() error { return e.Kind }

func (e *RemoteError) Unwrap() error { return e.Kind }

// Extra is the data reported along with the error.
func (e *RemoteError) Extra() map[string]interface{} {
	extra := map[string]interface{}{
		"path":   e.Path,
		"method": e.Method,
		"data":   e.Data,
	}
	if e.StatusCode != 0 {
		extra["status_code"] = e.StatusCode
		extra["content"] = e.Content
	}
	if e.Err != nil {
		extra["exception"] = e.Err.Error()
	}
	return extra
}

// IsRemote tells whether err is a learning platform failure of any kind.
func IsRemote(err error) bool {
	switch errors.Cause(err) {
	case ErrTimeout, ErrUnavailable, ErrCommunication:
		return true
	}
	return false
}
