package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnauthorized is returned, without touching the network, for calls that
// require authentication while no access token is held.
var ErrUnauthorized = errors.New("apiclient: not authenticated")

// Kind classifies a failed call.
type Kind int

const (
	// KindNetwork means no response was received.
	KindNetwork Kind = iota
	// KindValidation means the body carried a field-keyed "errors" object.
	KindValidation
	// KindUnauthorized is a 401.
	KindUnauthorized
	// KindMessage means the body carried a "message".
	KindMessage
	// KindStatus is a bare non-2xx status with nothing readable in the body.
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindMessage:
		return "message"
	case KindStatus:
		return "status"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a failed call to the backend.
type Error struct {
	StatusCode int
	Kind       Kind

	// Message is the server's "message", if any.
	Message string

	// Fields holds validation messages keyed by form field.
	Fields map[string][]string

	// Err is the transport error for KindNetwork.
	Err error

	// flattened validation messages in document order
	messages []string
}

func (e *Error) Error() string {
	if e.Kind == KindNetwork {
		return fmt.Sprintf("apiclient: network: %v", e.Err)
	}
	if msgs := e.Messages(); len(msgs) > 0 {
		return fmt.Sprintf("apiclient: %d: %s", e.StatusCode, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("apiclient: %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *Error) Unwrap() error { return e.Err }

// Messages lists what the user should be told, one entry per notice.
// Validation messages take precedence over the top level message.
func (e *Error) Messages() []string {
	if len(e.messages) > 0 {
		return append([]string(nil), e.messages...)
	}
	if e.Message != "" {
		return []string{e.Message}
	}
	return nil
}

// IsUnauthorized reports whether err is a 401 from the backend or a local
// rejection for lack of a token.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// classify builds the Error for a non-2xx response. The body may be anything,
// including empty or not JSON at all.
func classify(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Kind: KindStatus}

	if !gjson.ValidBytes(body) {
		if status == http.StatusUnauthorized {
			e.Kind = KindUnauthorized
		}
		return e
	}

	if msg := gjson.GetBytes(body, "message"); msg.Type == gjson.String {
		e.Message = msg.Str
	}

	if errs := gjson.GetBytes(body, "errors"); errs.IsObject() {
		e.Fields = make(map[string][]string)
		errs.ForEach(func(field, value gjson.Result) bool {
			var msgs []string
			if value.IsArray() {
				for _, m := range value.Array() {
					if s := m.String(); s != "" {
						msgs = append(msgs, s)
					}
				}
			} else if s := value.String(); s != "" {
				msgs = append(msgs, s)
			}
			if len(msgs) > 0 {
				e.Fields[field.String()] = msgs
				e.messages = append(e.messages, msgs...)
			}
			return true
		})
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case len(e.messages) > 0:
		e.Kind = KindValidation
	case e.Message != "":
		e.Kind = KindMessage
	}
	return e
}
