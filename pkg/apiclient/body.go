package apiclient

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"strings"
)

// Body is a request payload. Build one with Form or JSON.
type Body interface {
	contentType() string
	reader() (io.Reader, error)
}

type formBody url.Values

// Form encodes v as application/x-www-form-urlencoded.
func Form(v url.Values) Body { return formBody(v) }

func (f formBody) contentType() string { return "application/x-www-form-urlencoded" }

func (f formBody) reader() (io.Reader, error) {
	return strings.NewReader(url.Values(f).Encode()), nil
}

type jsonBody struct{ v any }

// JSON encodes v as application/json.
func JSON(v any) Body { return jsonBody{v: v} }

func (j jsonBody) contentType() string { return "application/json" }

func (j jsonBody) reader() (io.Reader, error) {
	b, err := json.Marshal(j.v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
