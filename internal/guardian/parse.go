package guardian

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	errNotObject     = errors.New("reply is not a single JSON object")
	errMissingAction = errors.New("reply has no action")
	errNoCommand     = errors.New("EXECUTE reply has no command")
)

// ParseResponse strictly decodes a model reply. The content must be
// exactly one JSON object whose action is one of the three literals.
func ParseResponse(content string) (Response, error) {
	data := bytes.TrimSpace([]byte(content))
	if len(data) == 0 || data[0] != '{' {
		return Response{}, parseErr(errNotObject)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var resp Response
	if err := dec.Decode(&resp); err != nil {
		return Response{}, parseErr(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Response{}, parseErr(errNotObject)
	}

	switch {
	case resp.Action == "":
		return Response{}, parseErr(errMissingAction)
	case !resp.Action.Valid():
		return Response{}, parseErr(fmt.Errorf("unknown action %q", resp.Action))
	case resp.Action == ActionExecute && resp.Command == "":
		return Response{}, parseErr(errNoCommand)
	}
	return resp, nil
}

func parseErr(err error) error {
	return &Error{Kind: KindParse, Attempts: 1, Err: err}
}
