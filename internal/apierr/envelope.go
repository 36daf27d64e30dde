package apierr

import "encoding/json"

// Response is the JSON envelope every API endpoint answers with.
type Response struct {
	Success      bool            `json:"success"`
	Data         json.RawMessage `json:"data,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorDetails *Details        `json:"errorDetails,omitempty"`
}

// OK wraps data in a success envelope.
func OK(data any) Response {
	b, err := json.Marshal(data)
	if err != nil {
		return Fail("failed to encode response", nil)
	}
	return Response{Success: true, Data: b}
}

// Fail builds a failure envelope.
func Fail(msg string, d *Details) Response {
	return Response{Error: msg, ErrorDetails: d}
}

// Decode unmarshals the data of a success envelope into v.
func (r Response) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}
