package wire

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/hivewatch/internal/errors"
)

// Field names of request and response messages.
const (
	FieldID      = "id"
	FieldType    = "type"
	FieldParams  = "params"
	FieldStatus  = "status"
	FieldData    = "data"
	FieldMessage = "message"
	FieldCode    = "code"
)

// Response status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// =============================================================================
// Request
// =============================================================================

// Request is one query on the wire.
type Request struct {
	ID     uint64
	Type   string
	Params map[string]any
}

// Encode converts the request to a Struct.
func (r Request) Encode() (*structpb.Struct, error) {
	params := r.Params
	if params == nil {
		params = map[string]any{}
	}
	p, err := ToValue(params)
	if err != nil {
		return nil, fmt.Errorf("%w: params: %v", errors.ErrInvalidRequest, err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldID:     structpb.NewNumberValue(float64(r.ID)),
		FieldType:   structpb.NewStringValue(r.Type),
		FieldParams: p,
	}}, nil
}

// DecodeRequest reads a request from a Struct. The id is returned even when
// the rest of the request is malformed so the error can be echoed.
func DecodeRequest(msg *structpb.Struct) (Request, error) {
	fields := msg.GetFields()
	req := Request{ID: idOf(fields)}

	t, ok := fields[FieldType]
	if !ok {
		return req, fmt.Errorf("%w: missing %q", errors.ErrInvalidRequest, FieldType)
	}
	sv, ok := t.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return req, fmt.Errorf("%w: %q must be a string", errors.ErrInvalidRequest, FieldType)
	}
	req.Type = sv.StringValue

	if p, ok := fields[FieldParams]; ok {
		switch k := p.GetKind().(type) {
		case *structpb.Value_StructValue:
			req.Params = k.StructValue.AsMap()
		case *structpb.Value_NullValue:
		default:
			return req, fmt.Errorf("%w: %q must be an object", errors.ErrInvalidRequest, FieldParams)
		}
	}
	if req.Params == nil {
		req.Params = map[string]any{}
	}
	return req, nil
}

func idOf(fields map[string]*structpb.Value) uint64 {
	n, ok := fields[FieldID].GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue < 0 {
		return 0
	}
	return uint64(n.NumberValue)
}

// =============================================================================
// Response
// =============================================================================

// Response is one answer on the wire.
type Response struct {
	ID      uint64
	Status  string
	Data    any
	Message string
	Code    int32
}

// OK reports whether the response carries data.
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// Err returns the error message as an error, or nil for ok responses.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return &RemoteError{Code: r.Code, Message: r.Message}
}

// Encode converts the response to a Struct. Data is rendered through its
// JSON form.
func (r Response) Encode() (*structpb.Struct, error) {
	fields := map[string]*structpb.Value{
		FieldID:     structpb.NewNumberValue(float64(r.ID)),
		FieldStatus: structpb.NewStringValue(r.Status),
	}
	if r.Status == StatusOK {
		v, err := ToValue(r.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: response data: %v", errors.ErrInternal, err)
		}
		fields[FieldData] = v
	} else {
		fields[FieldMessage] = structpb.NewStringValue(r.Message)
		if r.Code != 0 {
			fields[FieldCode] = structpb.NewNumberValue(float64(r.Code))
		}
	}
	return &structpb.Struct{Fields: fields}, nil
}

// DecodeResponse reads a response from a Struct. Data is left in its generic
// form; use DecodeData to bind it to a type.
func DecodeResponse(msg *structpb.Struct) Response {
	fields := msg.GetFields()
	resp := Response{
		ID:      idOf(fields),
		Status:  fields[FieldStatus].GetStringValue(),
		Message: fields[FieldMessage].GetStringValue(),
		Code:    int32(fields[FieldCode].GetNumberValue()),
	}
	if d, ok := fields[FieldData]; ok {
		resp.Data = d.AsInterface()
	}
	return resp
}

// RemoteError is an error reported by the server.
type RemoteError struct {
	Code    int32
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, errors.CodeName(e.Code))
}

// =============================================================================
// JSON Conversion
// =============================================================================

// ToValue converts any JSON-marshalable value to a Struct value.
func ToValue(v any) (*structpb.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}

// DecodeData binds generic response data to out through JSON.
func DecodeData(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
