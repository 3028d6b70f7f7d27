package wire

import (
	"bytes"
	"io"
	"testing"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/hivewatch/internal/errors"
)

func TestRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := NewConn(&buf, 0)

	in := Request{ID: 42, Type: "bloom_filter", Params: map[string]any{
		"window": "1min", "species": "spider", "limit": 3,
	}}
	if err := c.WriteRequest(in); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	out, err := c.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if out.ID != 42 || out.Type != "bloom_filter" {
		t.Errorf("got id=%d type=%q", out.ID, out.Type)
	}
	if out.Params["window"] != "1min" || out.Params["species"] != "spider" {
		t.Errorf("params = %v", out.Params)
	}
	// numbers travel as float64
	if out.Params["limit"] != float64(3) {
		t.Errorf("limit = %#v", out.Params["limit"])
	}
}

func TestResponseRoundTrip(t *testing.T) {
	type payload struct {
		Species  []string `json:"species"`
		Estimate uint64   `json:"estimate"`
	}

	var buf bytes.Buffer
	c := NewConn(&buf, 0)

	if err := c.WriteResponse(Response{ID: 7, Status: StatusOK, Data: payload{
		Species: []string{"butterfly", "spider"}, Estimate: 2,
	}}); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}
	if err := c.WriteResponse(Response{ID: 8, Status: StatusError,
		Message: "Query not recognized", Code: errors.CodeUnknownQuery}); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	ok, err := c.ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if !ok.OK() || ok.ID != 7 {
		t.Fatalf("first response = %+v", ok)
	}
	var got payload
	if err := DecodeData(ok.Data, &got); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if got.Estimate != 2 || len(got.Species) != 2 || got.Species[1] != "spider" {
		t.Errorf("payload = %+v", got)
	}

	bad, err := c.ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if bad.OK() || bad.ID != 8 || bad.Message != "Query not recognized" {
		t.Fatalf("second response = %+v", bad)
	}
	if bad.Code != errors.CodeUnknownQuery {
		t.Errorf("code = %d", bad.Code)
	}
	if bad.Err() == nil {
		t.Error("Err() = nil for error response")
	}

	if _, err := c.ReadResponse(); err != io.EOF {
		t.Errorf("read past end: %v, want io.EOF", err)
	}
}

func TestDecodeRequestMalformed(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		wantID uint64
	}{
		{"missing type", map[string]any{"id": 3}, 3},
		{"numeric type", map[string]any{"id": 4, "type": 1}, 4},
		{"params not object", map[string]any{"id": 5, "type": "stats", "params": "x"}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := structpb.NewStruct(tt.fields)
			if err != nil {
				t.Fatal(err)
			}
			req, err := DecodeRequest(msg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("err = %v, want ErrInvalidRequest", err)
			}
			if req.ID != tt.wantID {
				t.Errorf("id = %d, want %d", req.ID, tt.wantID)
			}
		})
	}
}

func TestDecodeRequestNoParams(t *testing.T) {
	msg, _ := structpb.NewStruct(map[string]any{"type": "stats"})
	req, err := DecodeRequest(msg)
	if err != nil {
		t.Fatal(err)
	}
	if req.Params == nil {
		t.Error("Params should be empty, not nil")
	}
}

func TestReadRejectsOversizedMessage(t *testing.T) {
	var buf bytes.Buffer
	big, _ := structpb.NewStruct(map[string]any{"type": string(make([]byte, 2048))})
	if _, err := protodelim.MarshalTo(&buf, big); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&buf, 1024)
	_, err := r.Read()
	if !errors.Is(err, errors.ErrMessageTooLarge) {
		t.Errorf("err = %v, want ErrMessageTooLarge", err)
	}
}

func TestReadGarbage(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x05, 0xff, 0xff, 0xff, 0xff, 0xff}), 0)
	_, err := r.Read()
	if !errors.Is(err, errors.ErrTransport) {
		t.Errorf("err = %v, want ErrTransport", err)
	}
}
