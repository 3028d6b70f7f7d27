// Package wire provides message framing for the hivewatch query protocol.
//
// Every message is a google.protobuf.Struct, length-delimited with protobuf's
// standard varint prefix. A request carries "id", "type" and "params"; a
// response carries "id", "status" and either "data" or "message" (plus a
// numeric "code" on errors). Typed payloads are converted to Struct values
// through their JSON form.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/hivewatch/config"
	"github.com/xtxerr/hivewatch/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reader reads length-delimited Struct messages from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r       *bufio.Reader
	maxSize int
	mu      sync.Mutex
}

// NewReader creates a Reader wrapping the given io.Reader. A maxSize of zero
// or less uses DefaultMaxMessageSize.
func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = config.DefaultMaxMessageSize
	}
	return &Reader{r: bufio.NewReader(r), maxSize: maxSize}
}

// Read reads and unmarshals the next message.
// Returns an error if the message exceeds the configured maximum size.
func (r *Reader) Read() (*structpb.Struct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := &structpb.Struct{}
	opts := protodelim.UnmarshalOptions{
		MaxSize: int64(r.maxSize),
	}
	if err := opts.UnmarshalFrom(r.r, msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		var tooLarge *protodelim.SizeTooLargeError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: %d bytes", errors.ErrMessageTooLarge, tooLarge.Size)
		}
		return nil, fmt.Errorf("%w: read message: %w", errors.ErrTransport, err)
	}
	return msg, nil
}

// Writer writes length-delimited Struct messages to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write marshals and writes a message with length prefix.
func (w *Writer) Write(msg *structpb.Struct) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := protodelim.MarshalTo(w.w, msg); err != nil {
		return fmt.Errorf("%w: write message: %w", errors.ErrTransport, err)
	}
	return nil
}

// Conn combines Reader and Writer for bidirectional communication.
type Conn struct {
	*Reader
	*Writer
}

// NewConn creates a Conn from an io.ReadWriter (e.g., net.Conn).
func NewConn(rw io.ReadWriter, maxSize int) *Conn {
	return &Conn{
		Reader: NewReader(rw, maxSize),
		Writer: NewWriter(rw),
	}
}

// ReadRequest reads and decodes the next request.
func (c *Conn) ReadRequest() (Request, error) {
	msg, err := c.Read()
	if err != nil {
		return Request{}, err
	}
	return DecodeRequest(msg)
}

// WriteRequest encodes and writes a request.
func (c *Conn) WriteRequest(req Request) error {
	msg, err := req.Encode()
	if err != nil {
		return err
	}
	return c.Write(msg)
}

// ReadResponse reads and decodes the next response.
func (c *Conn) ReadResponse() (Response, error) {
	msg, err := c.Read()
	if err != nil {
		return Response{}, err
	}
	return DecodeResponse(msg), nil
}

// WriteResponse encodes and writes a response.
func (c *Conn) WriteResponse(resp Response) error {
	msg, err := resp.Encode()
	if err != nil {
		return err
	}
	return c.Write(msg)
}
