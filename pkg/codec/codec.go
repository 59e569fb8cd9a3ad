// Package codec implements the wire protocol: a big-endian 4-byte length
// prefix followed by a UTF-8 JSON payload, in both directions of a
// connection. Payload shapes are JSON tagged unions modeled after the
// teacher's convention of marshaling domain values straight into BoltDB
// bucket entries with encoding/json (pkg/storage/boltdb.go) — here the
// wire takes the place of the bucket.
package codec

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cuemby/kvs/pkg/kverr"
)

// DefaultMaxFrameSize is the largest payload this codec will decode unless
// a caller supplies a different cap via ReadFrame. Spec requires at least
// 8 MiB.
const DefaultMaxFrameSize = 8 * 1024 * 1024

// Request is the client-to-server payload: exactly one of Get, Set, or
// Remove is populated. The JSON wire shape is a single-key object:
// {"Get": key}, {"Set": [key, value]}, {"Remove": key}.
type Request struct {
	Get    *string
	Set    *SetArgs
	Remove *string
}

// SetArgs is the [key, value] pair carried by a Set request.
type SetArgs struct {
	Key   string
	Value string
}

// GetRequest builds a Get request for key.
func GetRequest(key string) Request { return Request{Get: &key} }

// SetRequest builds a Set request for key/value.
func SetRequest(key, value string) Request {
	return Request{Set: &SetArgs{Key: key, Value: value}}
}

// RemoveRequest builds a Remove request for key.
func RemoveRequest(key string) Request { return Request{Remove: &key} }

func (r Request) MarshalJSON() ([]byte, error) {
	switch {
	case r.Get != nil:
		return json.Marshal(map[string]string{"Get": *r.Get})
	case r.Set != nil:
		return json.Marshal(map[string][2]string{"Set": {r.Set.Key, r.Set.Value}})
	case r.Remove != nil:
		return json.Marshal(map[string]string{"Remove": *r.Remove})
	default:
		return nil, kverr.New(kverr.Codec, "request has no variant set")
	}
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return kverr.Wrap(kverr.Codec, "decode request envelope", err)
	}
	if len(raw) != 1 {
		return kverr.New(kverr.Codec, "request must have exactly one variant")
	}

	if v, ok := raw["Get"]; ok {
		var key string
		if err := json.Unmarshal(v, &key); err != nil {
			return kverr.Wrap(kverr.Codec, "decode Get key", err)
		}
		r.Get = &key
		return nil
	}
	if v, ok := raw["Set"]; ok {
		var pair [2]string
		if err := json.Unmarshal(v, &pair); err != nil {
			return kverr.Wrap(kverr.Codec, "decode Set args", err)
		}
		r.Set = &SetArgs{Key: pair[0], Value: pair[1]}
		return nil
	}
	if v, ok := raw["Remove"]; ok {
		var key string
		if err := json.Unmarshal(v, &key); err != nil {
			return kverr.Wrap(kverr.Codec, "decode Remove key", err)
		}
		r.Remove = &key
		return nil
	}
	return kverr.New(kverr.Codec, "unknown request variant")
}

// Response is the server-to-client payload: either Ok (success, carrying an
// optional value) or Err (failure, carrying a message).
type Response struct {
	ok      bool
	value   *string
	errMsg  string
	isError bool
}

// OkNull builds a success response carrying no value (Set/Remove results).
func OkNull() Response { return Response{ok: true} }

// OkValue builds a success response carrying value (a Get hit).
func OkValue(value string) Response { return Response{ok: true, value: &value} }

// Err builds an error response carrying message.
func Err(message string) Response { return Response{isError: true, errMsg: message} }

// Errf is a convenience for Err with fmt.Sprintf formatting.
func Errf(format string, args ...any) Response { return Err(fmt.Sprintf(format, args...)) }

// IsOk reports whether the response is a success.
func (r Response) IsOk() bool { return r.ok }

// Value returns the success value and whether one was present. Only
// meaningful when IsOk() is true.
func (r Response) Value() (string, bool) {
	if r.value == nil {
		return "", false
	}
	return *r.value, true
}

// ErrMessage returns the error message. Only meaningful when IsOk() is false.
func (r Response) ErrMessage() string { return r.errMsg }

func (r Response) MarshalJSON() ([]byte, error) {
	if r.isError {
		return json.Marshal(map[string]string{"Err": r.errMsg})
	}
	if r.value != nil {
		return json.Marshal(map[string]string{"Ok": *r.value})
	}
	return []byte(`{"Ok":null}`), nil
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return kverr.Wrap(kverr.Codec, "decode response envelope", err)
	}
	if len(raw) != 1 {
		return kverr.New(kverr.Codec, "response must have exactly one variant")
	}

	if v, ok := raw["Ok"]; ok {
		if string(v) == "null" {
			*r = Response{ok: true}
			return nil
		}
		var value string
		if err := json.Unmarshal(v, &value); err != nil {
			return kverr.Wrap(kverr.Codec, "decode Ok value", err)
		}
		*r = Response{ok: true, value: &value}
		return nil
	}
	if v, ok := raw["Err"]; ok {
		var msg string
		if err := json.Unmarshal(v, &msg); err != nil {
			return kverr.Wrap(kverr.Codec, "decode Err message", err)
		}
		*r = Response{isError: true, errMsg: msg}
		return nil
	}
	return kverr.New(kverr.Codec, "unknown response variant")
}

// WriteFrame encodes v as JSON and writes it to w as a length-prefixed frame.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return kverr.Wrap(kverr.Codec, "marshal payload", err)
	}
	if len(payload) > DefaultMaxFrameSize {
		return kverr.New(kverr.Codec, "payload exceeds max frame size")
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return kverr.Wrap(kverr.Io, "write frame length", err)
	}
	if _, err := w.Write(payload); err != nil {
		return kverr.Wrap(kverr.Io, "write frame payload", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame from r and decodes it into
// v. maxSize caps the accepted payload length; pass 0 to use
// DefaultMaxFrameSize.
func ReadFrame(r io.Reader, v any, maxSize uint32) error {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}

	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return err
		}
		return kverr.Wrap(kverr.Io, "read frame length", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > maxSize {
		return kverr.New(kverr.Codec, fmt.Sprintf("frame of %d bytes exceeds max %d", length, maxSize))
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return kverr.Wrap(kverr.Io, "read frame payload", err)
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return kverr.Wrap(kverr.Codec, "unmarshal payload", err)
	}
	return nil
}

// WriteRequest writes a Request frame.
func WriteRequest(w io.Writer, req Request) error { return WriteFrame(w, req) }

// ReadRequest reads one Request frame. Returns io.EOF on a clean peer close.
func ReadRequest(r io.Reader) (Request, error) {
	var req Request
	err := ReadFrame(r, &req, 0)
	return req, err
}

// WriteResponse writes a Response frame.
func WriteResponse(w io.Writer, resp Response) error { return WriteFrame(w, resp) }

// ReadResponse reads one Response frame.
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	err := ReadFrame(r, &resp, 0)
	return resp, err
}
