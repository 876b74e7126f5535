package wire

import (
	"fmt"
)

// Request is a decoded transaction request.
type Request struct {
	Opcode     Opcode
	Descriptor string
	Fields     []any
}

// Int32At returns field i as an int32.
func (r *Request) Int32At(i int) int32 { return r.Fields[i].(int32) }

// Int64At returns field i as an int64.
func (r *Request) Int64At(i int) int64 { return r.Fields[i].(int64) }

// Int32SliceAt returns field i as an []int32 (nil for a null array).
func (r *Request) Int32SliceAt(i int) []int32 { return r.Fields[i].([]int32) }

// StringAt returns field i as a string.
func (r *Request) StringAt(i int) string { return r.Fields[i].(string) }

// Reply is a decoded transaction reply. Fields is empty when Exception is set.
type Reply struct {
	Exception int32
	Message   string
	Fields    []any
}

// EncodeRequest encodes a request for op. fields must match the opcode's
// request schema in order and Go type.
func EncodeRequest(op Opcode, descriptor string, fields ...any) ([]byte, error) {
	schema, ok := Schemas[op]
	if !ok {
		return nil, fmt.Errorf("wire:codec - unknown opcode %d", uint32(op))
	}
	w := NewWriter(8 + len(descriptor) + 4*len(fields))
	w.WriteUint32(uint32(op))
	w.WriteString(descriptor)
	if err := writeFields(w, schema.Request, fields); err != nil {
		return nil, fmt.Errorf("wire:codec - %s request: %w", schema.Name, err)
	}
	return w.Bytes(), nil
}

// DecodeRequest decodes a request and validates it against the opcode schema.
// Unknown opcodes decode with no fields so the receiver can reject them.
func DecodeRequest(b []byte) (*Request, error) {
	r := NewReader(b)
	op, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	descriptor, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	req := &Request{Opcode: Opcode(op), Descriptor: descriptor}
	schema, ok := Schemas[req.Opcode]
	if !ok {
		return req, nil
	}
	if req.Fields, err = readFields(r, schema.Request); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return req, nil
}

// EncodeReply encodes a successful reply for op.
func EncodeReply(op Opcode, fields ...any) ([]byte, error) {
	schema, ok := Schemas[op]
	if !ok {
		return nil, fmt.Errorf("wire:codec - unknown opcode %d", uint32(op))
	}
	w := NewWriter(4 + 4*len(fields))
	w.WriteInt32(ExceptionNone)
	if err := writeFields(w, schema.Reply, fields); err != nil {
		return nil, fmt.Errorf("wire:codec - %s reply: %w", schema.Name, err)
	}
	return w.Bytes(), nil
}

// EncodeException encodes a failed reply. code must be non-zero.
func EncodeException(code int32, message string) []byte {
	w := NewWriter(8 + len(message))
	w.WriteInt32(code)
	w.WriteString(message)
	return w.Bytes()
}

// DecodeReply decodes a reply to op. An exception reply decodes without error;
// callers inspect Reply.Exception.
func DecodeReply(op Opcode, b []byte) (*Reply, error) {
	schema, ok := Schemas[op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown opcode %d", ErrMalformedMessage, uint32(op))
	}
	r := NewReader(b)
	code, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	reply := &Reply{Exception: code}
	if code != ExceptionNone {
		if reply.Message, err = r.ReadString(); err != nil {
			return nil, err
		}
	} else if reply.Fields, err = readFields(r, schema.Reply); err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return reply, nil
}

func writeFields(w *Writer, kinds []Kind, fields []any) error {
	if len(fields) != len(kinds) {
		return fmt.Errorf("want %d fields, got %d", len(kinds), len(fields))
	}
	for i, k := range kinds {
		var ok bool
		switch k {
		case KindInt32:
			var v int32
			if v, ok = fields[i].(int32); ok {
				w.WriteInt32(v)
			}
		case KindInt64:
			var v int64
			if v, ok = fields[i].(int64); ok {
				w.WriteInt64(v)
			}
		case KindInt32Slice:
			var v []int32
			if v, ok = fields[i].([]int32); ok {
				w.WriteInt32Slice(v)
			}
		case KindString:
			var v string
			if v, ok = fields[i].(string); ok {
				w.WriteString(v)
			}
		}
		if !ok {
			return fmt.Errorf("field %d: want %s, got %T", i, k, fields[i])
		}
	}
	return nil
}

func readFields(r *Reader, kinds []Kind) ([]any, error) {
	out := make([]any, len(kinds))
	for i, k := range kinds {
		var (
			v   any
			err error
		)
		switch k {
		case KindInt32:
			v, err = r.ReadInt32()
		case KindInt64:
			v, err = r.ReadInt64()
		case KindInt32Slice:
			v, err = r.ReadInt32Slice()
		case KindString:
			v, err = r.ReadString()
		}
		if err != nil {
			return nil, fmt.Errorf("field %d (%s): %w", i, k, err)
		}
		out[i] = v
	}
	return out, nil
}
