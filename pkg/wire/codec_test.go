package wire

import (
	"errors"
	"reflect"
	"testing"
)

const codecTestPrefix = "wire:codec_test"

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		op     Opcode
		fields []any
	}{
		{"get with values", OpConfigureGet, []any{int32(1), []int32{10, 20}}},
		{"get with empty values", OpConfigureGet, []any{int32(258), []int32{}}},
		{"get with null values", OpConfigureGet, []any{int32(56), []int32(nil)}},
		{"set negative type", OpConfigureSet, []any{int32(-4), []int32{-1, 0, 1 << 30}}},
		{"register callback", OpRegisterCallback, []any{int64(-2138930830), "_INBOX.abc.1"}},
		{"feature changed", OpFeatureChanged, []any{int32(3), []int32{5}}},
		{"version", OpGetInterfaceVersion, []any{}},
		{"chip feature", OpGetChipFeature, []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeRequest(tt.op, DescriptorIris, tt.fields...)
			if err != nil {
				t.Fatalf("%s - encode failed: %v", codecTestPrefix, err)
			}
			req, err := DecodeRequest(data)
			if err != nil {
				t.Fatalf("%s - decode failed: %v", codecTestPrefix, err)
			}
			if req.Opcode != tt.op {
				t.Errorf("%s - Opcode = %v, want %v", codecTestPrefix, req.Opcode, tt.op)
			}
			if req.Descriptor != DescriptorIris {
				t.Errorf("%s - Descriptor = %q, want %q", codecTestPrefix, req.Descriptor, DescriptorIris)
			}
			if !reflect.DeepEqual(req.Fields, tt.fields) {
				t.Errorf("%s - Fields = %#v, want %#v", codecTestPrefix, req.Fields, tt.fields)
			}
		})
	}
}

func TestDecodeRequest_NullVersusEmpty(t *testing.T) {
	nullData, _ := EncodeRequest(OpConfigureGet, DescriptorIris, int32(1), []int32(nil))
	emptyData, _ := EncodeRequest(OpConfigureGet, DescriptorIris, int32(1), []int32{})

	nullReq, err := DecodeRequest(nullData)
	if err != nil {
		t.Fatalf("%s - decode null: %v", codecTestPrefix, err)
	}
	if nullReq.Int32SliceAt(1) != nil {
		t.Errorf("%s - expected nil slice for null array", codecTestPrefix)
	}

	emptyReq, err := DecodeRequest(emptyData)
	if err != nil {
		t.Fatalf("%s - decode empty: %v", codecTestPrefix, err)
	}
	if got := emptyReq.Int32SliceAt(1); got == nil || len(got) != 0 {
		t.Errorf("%s - expected non-nil empty slice, got %#v", codecTestPrefix, got)
	}
}

func TestDecodeRequest_TrailingBytes(t *testing.T) {
	data, err := EncodeRequest(OpConfigureSet, DescriptorIris, int32(1), []int32{10, 20})
	if err != nil {
		t.Fatalf("%s - encode failed: %v", codecTestPrefix, err)
	}
	data = append(data, 0x00)

	_, err = DecodeRequest(data)
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("%s - expected ErrMalformedMessage, got %v", codecTestPrefix, err)
	}
}

func TestDecodeRequest_LengthExceedsBuffer(t *testing.T) {
	w := NewWriter(32)
	w.WriteUint32(uint32(OpConfigureGet))
	w.WriteString(DescriptorIris)
	w.WriteInt32(1)
	w.WriteInt32(1000) // declared length with no elements behind it
	w.WriteInt32(7)

	_, err := DecodeRequest(w.Bytes())
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("%s - expected ErrMalformedMessage, got %v", codecTestPrefix, err)
	}
}

func TestDecodeRequest_Truncated(t *testing.T) {
	data, _ := EncodeRequest(OpRegisterCallback, DescriptorIris, int64(42), "endpoint")
	for cut := 0; cut < len(data); cut++ {
		if _, err := DecodeRequest(data[:cut]); !errors.Is(err, ErrMalformedMessage) {
			t.Fatalf("%s - cut at %d: expected ErrMalformedMessage, got %v", codecTestPrefix, cut, err)
		}
	}
}

func TestDecodeRequest_NegativeLength(t *testing.T) {
	w := NewWriter(32)
	w.WriteUint32(uint32(OpConfigureGet))
	w.WriteString(DescriptorIris)
	w.WriteInt32(1)
	w.WriteInt32(-5)

	if _, err := DecodeRequest(w.Bytes()); !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("%s - expected ErrMalformedMessage, got %v", codecTestPrefix, err)
	}
}

func TestDecodeRequest_UnknownOpcode(t *testing.T) {
	w := NewWriter(32)
	w.WriteUint32(99)
	w.WriteString(DescriptorIris)

	req, err := DecodeRequest(w.Bytes())
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
	}
	if req.Opcode != 99 {
		t.Errorf("%s - Opcode = %d, want 99", codecTestPrefix, req.Opcode)
	}
	if len(req.Fields) != 0 {
		t.Errorf("%s - expected no fields for unknown opcode", codecTestPrefix)
	}
}

func TestEncodeRequest_SchemaMismatch(t *testing.T) {
	tests := []struct {
		name   string
		op     Opcode
		fields []any
	}{
		{"missing field", OpConfigureGet, []any{int32(1)}},
		{"wrong kind", OpConfigureGet, []any{int64(1), []int32{}}},
		{"untyped nil slice", OpConfigureSet, []any{int32(1), nil}},
		{"unknown opcode", Opcode(12345), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeRequest(tt.op, DescriptorIris, tt.fields...); err == nil {
				t.Fatalf("%s - expected error", codecTestPrefix)
			}
		})
	}
}

func TestReplyRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		op     Opcode
		fields []any
	}{
		{"get values", OpConfigureGet, []any{[]int32{10, 20}}},
		{"get unsupported", OpConfigureGet, []any{[]int32(nil)}},
		{"set status", OpConfigureSet, []any{int32(0)}},
		{"register ack", OpRegisterCallback, []any{}},
		{"hash", OpGetInterfaceHash, []any{InterfaceHash}},
		{"version", OpGetInterfaceVersion, []any{InterfaceVersion}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeReply(tt.op, tt.fields...)
			if err != nil {
				t.Fatalf("%s - encode failed: %v", codecTestPrefix, err)
			}
			reply, err := DecodeReply(tt.op, data)
			if err != nil {
				t.Fatalf("%s - decode failed: %v", codecTestPrefix, err)
			}
			if reply.Exception != ExceptionNone {
				t.Errorf("%s - Exception = %d, want 0", codecTestPrefix, reply.Exception)
			}
			if !reflect.DeepEqual(reply.Fields, tt.fields) {
				t.Errorf("%s - Fields = %#v, want %#v", codecTestPrefix, reply.Fields, tt.fields)
			}
		})
	}
}

func TestDecodeReply_Exception(t *testing.T) {
	data := EncodeException(ExceptionUnsupportedOperation, "unknown transaction 99")

	reply, err := DecodeReply(OpConfigureGet, data)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", codecTestPrefix, err)
	}
	if reply.Exception != ExceptionUnsupportedOperation {
		t.Errorf("%s - Exception = %d, want %d", codecTestPrefix, reply.Exception, ExceptionUnsupportedOperation)
	}
	if reply.Message != "unknown transaction 99" {
		t.Errorf("%s - Message = %q", codecTestPrefix, reply.Message)
	}
}

func TestDecodeReply_TrailingBytes(t *testing.T) {
	data, _ := EncodeReply(OpConfigureSet, int32(0))
	data = append(data, 1, 2, 3, 4)

	if _, err := DecodeReply(OpConfigureSet, data); !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("%s - expected ErrMalformedMessage, got %v", codecTestPrefix, err)
	}
}

func TestOpcodeString(t *testing.T) {
	if OpConfigureGet.String() != "irisConfigureGet" {
		t.Errorf("%s - OpConfigureGet.String() = %q", codecTestPrefix, OpConfigureGet.String())
	}
	if Opcode(7).String() != "opcode(7)" {
		t.Errorf("%s - Opcode(7).String() = %q", codecTestPrefix, Opcode(7).String())
	}
}
