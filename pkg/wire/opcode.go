// Package wire implements the binary transaction codec shared by the Iris
// service, its clients and the callback endpoints.
package wire

import "fmt"

// Opcode identifies which remote operation a message invokes.
type Opcode uint32

// Service interface opcodes.
const (
	OpConfigureGet        Opcode = 16
	OpConfigureSet        Opcode = 17
	OpGetChipFeature      Opcode = 18
	OpRegisterCallback    Opcode = 21
	OpGetInterfaceHash    Opcode = 16777214
	OpGetInterfaceVersion Opcode = 16777215
)

// Callback interface opcodes. FeatureChanged is one-way.
const (
	OpFeatureChanged Opcode = 1
)

// Kind is the wire type of a single field.
type Kind uint8

const (
	KindInt32 Kind = iota + 1
	KindInt64
	KindInt32Slice
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindInt32Slice:
		return "int32[]"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Schema is the fixed field layout of one opcode.
type Schema struct {
	Name    string
	Request []Kind
	Reply   []Kind
	OneWay  bool
}

// Schemas maps every known opcode to its field layout.
var Schemas = map[Opcode]Schema{
	OpConfigureGet: {
		Name:    "irisConfigureGet",
		Request: []Kind{KindInt32, KindInt32Slice},
		Reply:   []Kind{KindInt32Slice},
	},
	OpConfigureSet: {
		Name:    "irisConfigureSet",
		Request: []Kind{KindInt32, KindInt32Slice},
		Reply:   []Kind{KindInt32},
	},
	OpGetChipFeature: {
		Name:  "getChipFeature",
		Reply: []Kind{KindInt32},
	},
	OpRegisterCallback: {
		Name:    "registerCallback",
		Request: []Kind{KindInt64, KindString},
	},
	OpFeatureChanged: {
		Name:    "onFeatureChanged",
		Request: []Kind{KindInt32, KindInt32Slice},
		OneWay:  true,
	},
	OpGetInterfaceHash: {
		Name:  "getInterfaceHash",
		Reply: []Kind{KindString},
	},
	OpGetInterfaceVersion: {
		Name:  "getInterfaceVersion",
		Reply: []Kind{KindInt32},
	},
}

// String returns the method name for known opcodes.
func (o Opcode) String() string {
	if s, ok := Schemas[o]; ok {
		return s.Name
	}
	return fmt.Sprintf("opcode(%d)", uint32(o))
}

// Interface identity metadata.
const (
	DescriptorIris         = "vendor.pixelworks.hardware.display.IIris"
	DescriptorIrisCallback = "vendor.pixelworks.hardware.display.IIrisCallback"
	InterfaceVersion int32 = 1
	InterfaceHash          = "02c8c5526cbde39f502b3bf8cccaf196c81de25f"
)

// Exception codes carried in the first word of a reply.
const (
	ExceptionNone                 int32 = 0
	ExceptionSecurity             int32 = -1
	ExceptionBadParcelable        int32 = -2
	ExceptionIllegalArgument      int32 = -3
	ExceptionUnsupportedOperation int32 = -7
)
