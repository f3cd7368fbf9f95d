package classfile

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop one single-width slot
	OpPop2 Opcode = 0x02 // Pop two slots (one double-width value)
	OpDup  Opcode = 0x03 // Duplicate top single-width slot

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConstNull Opcode = 0x10 // Push null reference
	OpConstI0   Opcode = 0x11 // Push int 0 (also boolean false)
	OpConstL0   Opcode = 0x12 // Push long 0
	OpConstF0   Opcode = 0x13 // Push float 0
	OpConstD0   Opcode = 0x14 // Push double 0
	OpConst     Opcode = 0x15 // Push string constant: OpConst <index:u16>

	// ========================================================================
	// Arguments and static fields (0x20-0x4F)
	// ========================================================================

	OpLoadArg   Opcode = 0x20 // Push parameter: OpLoadArg <index:u8>
	OpGetStatic Opcode = 0x40 // Push static field: OpGetStatic <name:u16>
	OpPutStatic Opcode = 0x41 // Pop into static field: OpPutStatic <name:u16>

	// ========================================================================
	// Conversions (0x50-0x5F)
	// ========================================================================

	OpI2L       Opcode = 0x50 // int -> long
	OpI2F       Opcode = 0x51 // int -> float
	OpI2D       Opcode = 0x52 // int -> double
	OpL2F       Opcode = 0x53 // long -> float
	OpL2D       Opcode = 0x54 // long -> double
	OpF2D       Opcode = 0x55 // float -> double
	OpBox       Opcode = 0x58 // Box primitive: OpBox <kind:u8>
	OpUnbox     Opcode = 0x59 // Unbox reference: OpUnbox <kind:u8>
	OpCheckCast Opcode = 0x5A // Verify reference type: OpCheckCast <name:u16>

	// ========================================================================
	// Invocation (0x90-0x9F)
	// ========================================================================

	OpInvokeStatic Opcode = 0x90 // Call static method of this type: OpInvokeStatic <name:u16> <argc:u8>
	OpCallValue    Opcode = 0x91 // Call callable reference: OpCallValue <argc:u8>

	// ========================================================================
	// Bootstrap (0xA0-0xAF)
	// ========================================================================

	OpNexus Opcode = 0xA0 // Consume this type's registered loaded-type initializer

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn      Opcode = 0xF0 // Return from a void method
	OpReturnValue Opcode = 0xF1 // Return top of stack
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // Slots popped from stack (-1 = variable)
	StackPush  int    // Slots pushed to stack (-1 = variable)
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:  {"NOP", 0, 0, 0},
	OpPop:  {"POP", 1, 0, 0},
	OpPop2: {"POP2", 2, 0, 0},
	OpDup:  {"DUP", 1, 2, 0},

	// Constants
	OpConstNull: {"CONST_NULL", 0, 1, 0},
	OpConstI0:   {"CONST_I0", 0, 1, 0},
	OpConstL0:   {"CONST_L0", 0, 2, 0},
	OpConstF0:   {"CONST_F0", 0, 1, 0},
	OpConstD0:   {"CONST_D0", 0, 2, 0},
	OpConst:     {"CONST", 0, 1, 2},

	// Arguments and statics
	OpLoadArg:   {"LOAD_ARG", 0, -1, 1},
	OpGetStatic: {"GET_STATIC", 0, -1, 2},
	OpPutStatic: {"PUT_STATIC", -1, 0, 2},

	// Conversions
	OpI2L:       {"I2L", 1, 2, 0},
	OpI2F:       {"I2F", 1, 1, 0},
	OpI2D:       {"I2D", 1, 2, 0},
	OpL2F:       {"L2F", 2, 1, 0},
	OpL2D:       {"L2D", 2, 2, 0},
	OpF2D:       {"F2D", 1, 2, 0},
	OpBox:       {"BOX", -1, 1, 1},
	OpUnbox:     {"UNBOX", 1, -1, 1},
	OpCheckCast: {"CHECK_CAST", 1, 1, 2},

	// Invocation
	OpInvokeStatic: {"INVOKE_STATIC", -1, -1, 3},
	OpCallValue:    {"CALL_VALUE", -1, 1, 1},

	// Bootstrap
	OpNexus: {"NEXUS", 0, 0, 0},

	// Return
	OpReturn:      {"RETURN", 0, 0, 0},
	OpReturnValue: {"RETURN_VALUE", -1, 0, 0},
}

// LookupOpcode returns metadata for an opcode and whether it is defined.
func LookupOpcode(op Opcode) (OpcodeInfo, bool) {
	info, ok := opcodeInfoTable[op]
	return info, ok
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsReturn returns true if this opcode terminates execution.
func (op Opcode) IsReturn() bool {
	return op == OpReturn || op == OpReturnValue
}

// UsesConstant reports whether the first two operand bytes index the
// method's constant pool.
func (op Opcode) UsesConstant() bool {
	switch op {
	case OpConst, OpGetStatic, OpPutStatic, OpCheckCast, OpInvokeStatic:
		return true
	}
	return false
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// WideningOpcode returns the conversion instruction that widens from one
// primitive kind to another.
func WideningOpcode(from, to Kind) (Opcode, bool) {
	switch {
	case from == Int && to == Long:
		return OpI2L, true
	case from == Int && to == Float:
		return OpI2F, true
	case from == Int && to == Double:
		return OpI2D, true
	case from == Long && to == Float:
		return OpL2F, true
	case from == Long && to == Double:
		return OpL2D, true
	case from == Float && to == Double:
		return OpF2D, true
	}
	return OpNop, false
}
