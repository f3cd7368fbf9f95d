package classfile

// Code accumulates instructions and the constant pool of one method body.
type Code struct {
	code      []byte
	constants []string
}

// NewCode creates an empty code buffer.
func NewCode() *Code {
	return &Code{
		code:      make([]byte, 0, 32),
		constants: make([]string, 0, 4),
	}
}

// CodeOf returns a buffer holding a copy of the method's body.
func CodeOf(m *Method) *Code {
	return &Code{
		code:      append([]byte(nil), m.Code...),
		constants: append([]string(nil), m.Constants...),
	}
}

// AddConstant adds a string constant to the pool and returns its index.
// If the constant already exists, returns the existing index.
func (c *Code) AddConstant(value string) uint16 {
	for i, s := range c.constants {
		if s == value {
			return uint16(i)
		}
	}
	idx := uint16(len(c.constants))
	c.constants = append(c.constants, value)
	return idx
}

// Emit appends a single-byte opcode to the code section.
func (c *Code) Emit(op Opcode) int {
	offset := len(c.code)
	c.code = append(c.code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (c *Code) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(c.code)
	c.code = append(c.code, byte(op))
	c.code = append(c.code, operands...)
	return offset
}

// EmitConstant emits an instruction whose first operand is a constant pool
// index for value, followed by any extra operand bytes.
func (c *Code) EmitConstant(op Opcode, value string, extra ...byte) int {
	idx := c.AddConstant(value)
	operands := append([]byte{byte(idx >> 8), byte(idx)}, extra...)
	return c.EmitWithOperand(op, operands...)
}

// Append copies the instructions of other onto the end of c, re-indexing
// constant pool references into c's pool.
func (c *Code) Append(other *Code) {
	for ip := 0; ip < len(other.code); {
		op := Opcode(other.code[ip])
		n := op.OperandLen()
		end := ip + 1 + n
		if end > len(other.code) {
			end = len(other.code)
		}
		if op.UsesConstant() && end-ip >= 3 {
			idx := int(other.code[ip+1])<<8 | int(other.code[ip+2])
			c.EmitConstant(op, other.constants[idx], other.code[ip+3:end]...)
		} else {
			c.EmitWithOperand(op, other.code[ip+1:end]...)
		}
		ip = end
	}
}

// Len returns the length of the code section.
func (c *Code) Len() int {
	return len(c.code)
}

// Bytes returns a copy of the code section.
func (c *Code) Bytes() []byte {
	return append([]byte(nil), c.code...)
}

// Constants returns a copy of the constant pool.
func (c *Code) Constants() []string {
	return append([]string(nil), c.constants...)
}

// Install writes the buffer into m as its body.
func (c *Code) Install(m *Method, maxStack int) {
	m.Code = c.Bytes()
	m.Constants = c.Constants()
	m.MaxStack = uint16(maxStack)
}
