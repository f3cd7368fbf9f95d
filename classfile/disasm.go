package classfile

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the class file.
func Disassemble(cf *ClassFile) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; === %s ===\n", cf.Name))
	sb.WriteString(fmt.Sprintf("; Class file v%d", cf.Version))
	if cf.Superclass != "" {
		sb.WriteString(fmt.Sprintf(" extends %s", cf.Superclass))
	}
	sb.WriteString("\n")

	for _, f := range cf.Fields {
		mod := ""
		if f.Static {
			mod = "static "
		}
		sb.WriteString(fmt.Sprintf("; field %s%s %s\n", mod, f.Type, f.Name))
	}

	if cf.TypeInitializer != nil {
		sb.WriteString("\n")
		writeMethod(&sb, cf.TypeInitializer)
	}
	for i := range cf.Methods {
		sb.WriteString("\n")
		writeMethod(&sb, &cf.Methods[i])
	}
	return sb.String()
}

func writeMethod(sb *strings.Builder, m *Method) {
	var mods []string
	if m.Static {
		mods = append(mods, "static")
	}
	if m.Native {
		mods = append(mods, "native")
	}
	prefix := ""
	if len(mods) > 0 {
		prefix = strings.Join(mods, " ") + " "
	}
	sb.WriteString(fmt.Sprintf("%s%s %s(%s)", prefix, m.Return, m.Name, strings.Join(m.Params, ", ")))
	if m.Native {
		sb.WriteString("\n")
		return
	}
	sb.WriteString(fmt.Sprintf(" ; max stack %d\n", m.MaxStack))
	sb.WriteString(DisassembleCode(m.Code, m.Constants))
}

// DisassembleCode lists a method body one instruction per line.
func DisassembleCode(code []byte, constants []string) string {
	var sb strings.Builder
	for ip := 0; ip < len(code); {
		op := Opcode(code[ip])
		n := op.OperandLen()
		sb.WriteString(fmt.Sprintf("  %04x  %-14s", ip, op.String()))
		if ip+1+n > len(code) {
			sb.WriteString(" <truncated>\n")
			break
		}
		operands := code[ip+1 : ip+1+n]
		switch {
		case op.UsesConstant():
			idx := int(operands[0])<<8 | int(operands[1])
			if idx < len(constants) {
				sb.WriteString(fmt.Sprintf(" #%d %q", idx, constants[idx]))
			} else {
				sb.WriteString(fmt.Sprintf(" #%d <invalid>", idx))
			}
			if n > 2 {
				sb.WriteString(fmt.Sprintf(" %d", operands[2]))
			}
		case op == OpBox || op == OpUnbox:
			sb.WriteString(" " + Kind(operands[0]).String())
		case n == 1:
			sb.WriteString(fmt.Sprintf(" %d", operands[0]))
		}
		sb.WriteString("\n")
		ip += 1 + n
	}
	return sb.String()
}
