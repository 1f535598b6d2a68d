package bytecode

// Opcode is a single-byte bytecode instruction (§4.3). Operands, where
// present, are big-endian and documented per-opcode below.
type Opcode byte

const (
	OpNull Opcode = iota
	OpTrue
	OpFalse
	OpConstant // L16
	OpPop

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpLessThan
	OpGreaterThan
	OpEqual

	OpJump        // u16, forward
	OpJumpIfFalse // u16, forward; peeks, does not pop
	OpLoop        // u16, backward

	OpGetLocal // u16
	OpSetLocal // u16
	OpGetGlobal // L16
	OpSetGlobal // L16
	OpDefineGlobal // L16

	OpGetUpvalue // u16
	OpSetUpvalue // u16
	OpCloseUpvalue

	OpCloseFunction // L16, u8 num_upvalues, then num_upvalues pairs of (u8 is_local, u16 index)

	OpCall   // u8 argc
	OpInvoke // L16 name, u8 argc
	OpReturn

	OpClass        // L16 name
	OpInherit
	OpAttachMethod // L16 name
	OpGetMember    // L16 name
	OpSetMember    // L16 name
	OpGetSuper     // L16 name

	OpHalt

	opcodeCount
)

// info describes an opcode's mnemonic and operand layout, grounded on the
// teacher's opcodeInfoTable idiom (single source of truth backing both the
// disassembler and operand-length bookkeeping).
type info struct {
	Name       string
	OperandLen int // bytes of fixed-width operand that directly follow the opcode byte; -1 for variable (CloseFunction)
}

var opcodeInfo = [opcodeCount]info{
	OpNull:     {"Null", 0},
	OpTrue:     {"True", 0},
	OpFalse:    {"False", 0},
	OpConstant: {"Constant", 2},
	OpPop:      {"Pop", 0},

	OpAdd:         {"Add", 0},
	OpSub:         {"Sub", 0},
	OpMul:         {"Mul", 0},
	OpDiv:         {"Div", 0},
	OpLessThan:    {"LessThan", 0},
	OpGreaterThan: {"GreaterThan", 0},
	OpEqual:       {"Equal", 0},

	OpJump:        {"Jump", 2},
	OpJumpIfFalse: {"JumpIfFalse", 2},
	OpLoop:        {"Loop", 2},

	OpGetLocal:     {"GetLocal", 2},
	OpSetLocal:     {"SetLocal", 2},
	OpGetGlobal:    {"GetGlobal", 2},
	OpSetGlobal:    {"SetGlobal", 2},
	OpDefineGlobal: {"DefineGlobal", 2},

	OpGetUpvalue:   {"GetUpvalue", 2},
	OpSetUpvalue:   {"SetUpvalue", 2},
	OpCloseUpvalue: {"CloseUpvalue", 0},

	OpCloseFunction: {"CloseFunction", -1},

	OpCall:   {"Call", 1},
	OpInvoke: {"Invoke", 3}, // L16 + u8
	OpReturn: {"Return", 0},

	OpClass:        {"Class", 2},
	OpInherit:      {"Inherit", 0},
	OpAttachMethod: {"AttachMethod", 2},
	OpGetMember:    {"GetMember", 2},
	OpSetMember:    {"SetMember", 2},
	OpGetSuper:     {"GetSuper", 2},

	OpHalt: {"Halt", 0},
}

// String returns the opcode's mnemonic, or a placeholder for unknown bytes.
func (op Opcode) String() string {
	if int(op) < len(opcodeInfo) {
		if name := opcodeInfo[op].Name; name != "" {
			return name
		}
	}
	return "Unknown"
}

// OperandLen returns the number of fixed operand bytes following the
// opcode byte, or -1 if the opcode has a variable-length tail
// (OpCloseFunction, whose tail length depends on its upvalue count).
func (op Opcode) OperandLen() int {
	if int(op) < len(opcodeInfo) {
		return opcodeInfo[op].OperandLen
	}
	return 0
}

// IsJump reports whether op is one of the three jump-family opcodes.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIfFalse || op == OpLoop
}
