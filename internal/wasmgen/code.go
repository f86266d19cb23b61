package wasmgen

const (
	opEnd       = 0x0b
	opCall      = 0x10
	opDrop      = 0x1a
	opLocalGet  = 0x20
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Store  = 0x36
	opI32Const  = 0x41
	opI64Const  = 0x42
	opI32Eqz    = 0x45
	opI32Add    = 0x6a
	opI32And    = 0x71
)

// Code is a function body under construction. Methods append one
// instruction each and return the receiver for chaining.
type Code struct {
	buf []byte
}

// NewCode returns an empty body.
func NewCode() *Code {
	return &Code{}
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte {
	return c.buf
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.buf = appendU32(append(c.buf, opLocalGet), idx)
	return c
}

func (c *Code) GlobalGet(idx uint32) *Code {
	c.buf = appendU32(append(c.buf, opGlobalGet), idx)
	return c
}

func (c *Code) GlobalSet(idx uint32) *Code {
	c.buf = appendU32(append(c.buf, opGlobalSet), idx)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.buf = appendS64(append(c.buf, opI32Const), int64(v))
	return c
}

func (c *Code) I64Const(v int64) *Code {
	c.buf = appendS64(append(c.buf, opI64Const), v)
	return c
}

func (c *Code) I32Add() *Code {
	c.buf = append(c.buf, opI32Add)
	return c
}

func (c *Code) I32And() *Code {
	c.buf = append(c.buf, opI32And)
	return c
}

func (c *Code) I32Eqz() *Code {
	c.buf = append(c.buf, opI32Eqz)
	return c
}

// I32Store stores with 4-byte alignment at the given static offset.
func (c *Code) I32Store(offset uint32) *Code {
	c.buf = appendU32(appendU32(append(c.buf, opI32Store), 2), offset)
	return c
}

func (c *Code) Call(idx uint32) *Code {
	c.buf = appendU32(append(c.buf, opCall), idx)
	return c
}

func (c *Code) Drop() *Code {
	c.buf = append(c.buf, opDrop)
	return c
}
