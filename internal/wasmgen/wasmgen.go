// Package wasmgen assembles small core WebAssembly modules for tests.
//
// It covers the subset needed to stand up fake engine modules: i32/i64
// functions, host imports, one memory, mutable globals, exports and active
// data segments.
package wasmgen

import "bytes"

// ValType is a WebAssembly value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
)

const (
	magic   = "\x00asm"
	version = "\x01\x00\x00\x00"

	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	funcTypeByte = 0x60

	kindFunc   = 0x00
	kindMemory = 0x02
)

type funcType struct {
	params  []ValType
	results []ValType
}

func (t funcType) key() string {
	return string(valBytes(t.params)) + "|" + string(valBytes(t.results))
}

type importFunc struct {
	module, name string
	typeIdx      uint32
}

type function struct {
	locals  []ValType
	body    []byte
	typeIdx uint32
}

type global struct {
	typ  ValType
	init int64
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	data   []byte
	offset uint32
}

// Module accumulates definitions and encodes them in section order.
type Module struct {
	typeIndex map[string]uint32
	types     []funcType
	imports   []importFunc
	funcs     []function
	globals   []global
	exports   []export
	data      []segment
	memPages  uint32
	hasMemory bool
}

// New returns an empty module.
func New() *Module {
	return &Module{typeIndex: make(map[string]uint32)}
}

func (m *Module) typeOf(params, results []ValType) uint32 {
	t := funcType{params: params, results: results}
	if idx, ok := m.typeIndex[t.key()]; ok {
		return idx
	}
	idx := uint32(len(m.types))
	m.types = append(m.types, t)
	m.typeIndex[t.key()] = idx
	return idx
}

// ImportFunc declares a host function and returns its function index.
// All imports must be declared before the first Func.
func (m *Module) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmgen: import declared after local function")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typeIdx: m.typeOf(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function and returns its index. body must not include
// the trailing end opcode.
func (m *Module) Func(params, results, locals []ValType, body *Code) uint32 {
	var b []byte
	if body != nil {
		b = body.Bytes()
	}
	m.funcs = append(m.funcs, function{typeIdx: m.typeOf(params, results), locals: locals, body: b})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Memory declares the module memory with a minimum page count.
func (m *Module) Memory(pages uint32) {
	m.hasMemory = true
	m.memPages = pages
}

// Global declares a mutable global and returns its index.
func (m *Module) Global(typ ValType, init int64) uint32 {
	m.globals = append(m.globals, global{typ: typ, init: init})
	return uint32(len(m.globals) - 1)
}

// ExportFunc exports function idx under name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: idx})
}

// ExportMemory exports memory 0 under name.
func (m *Module) ExportMemory(name string) {
	m.exports = append(m.exports, export{name: name, kind: kindMemory})
}

// Data places b at offset in memory 0 at instantiation.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, segment{offset: offset, data: append([]byte(nil), b...)})
}

// Encode returns the binary module.
func (m *Module) Encode() []byte {
	var out bytes.Buffer
	out.WriteString(magic)
	out.WriteString(version)

	if len(m.types) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.types)))
		for _, t := range m.types {
			sec = append(sec, funcTypeByte)
			sec = appendVals(sec, t.params)
			sec = appendVals(sec, t.results)
		}
		writeSection(&out, sectionType, sec)
	}

	if len(m.imports) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.imports)))
		for _, imp := range m.imports {
			sec = appendName(sec, imp.module)
			sec = appendName(sec, imp.name)
			sec = append(sec, kindFunc)
			sec = appendU32(sec, imp.typeIdx)
		}
		writeSection(&out, sectionImport, sec)
	}

	if len(m.funcs) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			sec = appendU32(sec, f.typeIdx)
		}
		writeSection(&out, sectionFunction, sec)
	}

	if m.hasMemory {
		var sec []byte
		sec = appendU32(sec, 1)
		sec = append(sec, 0x00)
		sec = appendU32(sec, m.memPages)
		writeSection(&out, sectionMemory, sec)
	}

	if len(m.globals) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.globals)))
		for _, g := range m.globals {
			sec = append(sec, byte(g.typ), 0x01)
			if g.typ == I64 {
				sec = append(sec, opI64Const)
				sec = appendS64(sec, g.init)
			} else {
				sec = append(sec, opI32Const)
				sec = appendS64(sec, int64(int32(g.init)))
			}
			sec = append(sec, opEnd)
		}
		writeSection(&out, sectionGlobal, sec)
	}

	if len(m.exports) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.exports)))
		for _, e := range m.exports {
			sec = appendName(sec, e.name)
			sec = append(sec, e.kind)
			sec = appendU32(sec, e.idx)
		}
		writeSection(&out, sectionExport, sec)
	}

	if len(m.funcs) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body []byte
			body = appendU32(body, uint32(len(f.locals)))
			for _, l := range f.locals {
				body = appendU32(body, 1)
				body = append(body, byte(l))
			}
			body = append(body, f.body...)
			body = append(body, opEnd)
			sec = appendU32(sec, uint32(len(body)))
			sec = append(sec, body...)
		}
		writeSection(&out, sectionCode, sec)
	}

	if len(m.data) > 0 {
		var sec []byte
		sec = appendU32(sec, uint32(len(m.data)))
		for _, d := range m.data {
			sec = append(sec, 0x00, opI32Const)
			sec = appendS64(sec, int64(int32(d.offset)))
			sec = append(sec, opEnd)
			sec = appendU32(sec, uint32(len(d.data)))
			sec = append(sec, d.data...)
		}
		writeSection(&out, sectionData, sec)
	}

	return out.Bytes()
}

func writeSection(out *bytes.Buffer, id byte, data []byte) {
	out.WriteByte(id)
	out.Write(appendU32(nil, uint32(len(data))))
	out.Write(data)
}

func appendName(b []byte, s string) []byte {
	b = appendU32(b, uint32(len(s)))
	return append(b, s...)
}

func appendVals(b []byte, vals []ValType) []byte {
	b = appendU32(b, uint32(len(vals)))
	return append(b, valBytes(vals)...)
}

func valBytes(vals []ValType) []byte {
	out := make([]byte, len(vals))
	for i, v := range vals {
		out[i] = byte(v)
	}
	return out
}

// appendU32 appends an unsigned LEB128 value.
func appendU32(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b = append(b, c|0x80)
			continue
		}
		return append(b, c)
	}
}

// appendS64 appends a signed LEB128 value.
func appendS64(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}
