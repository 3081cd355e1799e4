// File format for the compiled bytecode blobs, used by the cmd/smog
// `compile`/`disassemble`/`run` subcommands (spec.md's Non-goals explicitly
// rule out a standalone artifact format at the *core* level -- "bytecode
// lives only in memory attached to function objects" -- but the CLI still
// needs to round-trip a compiled blob through the ".sgb" extension chosen
// in SPEC_FULL.md 4.11, so this lives at the host layer, not inside the VM).
//
// Binary layout:
//
//	[[Header]]
//	  Magic (4 bytes): "SGB\x00"
//	  Version (4 bytes, big-endian)
//
//	[[Blob]] (recursive: a top-level Blob, or one nested per Function constant)
//	  CodeLen (4 bytes) + Code bytes
//	  LineCount (4 bytes) + one int32 per line
//	  ConstCount (4 bytes) + one tagged constant per entry
//
//	[[Constant]]
//	  Tag (1 byte): Nil=0x00 Bool=0x01 Number=0x02 String=0x03 Function=0x04
//	  Nil: no payload
//	  Bool: 1 byte (0/1)
//	  Number: 8 bytes, big-endian bits of the float64
//	  String: 4-byte length + UTF-8 bytes
//	  Function: Arity(4) UpvalueCount(4) Variadic(1) Kind(1) NameLen(4)+Name
//	            UpvalueDescCount(4) + one (isLocal, index) byte pair per
//	            upvalue, followed by a nested Blob
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/kristofer/smog/pkg/value"
)

const (
	sgbMagic   uint32 = 0x53474200 // "SGB\x00"
	sgbVersion uint32 = 1
)

const (
	constTagNil      byte = 0x00
	constTagBool     byte = 0x01
	constTagNumber   byte = 0x02
	constTagString   byte = 0x03
	constTagFunction byte = 0x04
)

// Encode writes b to w in the .sgb format.
func Encode(b *value.Blob, w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, sgbMagic); err != nil {
		return errors.Wrap(err, "write magic")
	}
	if err := binary.Write(w, binary.BigEndian, sgbVersion); err != nil {
		return errors.Wrap(err, "write version")
	}
	return encodeBlob(b, w)
}

func encodeBlob(b *value.Blob, w io.Writer) error {
	if err := writeUint32(w, uint32(len(b.Code))); err != nil {
		return err
	}
	if _, err := w.Write(b.Code); err != nil {
		return errors.Wrap(err, "write code")
	}
	if err := writeUint32(w, uint32(len(b.Lines))); err != nil {
		return err
	}
	for _, ln := range b.Lines {
		if err := writeUint32(w, uint32(ln)); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(len(b.Constants))); err != nil {
		return err
	}
	for _, c := range b.Constants {
		if err := encodeConstant(c, w); err != nil {
			return err
		}
	}
	return nil
}

func encodeConstant(c value.Value, w io.Writer) error {
	switch c.Kind() {
	case value.KindNil:
		_, err := w.Write([]byte{constTagNil})
		return err
	case value.KindBool:
		b := byte(0)
		if c.AsBool() {
			b = 1
		}
		_, err := w.Write([]byte{constTagBool, b})
		return err
	case value.KindNumber:
		if _, err := w.Write([]byte{constTagNumber}); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, math.Float64bits(c.AsNumber()))
	case value.KindObject:
		switch o := c.AsObject().(type) {
		case *value.String:
			if _, err := w.Write([]byte{constTagString}); err != nil {
				return err
			}
			return writeBytes(w, o.Bytes)
		case *value.Function:
			return encodeFunction(o, w)
		}
	}
	return errors.Errorf("bytecode: cannot encode constant of kind %v", c.Kind())
}

func encodeFunction(fn *value.Function, w io.Writer) error {
	if _, err := w.Write([]byte{constTagFunction}); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(fn.Arity)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(fn.UpvalueCount)); err != nil {
		return err
	}
	variadic := byte(0)
	if fn.Variadic {
		variadic = 1
	}
	if _, err := w.Write([]byte{variadic, byte(fn.Kind)}); err != nil {
		return err
	}
	name := []byte(nil)
	if fn.Name != nil {
		name = fn.Name.Bytes
	}
	if err := writeBytes(w, name); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(fn.Upvalues))); err != nil {
		return err
	}
	for _, uv := range fn.Upvalues {
		isLocal := byte(0)
		if uv.IsLocal {
			isLocal = 1
		}
		if _, err := w.Write([]byte{isLocal, byte(uv.Index)}); err != nil {
			return err
		}
	}
	return encodeBlob(fn.Blob, w)
}

// Decode reads a .sgb blob from r. interner is used to intern decoded
// string constants so they share identity with the rest of the runtime.
func Decode(r io.Reader, interner *value.Interner) (*value.Blob, error) {
	var magic, version uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, errors.Wrap(err, "read magic")
	}
	if magic != sgbMagic {
		return nil, errors.Errorf("bytecode: bad magic 0x%08X", magic)
	}
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, errors.Wrap(err, "read version")
	}
	if version != sgbVersion {
		return nil, errors.Errorf("bytecode: unsupported version %d", version)
	}
	return decodeBlob(r, interner)
}

func decodeBlob(r io.Reader, interner *value.Interner) (*value.Blob, error) {
	codeLen, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(r, code); err != nil {
		return nil, errors.Wrap(err, "read code")
	}
	lineCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	lines := make([]int, lineCount)
	for i := range lines {
		v, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		lines[i] = int(v)
	}
	constCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	constants := make([]value.Value, constCount)
	for i := range constants {
		v, err := decodeConstant(r, interner)
		if err != nil {
			return nil, err
		}
		constants[i] = v
	}
	return &value.Blob{Code: code, Lines: lines, Constants: constants}, nil
}

func decodeConstant(r io.Reader, interner *value.Interner) (value.Value, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return value.Nil, errors.Wrap(err, "read constant tag")
	}
	switch tag[0] {
	case constTagNil:
		return value.Nil, nil
	case constTagBool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return value.Nil, err
		}
		return value.Bool(b[0] != 0), nil
	case constTagNumber:
		var bits uint64
		if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
			return value.Nil, err
		}
		return value.Number(math.Float64frombits(bits)), nil
	case constTagString:
		raw, err := readBytes(r)
		if err != nil {
			return value.Nil, err
		}
		return value.Obj(interner.Intern(raw)), nil
	case constTagFunction:
		fn, err := decodeFunction(r, interner)
		if err != nil {
			return value.Nil, err
		}
		return value.Obj(fn), nil
	default:
		return value.Nil, errors.Errorf("bytecode: unknown constant tag 0x%02X", tag[0])
	}
}

func decodeFunction(r io.Reader, interner *value.Interner) (*value.Function, error) {
	arity, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	upvalCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	var flags [2]byte
	if _, err := io.ReadFull(r, flags[:]); err != nil {
		return nil, err
	}
	nameBytes, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	var name *value.String
	if len(nameBytes) > 0 {
		name = interner.Intern(nameBytes)
	}
	upvalDescCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	upvalues := make([]value.UpvalueDesc, upvalDescCount)
	for i := range upvalues {
		var pair [2]byte
		if _, err := io.ReadFull(r, pair[:]); err != nil {
			return nil, err
		}
		upvalues[i] = value.UpvalueDesc{IsLocal: pair[0] != 0, Index: int(pair[1])}
	}
	blob, err := decodeBlob(r, interner)
	if err != nil {
		return nil, err
	}
	return &value.Function{
		Name:         name,
		Arity:        int(arity),
		UpvalueCount: int(upvalCount),
		Variadic:     flags[0] != 0,
		Kind:         value.FunctionKind(flags[1]),
		Blob:         blob,
		Upvalues:     upvalues,
	}, nil
}

func writeUint32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.BigEndian, v)
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read bytes: %w", err)
	}
	return buf, nil
}
