package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version   byte = 1
	kindValue byte = 1
	kindNull  byte = 2
	kindList  byte = 3

	hdrLen = 4 + 1 + 1
)

var (
	ErrCorrupt = errors.New("easycache: corrupt entry")
	magic4     = [...]byte{'E', 'Z', 'C', 'A'}
)

// Kind of a decoded frame.
type Kind uint8

const (
	Value Kind = iota + 1
	Null
	List
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

func header(buf *bytes.Buffer, kind byte) {
	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)
}

// Value: magic(4) | ver(1) | kind(1=value) | vlen(u32 be) | payload(vlen)
func EncodeValue(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + 4 + len(payload))
	header(&buf, kindValue)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])
	buf.Write(payload)
	return buf.Bytes()
}

// Null: magic(4) | ver(1) | kind(2=null). Marks a computed-and-empty result.
func EncodeNull() []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen)
	header(&buf, kindNull)
	return buf.Bytes()
}

// List:
//
//	magic(4) | ver(1) | kind(3=list) | n(u32 be)
//	vlen(u32 be) | payload(vlen) * n
func EncodeList(items [][]byte) []byte {
	total := hdrLen + 4
	for _, it := range items {
		total += 4 + len(it)
	}

	var buf bytes.Buffer
	buf.Grow(total)
	header(&buf, kindList)

	var u4 [4]byte
	binary.BigEndian.PutUint32(u4[:], uint32(len(items)))
	buf.Write(u4[:])

	for _, it := range items {
		binary.BigEndian.PutUint32(u4[:], uint32(len(it)))
		buf.Write(u4[:])
		buf.Write(it)
	}
	return buf.Bytes()
}

// Kind reports the frame kind without decoding the body.
func KindOf(b []byte) (Kind, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return 0, ErrCorrupt
	}
	switch b[5] {
	case kindValue:
		return Value, nil
	case kindNull:
		if len(b) != hdrLen {
			return 0, ErrCorrupt
		}
		return Null, nil
	case kindList:
		return List, nil
	default:
		return 0, ErrCorrupt
	}
}

// DecodeValue returns the payload of a value frame. The payload aliases b.
func DecodeValue(b []byte) ([]byte, error) {
	if len(b) < hdrLen+4 || !hasMagic(b) || b[4] != version || b[5] != kindValue {
		return nil, ErrCorrupt
	}
	off := hdrLen
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off { // overflow-safe; no trailing bytes
		return nil, ErrCorrupt
	}
	return b[off : off+vlen], nil
}

// DecodeList returns the items of a list frame. Items alias b.
func DecodeList(b []byte) ([][]byte, error) {
	if len(b) < hdrLen+4 || !hasMagic(b) || b[4] != version || b[5] != kindList {
		return nil, ErrCorrupt
	}
	off := hdrLen

	n := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	// every item needs at least its 4 byte length prefix
	if n < 0 || n > (len(b)-off)/4 {
		return nil, ErrCorrupt
	}

	items := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if off+4 > len(b) {
			return nil, ErrCorrupt
		}
		vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		if vlen < 0 || vlen > len(b)-off {
			return nil, ErrCorrupt
		}
		items = append(items, b[off:off+vlen])
		off += vlen
	}
	if off != len(b) {
		return nil, ErrCorrupt
	}
	return items, nil
}
