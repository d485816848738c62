package chanlib

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/tlv"
)

// Version is the leading byte of every encoded message.
const Version byte = 0x01

// maxListLen bounds every var-int prefixed list so that a malformed length
// can't force a huge allocation.
const maxListLen = 1024

type encoder struct {
	w       bytes.Buffer
	scratch [8]byte
	err     error
}

func (e *encoder) uint8(v uint8) {
	if e.err != nil {
		return
	}
	e.err = tlv.EUint8(&e.w, &v, &e.scratch)
}

func (e *encoder) uint32(v uint32) {
	if e.err != nil {
		return
	}
	e.err = tlv.EUint32(&e.w, &v, &e.scratch)
}

func (e *encoder) uint64(v uint64) {
	if e.err != nil {
		return
	}
	e.err = tlv.EUint64(&e.w, &v, &e.scratch)
}

func (e *encoder) timestamp(v int64) {
	if e.err != nil {
		return
	}
	if v < 0 {
		e.err = fmt.Errorf("negative timestamp %d", v)
		return
	}
	e.uint64(uint64(v))
}

func (e *encoder) varint(v int) {
	if e.err != nil {
		return
	}
	e.err = tlv.WriteVarInt(&e.w, uint64(v), &e.scratch)
}

func (e *encoder) address(a Address) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(a[:])
}

func (e *encoder) hash(h [HashSize]byte) {
	if e.err != nil {
		return
	}
	e.err = tlv.EBytes32(&e.w, &h, &e.scratch)
}

func (e *encoder) amount(a *uint256.Int) {
	e.hash(a.Bytes32())
}

func (e *encoder) bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.w.Bytes(), nil
}

type decoder struct {
	r       *bytes.Reader
	scratch [8]byte
	err     error
}

func newDecoder(buf []byte) *decoder {
	return &decoder{r: bytes.NewReader(buf)}
}

// header reads and checks the version byte, returning the kind byte.
func (d *decoder) header() byte {
	version := d.uint8()
	kind := d.uint8()
	if d.err == nil && version != Version {
		d.err = fmt.Errorf("unsupported message version %d", version)
	}
	return kind
}

func (d *decoder) uint8() uint8 {
	var v uint8
	if d.err != nil {
		return v
	}
	d.err = tlv.DUint8(d.r, &v, &d.scratch, 1)
	return v
}

func (d *decoder) uint32() uint32 {
	var v uint32
	if d.err != nil {
		return v
	}
	d.err = tlv.DUint32(d.r, &v, &d.scratch, 4)
	return v
}

func (d *decoder) uint64() uint64 {
	var v uint64
	if d.err != nil {
		return v
	}
	d.err = tlv.DUint64(d.r, &v, &d.scratch, 8)
	return v
}

func (d *decoder) timestamp() int64 {
	v := d.uint64()
	if d.err == nil && v > math.MaxInt64 {
		d.err = fmt.Errorf("timestamp %d out of range", v)
	}
	return int64(v)
}

func (d *decoder) listLen() int {
	if d.err != nil {
		return 0
	}
	v, err := tlv.ReadVarInt(d.r, &d.scratch)
	if err != nil {
		d.err = err
		return 0
	}
	if v > maxListLen {
		d.err = fmt.Errorf("list length %d exceeds max %d", v, maxListLen)
		return 0
	}
	return int(v)
}

func (d *decoder) address() Address {
	var a Address
	if d.err != nil {
		return a
	}
	_, d.err = io.ReadFull(d.r, a[:])
	return a
}

func (d *decoder) hash() [HashSize]byte {
	var h [HashSize]byte
	if d.err != nil {
		return h
	}
	d.err = tlv.DBytes32(d.r, &h, &d.scratch, HashSize)
	return h
}

func (d *decoder) amount() uint256.Int {
	h := d.hash()
	var a uint256.Int
	a.SetBytes32(h[:])
	return a
}

// finish fails if decoding failed or left trailing bytes behind.
func (d *decoder) finish() error {
	if d.err != nil {
		if d.err == io.EOF || d.err == io.ErrUnexpectedEOF {
			return fmt.Errorf("message truncated")
		}
		return d.err
	}
	if d.r.Len() > 0 {
		return fmt.Errorf("unexpected %d trailing bytes", d.r.Len())
	}
	return nil
}
