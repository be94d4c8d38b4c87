// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tuple

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/matrixorigin/multijoin/pkg/common/moerr"
	"github.com/matrixorigin/multijoin/pkg/container/types"
)

/*
 * Packer encodes the canonical fields of a composite key into one string so
 * that string equality is field wise equality:
 *    var p Packer
 *    p.EncodeInt32(1)
 *    p.EncodeString("a")
 *    key := p.String()
 * and Unpack(key) gives back []any{int32(1), "a"}.
 * Strings are 0x00 terminated with embedded 0x00 escaped as 0x00 0xFF.
 */

const (
	nilCode     = 0x00
	stringCode  = 0x01
	intZeroCode = 0x14
	float32Code = 0x20
	float64Code = 0x21
	int8Code    = 0x28
	int16Code   = 0x29
	int32Code   = 0x3a
	int64Code   = 0x3b
	char16Code  = 0x3d
	otherCode   = 0x60
)

var sizeLimits = []uint64{
	1<<(0*8) - 1,
	1<<(1*8) - 1,
	1<<(2*8) - 1,
	1<<(3*8) - 1,
	1<<(4*8) - 1,
	1<<(5*8) - 1,
	1<<(6*8) - 1,
	1<<(7*8) - 1,
	1<<(8*8) - 1,
}

func bisectLeft(u uint64) int {
	var n int
	for sizeLimits[n] < u {
		n++
	}
	return n
}

type Packer struct {
	buf []byte
}

func (p *Packer) Reset() {
	p.buf = p.buf[:0]
}

func (p *Packer) String() string {
	return string(p.buf)
}

func (p *Packer) Bytes() []byte {
	return p.buf
}

func (p *Packer) EncodeNull() {
	p.buf = append(p.buf, nilCode)
}

func (p *Packer) encodeInt(code byte, v int64) {
	p.buf = append(p.buf, code)
	if v == 0 {
		p.buf = append(p.buf, intZeroCode)
		return
	}
	var scratch [8]byte
	if v > 0 {
		n := bisectLeft(uint64(v))
		p.buf = append(p.buf, byte(intZeroCode+n))
		binary.BigEndian.PutUint64(scratch[:], uint64(v))
		p.buf = append(p.buf, scratch[8-n:]...)
		return
	}
	n := bisectLeft(uint64(-v))
	p.buf = append(p.buf, byte(intZeroCode-n))
	offsetEncoded := int64(sizeLimits[n]) + v
	binary.BigEndian.PutUint64(scratch[:], uint64(offsetEncoded))
	p.buf = append(p.buf, scratch[8-n:]...)
}

func (p *Packer) EncodeInt8(v int8) {
	p.encodeInt(int8Code, int64(v))
}

func (p *Packer) EncodeInt16(v int16) {
	p.encodeInt(int16Code, int64(v))
}

func (p *Packer) EncodeInt32(v int32) {
	p.encodeInt(int32Code, int64(v))
}

func (p *Packer) EncodeInt64(v int64) {
	p.encodeInt(int64Code, v)
}

func (p *Packer) EncodeChar16(v uint16) {
	p.buf = append(p.buf, char16Code, byte(v>>8), byte(v))
}

// EncodeFloat32 writes the canonical bits so -0 equals 0 and NaNs are one.
func (p *Packer) EncodeFloat32(v float32) {
	p.buf = append(p.buf, float32Code)
	p.buf = binary.BigEndian.AppendUint32(p.buf, types.CanonicalFloat32(v))
}

func (p *Packer) EncodeFloat64(v float64) {
	p.buf = append(p.buf, float64Code)
	p.buf = binary.BigEndian.AppendUint64(p.buf, types.CanonicalFloat64(v))
}

func (p *Packer) encodeBytes(code byte, b []byte) {
	p.buf = append(p.buf, code)
	p.buf = append(p.buf, bytes.ReplaceAll(b, []byte{0x00}, []byte{0x00, 0xFF})...)
	p.buf = append(p.buf, 0x00)
}

func (p *Packer) EncodeString(s string) {
	p.encodeBytes(stringCode, []byte(s))
}

// EncodeValue writes a physical or reference value. Values of any other
// type are keyed by their type and printed form.
func (p *Packer) EncodeValue(v any) {
	switch x := v.(type) {
	case nil:
		p.EncodeNull()
	case int8:
		p.EncodeInt8(x)
	case int16:
		p.EncodeInt16(x)
	case int32:
		p.EncodeInt32(x)
	case int64:
		p.EncodeInt64(x)
	case int:
		p.EncodeInt64(int64(x))
	case uint16:
		p.EncodeChar16(x)
	case float32:
		p.EncodeFloat32(x)
	case float64:
		p.EncodeFloat64(x)
	case string:
		p.EncodeString(x)
	case []byte:
		p.encodeBytes(stringCode, x)
	case types.Boolean:
		p.EncodeInt8(types.BooleanAsByte(x))
	case types.Timestamp:
		p.EncodeInt64(types.EpochNanos(x))
	default:
		p.encodeBytes(otherCode, []byte(fmt.Sprintf("%T:%v", v, v)))
	}
}

func findTerminator(b []byte) int {
	bp := b
	var length int

	for {
		idx := bytes.IndexByte(bp, 0x00)
		if idx < 0 {
			return -1
		}
		length += idx
		if idx+1 == len(bp) || bp[idx+1] != 0xFF {
			break
		}
		length += 2
		bp = bp[idx+2:]
	}
	return length
}

func decodeInt(b []byte) (int64, int, error) {
	if len(b) == 0 {
		return 0, 0, errTruncated()
	}
	if b[0] == intZeroCode {
		return 0, 1, nil
	}
	n := int(b[0]) - intZeroCode
	neg := n < 0
	if neg {
		n = -n
	}
	if n > 8 || len(b) < n+1 {
		return 0, 0, errTruncated()
	}
	var bp [8]byte
	copy(bp[8-n:], b[1:n+1])
	ret := int64(binary.BigEndian.Uint64(bp[:]))
	if neg {
		ret -= int64(sizeLimits[n])
	}
	return ret, n + 1, nil
}

// Unpack decodes a packed key back into its fields.
func Unpack(key string) ([]any, error) {
	b := []byte(key)
	var res []any
	for i := 0; i < len(b); {
		code := b[i]
		i++
		switch code {
		case nilCode:
			res = append(res, nil)
		case int8Code, int16Code, int32Code, int64Code:
			v, n, err := decodeInt(b[i:])
			if err != nil {
				return nil, err
			}
			i += n
			switch code {
			case int8Code:
				res = append(res, int8(v))
			case int16Code:
				res = append(res, int16(v))
			case int32Code:
				res = append(res, int32(v))
			default:
				res = append(res, v)
			}
		case char16Code:
			if len(b) < i+2 {
				return nil, errTruncated()
			}
			res = append(res, binary.BigEndian.Uint16(b[i:]))
			i += 2
		case float32Code:
			if len(b) < i+4 {
				return nil, errTruncated()
			}
			res = append(res, math.Float32frombits(binary.BigEndian.Uint32(b[i:])))
			i += 4
		case float64Code:
			if len(b) < i+8 {
				return nil, errTruncated()
			}
			res = append(res, math.Float64frombits(binary.BigEndian.Uint64(b[i:])))
			i += 8
		case stringCode, otherCode:
			idx := findTerminator(b[i:])
			if idx < 0 {
				return nil, errTruncated()
			}
			res = append(res, string(bytes.ReplaceAll(b[i:i+idx], []byte{0x00, 0xFF}, []byte{0x00})))
			i += idx + 1
		default:
			return nil, moerr.NewInternalError(context.TODO(), "unable to decode key element with unknown typecode %02x", code)
		}
	}
	return res, nil
}

func errTruncated() error {
	return moerr.NewInternalError(context.TODO(), "truncated key encoding")
}
