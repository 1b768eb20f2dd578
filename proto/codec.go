// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package proto

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cubefs/blockauth/util/errors"
)

// Primitive wire encoding shared by the token identifier, the token
// envelope and the exported key set: zig-zag varints for integers and
// varint-length-prefixed byte strings. Both ends of the transport must
// agree on this layout.

const maxWireBytesLen = 1 << 20

func writeVarint(buf *bytes.Buffer, v int64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutVarint(scratch[:], v)
	buf.Write(scratch[:n])
}

func readVarint(r *bytes.Reader) (int64, error) {
	v, err := binary.ReadVarint(r)
	if err != nil {
		return 0, errors.Trace(ErrMalformedToken, "short varint")
	}
	return v, nil
}

func readVarint32(r *bytes.Reader) (int32, error) {
	v, err := readVarint(r)
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, errors.Trace(ErrMalformedToken, "varint32 out of range [%d]", v)
	}
	return int32(v), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeVarint(buf, int64(len(b)))
	buf.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readVarint(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > maxWireBytesLen {
		return nil, errors.Trace(ErrMalformedToken, "bad length prefix [%d]", n)
	}
	if n > int64(r.Len()) {
		return nil, errors.Trace(ErrMalformedToken, "truncated field, want %d bytes have %d", n, r.Len())
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err = r.Read(b); err != nil {
			return nil, errors.Trace(ErrMalformedToken, "read field")
		}
	}
	return b, nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
