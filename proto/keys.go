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
	"fmt"

	"github.com/cubefs/blockauth/util/errors"
)

// BlockKey is an immutable shared secret identified by KeyID. A key must
// not verify tokens after ExpiryMs. Secrets travel in cleartext inside the
// export envelope; the transport is trusted for confidentiality.
type BlockKey struct {
	KeyID    int32  `json:"keyId"`
	ExpiryMs int64  `json:"expiryMs"`
	Secret   []byte `json:"secret"`
}

func (k *BlockKey) String() string {
	return fmt.Sprintf("block_key (keyId=%d, expiryMs=%d)", k.KeyID, k.ExpiryMs)
}

func (k *BlockKey) marshalTo(buf *bytes.Buffer) {
	writeVarint(buf, int64(k.KeyID))
	writeVarint(buf, k.ExpiryMs)
	writeBytes(buf, k.Secret)
}

func (k *BlockKey) unmarshalFrom(r *bytes.Reader) (err error) {
	if k.KeyID, err = readVarint32(r); err != nil {
		return
	}
	if k.ExpiryMs, err = readVarint(r); err != nil {
		return
	}
	k.Secret, err = readBytes(r)
	return
}

// ExportedBlockKeys is the snapshot a master publishes to its datanodes:
// the full live key set plus the key currently used to mint.
type ExportedBlockKeys struct {
	Enabled             bool       `json:"enabled"`
	KeyUpdateIntervalMs int64      `json:"keyUpdateIntervalMs"`
	TokenLifetimeMs     int64      `json:"tokenLifetimeMs"`
	CurrentKey          BlockKey   `json:"currentKey"`
	AllKeys             []BlockKey `json:"allKeys"`
}

// Marshal renders the envelope in the agreed wire layout.
func (e *ExportedBlockKeys) Marshal() []byte {
	buf := new(bytes.Buffer)
	enabled := int64(0)
	if e.Enabled {
		enabled = 1
	}
	writeVarint(buf, enabled)
	writeVarint(buf, e.KeyUpdateIntervalMs)
	writeVarint(buf, e.TokenLifetimeMs)
	e.CurrentKey.marshalTo(buf)
	writeVarint(buf, int64(len(e.AllKeys)))
	for i := range e.AllKeys {
		e.AllKeys[i].marshalTo(buf)
	}
	return buf.Bytes()
}

// Unmarshal parses an envelope produced by Marshal.
func (e *ExportedBlockKeys) Unmarshal(data []byte) (err error) {
	r := bytes.NewReader(data)
	var enabled int64
	if enabled, err = readVarint(r); err != nil {
		return
	}
	e.Enabled = enabled != 0
	if e.KeyUpdateIntervalMs, err = readVarint(r); err != nil {
		return
	}
	if e.TokenLifetimeMs, err = readVarint(r); err != nil {
		return
	}
	if err = e.CurrentKey.unmarshalFrom(r); err != nil {
		return
	}
	var count int64
	if count, err = readVarint(r); err != nil {
		return
	}
	if count < 0 || count > maxWireBytesLen {
		return errors.Trace(ErrMalformedToken, "bad key count [%d]", count)
	}
	e.AllKeys = make([]BlockKey, count)
	for i := range e.AllKeys {
		if err = e.AllKeys[i].unmarshalFrom(r); err != nil {
			return
		}
	}
	if r.Len() != 0 {
		return errors.Trace(ErrMalformedToken, "trailing bytes in exported keys")
	}
	return nil
}
