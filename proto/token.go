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
)

// TokenKind tags every block token envelope on the wire.
const TokenKind = "HDFS_BLOCK_TOKEN"

// ExtendedBlock names a block within a block pool.
type ExtendedBlock struct {
	BlockPoolID string `json:"pool"`
	BlockID     int64  `json:"block"`
}

func (b ExtendedBlock) String() string {
	return fmt.Sprintf("%s:blk_%d", b.BlockPoolID, b.BlockID)
}

// TokenIdentifier is the plaintext claim bound by the token MAC. ExpiryMs
// and KeyID are filled in by the secret manager at mint time.
type TokenIdentifier struct {
	ExpiryMs    int64         `json:"expiryMs"`
	KeyID       int32         `json:"keyId"`
	UserID      string        `json:"user"`
	BlockPoolID string        `json:"pool"`
	BlockID     int64         `json:"block"`
	Modes       AccessModeSet `json:"modes"`
}

func (id *TokenIdentifier) String() string {
	return fmt.Sprintf("block_token_identifier (expiryMs=%d, keyId=%d, userId=%s, blockPoolId=%s, blockId=%d, access modes=%s)",
		id.ExpiryMs, id.KeyID, id.UserID, id.BlockPoolID, id.BlockID, id.Modes)
}

func (id *TokenIdentifier) Block() ExtendedBlock {
	return ExtendedBlock{BlockPoolID: id.BlockPoolID, BlockID: id.BlockID}
}

// Marshal renders the identifier in the agreed wire layout: expiry, key id,
// user, pool, block id, then the mode-name list.
func (id *TokenIdentifier) Marshal() []byte {
	buf := new(bytes.Buffer)
	writeVarint(buf, id.ExpiryMs)
	writeVarint(buf, int64(id.KeyID))
	writeString(buf, id.UserID)
	writeString(buf, id.BlockPoolID)
	writeVarint(buf, id.BlockID)
	modes := id.Modes.Modes()
	writeVarint(buf, int64(len(modes)))
	for _, m := range modes {
		writeString(buf, m.String())
	}
	return buf.Bytes()
}

// Unmarshal parses identifier bytes produced by Marshal. Any structural
// defect surfaces as ErrMalformedToken.
func (id *TokenIdentifier) Unmarshal(data []byte) (err error) {
	r := bytes.NewReader(data)
	if id.ExpiryMs, err = readVarint(r); err != nil {
		return
	}
	if id.KeyID, err = readVarint32(r); err != nil {
		return
	}
	if id.UserID, err = readString(r); err != nil {
		return
	}
	if id.BlockPoolID, err = readString(r); err != nil {
		return
	}
	if id.BlockID, err = readVarint(r); err != nil {
		return
	}
	var count int64
	if count, err = readVarint(r); err != nil {
		return
	}
	if count <= 0 || count > int64(accessModeCount) {
		return ErrMalformedToken
	}
	id.Modes = 0
	for i := int64(0); i < count; i++ {
		var name string
		if name, err = readString(r); err != nil {
			return
		}
		m, perr := ParseAccessMode(name)
		if perr != nil {
			return ErrMalformedToken
		}
		id.Modes = id.Modes.Add(m)
	}
	if r.Len() != 0 {
		return ErrMalformedToken
	}
	return nil
}

// TokenExpiry parses only the leading expiry varint of identifier bytes,
// the quick is-expired probe.
func TokenExpiry(identifier []byte) (int64, error) {
	return readVarint(bytes.NewReader(identifier))
}

// Token is the envelope a client presents to a datanode. Kind and Service
// are routing hints for the transport and do not participate in
// verification.
type Token struct {
	ID       []byte `json:"id"`
	Password []byte `json:"password"`
	Kind     string `json:"kind"`
	Service  string `json:"service"`
}

// EmptyToken is the placeholder carried by unauthenticated paths. It has no
// identifier and no password and never validates.
var EmptyToken = &Token{Kind: TokenKind}

// Marshal renders the envelope with length-prefixed fields.
func (t *Token) Marshal() []byte {
	buf := new(bytes.Buffer)
	writeBytes(buf, t.ID)
	writeBytes(buf, t.Password)
	writeString(buf, t.Kind)
	writeString(buf, t.Service)
	return buf.Bytes()
}

// Unmarshal parses an envelope produced by Marshal.
func (t *Token) Unmarshal(data []byte) (err error) {
	r := bytes.NewReader(data)
	if t.ID, err = readBytes(r); err != nil {
		return
	}
	if t.Password, err = readBytes(r); err != nil {
		return
	}
	if t.Kind, err = readString(r); err != nil {
		return
	}
	if t.Service, err = readString(r); err != nil {
		return
	}
	if r.Len() != 0 {
		return ErrMalformedToken
	}
	return nil
}
