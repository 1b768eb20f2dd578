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
	"testing"

	"github.com/stretchr/testify/require"
)

func testIdentifier() *TokenIdentifier {
	return &TokenIdentifier{
		ExpiryMs:    1700000000000,
		KeyID:       -12345,
		UserID:      "alice",
		BlockPoolID: "BP-2023",
		BlockID:     1001,
		Modes:       NewAccessModeSet(AccessModeRead, AccessModeWrite),
	}
}

func TestIdentifierRoundTrip(t *testing.T) {
	id := testIdentifier()
	got := &TokenIdentifier{}
	require.NoError(t, got.Unmarshal(id.Marshal()))
	require.Equal(t, id, got)
}

func TestIdentifierTruncation(t *testing.T) {
	data := testIdentifier().Marshal()
	for i := 0; i < len(data); i++ {
		got := &TokenIdentifier{}
		require.ErrorIs(t, got.Unmarshal(data[:i]), ErrMalformedToken, "prefix of %d bytes", i)
	}
}

func TestIdentifierTrailingBytes(t *testing.T) {
	data := append(testIdentifier().Marshal(), 0x00)
	got := &TokenIdentifier{}
	require.ErrorIs(t, got.Unmarshal(data), ErrMalformedToken)
}

func TestIdentifierBadModeCount(t *testing.T) {
	id := testIdentifier()
	buf := new(bytes.Buffer)
	writeVarint(buf, id.ExpiryMs)
	writeVarint(buf, int64(id.KeyID))
	writeString(buf, id.UserID)
	writeString(buf, id.BlockPoolID)
	writeVarint(buf, id.BlockID)
	writeVarint(buf, 0)
	got := &TokenIdentifier{}
	require.ErrorIs(t, got.Unmarshal(buf.Bytes()), ErrMalformedToken)

	buf.Reset()
	writeVarint(buf, id.ExpiryMs)
	writeVarint(buf, int64(id.KeyID))
	writeString(buf, id.UserID)
	writeString(buf, id.BlockPoolID)
	writeVarint(buf, id.BlockID)
	writeVarint(buf, 1)
	writeString(buf, "DESTROY")
	require.ErrorIs(t, got.Unmarshal(buf.Bytes()), ErrMalformedToken)
}

func TestTokenExpiryProbe(t *testing.T) {
	id := testIdentifier()
	expiry, err := TokenExpiry(id.Marshal())
	require.NoError(t, err)
	require.Equal(t, id.ExpiryMs, expiry)

	_, err = TokenExpiry(nil)
	require.ErrorIs(t, err, ErrMalformedToken)
}

func TestTokenEnvelopeRoundTrip(t *testing.T) {
	token := &Token{
		ID:       testIdentifier().Marshal(),
		Password: []byte{0xde, 0xad, 0xbe, 0xef},
		Kind:     TokenKind,
		Service:  "127.0.0.1:17030",
	}
	got := &Token{}
	require.NoError(t, got.Unmarshal(token.Marshal()))
	require.Equal(t, token, got)

	require.ErrorIs(t, got.Unmarshal(append(token.Marshal(), 0x7f)), ErrMalformedToken)
}

func TestEmptyTokenNeverParsesAnIdentifier(t *testing.T) {
	id := &TokenIdentifier{}
	require.ErrorIs(t, id.Unmarshal(EmptyToken.ID), ErrMalformedToken)
}

func TestExportedKeysRoundTrip(t *testing.T) {
	exported := &ExportedBlockKeys{
		Enabled:             true,
		KeyUpdateIntervalMs: 600000,
		TokenLifetimeMs:     600000,
		CurrentKey:          BlockKey{KeyID: 7, ExpiryMs: 1700000000000, Secret: []byte("s3cr3t-s3cr3t-s3cr3t")},
		AllKeys: []BlockKey{
			{KeyID: 6, ExpiryMs: 1699999000000, Secret: []byte("old-secret")},
			{KeyID: 7, ExpiryMs: 1700000000000, Secret: []byte("s3cr3t-s3cr3t-s3cr3t")},
			{KeyID: 8, ExpiryMs: 1700001000000, Secret: []byte("next-secret")},
		},
	}
	got := &ExportedBlockKeys{}
	require.NoError(t, got.Unmarshal(exported.Marshal()))
	require.Equal(t, exported, got)

	data := exported.Marshal()
	require.Error(t, got.Unmarshal(data[:len(data)-3]))
	require.Error(t, got.Unmarshal(append(exported.Marshal(), 0x00)))
}

func TestParseAccessModeSet(t *testing.T) {
	s, err := ParseAccessModeSet("READ, WRITE")
	require.NoError(t, err)
	require.True(t, s.Contains(AccessModeRead))
	require.True(t, s.Contains(AccessModeWrite))
	require.False(t, s.Contains(AccessModeCopy))
	require.Equal(t, "READ,WRITE", s.String())

	_, err = ParseAccessModeSet("")
	require.Error(t, err)
	_, err = ParseAccessModeSet("READ,DESTROY")
	require.Error(t, err)
}

func TestParseErrorCode(t *testing.T) {
	require.Equal(t, int32(ErrCodeSuccess), ParseErrorCode(nil))
	require.Equal(t, int32(ErrCodeExpiredToken), ParseErrorCode(ErrExpiredToken))
	require.Equal(t, int32(ErrCodeInternalError), ParseErrorCode(bytes.ErrTooLarge))
}
