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

package blocktoken

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/cubefs/blockauth/proto"
)

const (
	testInterval = time.Hour
	testLifetime = 2 * time.Hour
)

var testBlock = proto.ExtendedBlock{BlockPoolID: "BP-2023", BlockID: 1001}

func newTestMaster(t *testing.T, nnIndex int) (*BlockTokenSecretManager, *clock.Mock) {
	mock := clock.NewMock()
	m, err := NewMasterWithClock(testInterval, testLifetime, nnIndex, mock)
	require.NoError(t, err)
	return m, mock
}

func TestMintAndVerify(t *testing.T) {
	m, _ := newTestMaster(t, 0)
	modes := proto.NewAccessModeSet(proto.AccessModeRead, proto.AccessModeWrite)
	token, err := m.GenerateToken("alice", testBlock, modes)
	require.NoError(t, err)
	require.Equal(t, proto.TokenKind, token.Kind)

	require.NoError(t, m.CheckAccess(token, "alice", testBlock, proto.AccessModeRead))
	require.NoError(t, m.CheckAccess(token, "alice", testBlock, proto.AccessModeWrite))
	err = m.CheckAccess(token, "alice", testBlock, proto.AccessModeCopy)
	require.ErrorIs(t, err, proto.ErrModeDenied)
}

func TestGenerateTokenEmptyModes(t *testing.T) {
	m, _ := newTestMaster(t, 0)
	_, err := m.GenerateToken("alice", testBlock, proto.AccessModeSet(0))
	require.ErrorIs(t, err, proto.ErrParamError)
}

func TestUserAndBlockMismatch(t *testing.T) {
	m, _ := newTestMaster(t, 0)
	token, err := m.GenerateToken("alice", testBlock, proto.NewAccessModeSet(proto.AccessModeRead))
	require.NoError(t, err)

	err = m.CheckAccess(token, "mallory", testBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrUserMismatch)

	otherPool := proto.ExtendedBlock{BlockPoolID: "BP-other", BlockID: testBlock.BlockID}
	err = m.CheckAccess(token, "alice", otherPool, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrBlockMismatch)

	otherBlock := proto.ExtendedBlock{BlockPoolID: testBlock.BlockPoolID, BlockID: 9999}
	err = m.CheckAccess(token, "alice", otherBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrBlockMismatch)
}

func TestEmptyExpectedUserSkipsUserCheck(t *testing.T) {
	m, _ := newTestMaster(t, 0)
	token, err := m.GenerateToken("alice", testBlock, proto.NewAccessModeSet(proto.AccessModeRead))
	require.NoError(t, err)
	require.NoError(t, m.CheckAccess(token, "", testBlock, proto.AccessModeRead))
}

func TestTamperedToken(t *testing.T) {
	m, _ := newTestMaster(t, 0)
	token, err := m.GenerateToken("alice", testBlock, proto.NewAccessModeSet(proto.AccessModeRead))
	require.NoError(t, err)

	flipped := &proto.Token{
		ID:       token.ID,
		Password: append([]byte(nil), token.Password...),
		Kind:     token.Kind,
	}
	flipped.Password[0] ^= 0x01
	err = m.CheckAccess(flipped, "alice", testBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrBadMac)

	truncated := &proto.Token{
		ID:       token.ID[:len(token.ID)-1],
		Password: token.Password,
		Kind:     token.Kind,
	}
	err = m.CheckAccess(truncated, "alice", testBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrMalformedToken)

	trailing := &proto.Token{
		ID:       append(append([]byte(nil), token.ID...), 0x00),
		Password: token.Password,
		Kind:     token.Kind,
	}
	err = m.CheckAccess(trailing, "alice", testBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrMalformedToken)
}

func TestForgedIdentifier(t *testing.T) {
	m, _ := newTestMaster(t, 0)
	token, err := m.GenerateToken("alice", testBlock, proto.NewAccessModeSet(proto.AccessModeRead))
	require.NoError(t, err)

	id := &proto.TokenIdentifier{}
	require.NoError(t, id.Unmarshal(token.ID))
	id.BlockID = 31337
	forged := &proto.Token{ID: id.Marshal(), Password: token.Password, Kind: token.Kind}

	wanted := proto.ExtendedBlock{BlockPoolID: testBlock.BlockPoolID, BlockID: 31337}
	err = m.CheckAccess(forged, "alice", wanted, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrBadMac)
}

func TestTokenExpiryBoundary(t *testing.T) {
	m, mock := newTestMaster(t, 0)
	token, err := m.GenerateToken("alice", testBlock, proto.NewAccessModeSet(proto.AccessModeRead))
	require.NoError(t, err)

	// valid up to and including the stamped expiry instant
	mock.Add(testLifetime)
	require.NoError(t, m.CheckAccess(token, "alice", testBlock, proto.AccessModeRead))

	mock.Add(time.Millisecond)
	err = m.CheckAccess(token, "alice", testBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrExpiredToken)

	expired, err := m.IsTokenExpired(token)
	require.NoError(t, err)
	require.True(t, expired)
}

func TestRotationKeepsOldTokensVerifiable(t *testing.T) {
	m, mock := newTestMaster(t, 0)
	token, err := m.GenerateToken("alice", testBlock, proto.NewAccessModeSet(proto.AccessModeRead))
	require.NoError(t, err)
	oldKeyID, ok := m.CurrentKeyID()
	require.True(t, ok)

	mock.Add(testInterval)
	rotated, err := m.UpdateKeys()
	require.NoError(t, err)
	require.True(t, rotated)
	newKeyID, ok := m.CurrentKeyID()
	require.True(t, ok)
	require.NotEqual(t, oldKeyID, newKeyID)

	// the retiring key still verifies tokens it minted
	mock.Add(30 * time.Minute)
	require.NoError(t, m.CheckAccess(token, "alice", testBlock, proto.AccessModeRead))

	// until the token itself runs out
	mock.Add(time.Hour + time.Millisecond)
	err = m.CheckAccess(token, "alice", testBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrExpiredToken)
}

func TestExportImport(t *testing.T) {
	m, mock := newTestMaster(t, 0)
	token, err := m.GenerateToken("alice", testBlock, proto.NewAccessModeSet(proto.AccessModeRead, proto.AccessModeWrite))
	require.NoError(t, err)

	exported, err := m.ExportKeys()
	require.NoError(t, err)
	require.True(t, exported.Enabled)
	require.Equal(t, testInterval.Milliseconds(), exported.KeyUpdateIntervalMs)
	require.Equal(t, testLifetime.Milliseconds(), exported.TokenLifetimeMs)
	require.Len(t, exported.AllKeys, 2)

	slave := NewSlaveWithClock(testInterval, testLifetime, mock)
	require.False(t, slave.IsMaster())
	require.NoError(t, slave.AddKeys(exported))
	require.Equal(t, 2, slave.KeyCount())
	require.NoError(t, slave.CheckAccess(token, "alice", testBlock, proto.AccessModeWrite))

	// a re-import is idempotent
	require.NoError(t, slave.AddKeys(exported))
	require.Equal(t, 2, slave.KeyCount())
}

func TestSlaveWithoutKeys(t *testing.T) {
	m, mock := newTestMaster(t, 0)
	token, err := m.GenerateToken("alice", testBlock, proto.NewAccessModeSet(proto.AccessModeRead))
	require.NoError(t, err)

	slave := NewSlaveWithClock(testInterval, testLifetime, mock)
	err = slave.CheckAccess(token, "alice", testBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrUnknownKey)

	_, err = slave.CreatePassword(&proto.TokenIdentifier{UserID: "alice"})
	require.ErrorIs(t, err, proto.ErrNotInitialized)
}

func TestRoleViolations(t *testing.T) {
	m, mock := newTestMaster(t, 0)
	slave := NewSlaveWithClock(testInterval, testLifetime, mock)

	_, err := slave.UpdateKeys()
	require.ErrorIs(t, err, proto.ErrRoleViolation)
	_, err = slave.ExportKeys()
	require.ErrorIs(t, err, proto.ErrRoleViolation)

	exported, err := m.ExportKeys()
	require.NoError(t, err)
	err = m.AddKeys(exported)
	require.ErrorIs(t, err, proto.ErrRoleViolation)

	err = slave.AddKeys(nil)
	require.ErrorIs(t, err, proto.ErrParamError)
}

func TestBadNameNodeIndex(t *testing.T) {
	_, err := NewMasterWithClock(testInterval, testLifetime, 2, clock.NewMock())
	require.ErrorIs(t, err, proto.ErrParamError)
	_, err = NewMasterWithClock(testInterval, testLifetime, -1, clock.NewMock())
	require.ErrorIs(t, err, proto.ErrParamError)
}

func TestSerialPartitioning(t *testing.T) {
	m0, mock0 := newTestMaster(t, 0)
	m1, mock1 := newTestMaster(t, 1)
	require.Equal(t, 0, m0.NameNodeIndex())
	require.Equal(t, 1, m1.NameNodeIndex())

	seen := make(map[int32]int)
	collect := func(m *BlockTokenSecretManager, idx int) {
		cur, ok := m.CurrentKeyID()
		require.True(t, ok)
		next, ok := m.NextKeyID()
		require.True(t, ok)
		for _, keyID := range []int32{cur, next} {
			if idx == 0 {
				require.GreaterOrEqual(t, keyID, int32(0))
			} else {
				require.Less(t, keyID, int32(0))
			}
			if prev, dup := seen[keyID]; dup && prev != idx {
				t.Fatalf("keyId %d allocated by both masters", keyID)
			}
			seen[keyID] = idx
		}
	}
	collect(m0, 0)
	collect(m1, 1)
	for i := 0; i < 100; i++ {
		mock0.Add(testInterval)
		mock1.Add(testInterval)
		_, err := m0.UpdateKeys()
		require.NoError(t, err)
		_, err = m1.UpdateKeys()
		require.NoError(t, err)
		collect(m0, 0)
		collect(m1, 1)
	}
}

func TestSerialWraparound(t *testing.T) {
	m, _ := newTestMaster(t, 1)
	m.SetSerialNo(^uint32(0) >> 1) // all low bits set
	_, err := m.UpdateKeys()
	require.NoError(t, err)
	keyID, ok := m.NextKeyID()
	require.True(t, ok)
	require.Less(t, keyID, int32(0)) // wrap stays inside this master's half
}

func TestUnknownKey(t *testing.T) {
	m, _ := newTestMaster(t, 0)
	id := &proto.TokenIdentifier{
		ExpiryMs:    m.clk.Now().UnixMilli() + time.Hour.Milliseconds(),
		KeyID:       424242,
		UserID:      "alice",
		BlockPoolID: testBlock.BlockPoolID,
		BlockID:     testBlock.BlockID,
		Modes:       proto.NewAccessModeSet(proto.AccessModeRead),
	}
	forged := &proto.Token{ID: id.Marshal(), Password: []byte("bogus"), Kind: proto.TokenKind}
	err := m.CheckAccess(forged, "alice", testBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrUnknownKey)
}

func TestExpiredKeyEviction(t *testing.T) {
	m, mock := newTestMaster(t, 0)
	token, err := m.GenerateToken("alice", testBlock, proto.NewAccessModeSet(proto.AccessModeRead))
	require.NoError(t, err)
	firstKeyID, ok := m.CurrentKeyID()
	require.True(t, ok)

	mock.Add(testInterval)
	_, err = m.UpdateKeys()
	require.NoError(t, err)
	require.Equal(t, 3, m.KeyCount())

	// retired at t=1h with final expiry 1h + interval + lifetime = 4h;
	// the rotation after that moment sweeps it out
	mock.Add(3*time.Hour + time.Millisecond)
	_, err = m.UpdateKeys()
	require.NoError(t, err)
	require.Equal(t, 3, m.KeyCount())
	for _, key := range func() []int32 {
		cur, _ := m.CurrentKeyID()
		next, _ := m.NextKeyID()
		return []int32{cur, next}
	}() {
		require.NotEqual(t, firstKeyID, key)
	}

	// expired tokens fail on expiry, whether or not the key survives
	err = m.CheckAccess(token, "alice", testBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrExpiredToken)
}

func TestUpdateKeysIfElapsed(t *testing.T) {
	m, _ := newTestMaster(t, 0)
	before, _ := m.CurrentKeyID()

	rotated, err := m.UpdateKeysIfElapsed(testInterval)
	require.NoError(t, err)
	require.False(t, rotated)
	after, _ := m.CurrentKeyID()
	require.Equal(t, before, after)

	rotated, err = m.UpdateKeysIfElapsed(testInterval + time.Millisecond)
	require.NoError(t, err)
	require.True(t, rotated)
	after, _ = m.CurrentKeyID()
	require.NotEqual(t, before, after)
}

func TestSetTokenLifetime(t *testing.T) {
	m, mock := newTestMaster(t, 0)
	m.SetTokenLifetime(10 * time.Minute)
	require.Equal(t, 10*time.Minute, m.TokenLifetime())

	token, err := m.GenerateToken("alice", testBlock, proto.NewAccessModeSet(proto.AccessModeRead))
	require.NoError(t, err)
	mock.Add(10*time.Minute + time.Millisecond)
	err = m.CheckAccess(token, "alice", testBlock, proto.AccessModeRead)
	require.ErrorIs(t, err, proto.ErrExpiredToken)
}

func TestAddKeysSkipsNilSecrets(t *testing.T) {
	m, mock := newTestMaster(t, 0)
	exported, err := m.ExportKeys()
	require.NoError(t, err)
	exported.AllKeys = append(exported.AllKeys, proto.BlockKey{KeyID: 7, ExpiryMs: mock.Now().UnixMilli() + 1000})

	slave := NewSlaveWithClock(testInterval, testLifetime, mock)
	require.NoError(t, slave.AddKeys(exported))
	require.Equal(t, 2, slave.KeyCount())
}

func TestCheckAccessID(t *testing.T) {
	m, _ := newTestMaster(t, 0)
	id := &proto.TokenIdentifier{
		UserID:      "alice",
		BlockPoolID: testBlock.BlockPoolID,
		BlockID:     testBlock.BlockID,
		Modes:       proto.NewAccessModeSet(proto.AccessModeRead),
	}
	_, err := m.CreatePassword(id)
	require.NoError(t, err)
	require.NoError(t, m.CheckAccessID(id, "alice", testBlock, proto.AccessModeRead))
	err = m.CheckAccessID(id, "alice", testBlock, proto.AccessModeReplace)
	require.ErrorIs(t, err, proto.ErrModeDenied)
}
