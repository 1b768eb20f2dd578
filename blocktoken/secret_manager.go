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
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/util/cryptoutil"
	"github.com/cubefs/blockauth/util/errors"
	"github.com/cubefs/blockauth/util/log"
)

// BlockTokenSecretManager runs in one of two roles. A master generates
// block keys, mints tokens and exports key sets; a datanode-side slave only
// imports key sets. Both roles verify tokens. The role is fixed at
// construction.
//
// Key lifecycle on a master: the current key mints, the next key is
// pre-rotated, retired keys stay in the registry until their expiry so that
// tokens minted just before a rotation remain verifiable for a full token
// lifetime plus the window a datanode may need to observe the next export.

// serial numbers are partitioned by the high bit so the two masters of an
// HA pair can never mint colliding key ids.
const serialLowMask = ^uint32(0) >> 1

// SecretManager is the minimal capability a token-aware transport needs:
// build an identifier, mint its password, or re-derive the password for
// verification.
type SecretManager interface {
	CreateIdentifier() *proto.TokenIdentifier
	CreatePassword(id *proto.TokenIdentifier) ([]byte, error)
	RetrievePassword(id *proto.TokenIdentifier) ([]byte, error)
}

type BlockTokenSecretManager struct {
	mu       sync.Mutex
	isMaster bool
	nnIndex  int

	keyUpdateIntervalMs int64
	tokenLifetimeMs     int64 // atomic; readers tolerate a stale value for one mint

	serialNo   uint32
	currentKey *proto.BlockKey
	nextKey    *proto.BlockKey
	allKeys    map[int32]*proto.BlockKey

	clk clock.Clock
}

var _ SecretManager = (*BlockTokenSecretManager)(nil)

// NewMaster constructs a master-mode manager for one half of an HA pair.
// nnIndex must be 0 or 1; it selects the half of the serial-number space
// this master allocates key ids from.
func NewMaster(keyUpdateInterval, tokenLifetime time.Duration, nnIndex int) (*BlockTokenSecretManager, error) {
	return NewMasterWithClock(keyUpdateInterval, tokenLifetime, nnIndex, clock.New())
}

// NewMasterWithClock is NewMaster with an injected clock.
func NewMasterWithClock(keyUpdateInterval, tokenLifetime time.Duration, nnIndex int, clk clock.Clock) (*BlockTokenSecretManager, error) {
	if nnIndex != 0 && nnIndex != 1 {
		return nil, errors.Trace(proto.ErrParamError, "nnIndex must be 0 or 1, got %d", nnIndex)
	}
	m := newManager(true, keyUpdateInterval, tokenLifetime, clk)
	m.nnIndex = nnIndex
	seed, err := cryptoutil.GenSeed()
	if err != nil {
		return nil, errors.Trace(err, "seed serial number")
	}
	m.setSerialNo(seed)
	if err = m.generateKeys(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewSlave constructs a slave-mode manager. Its registry stays empty until
// the first successful AddKeys.
func NewSlave(keyUpdateInterval, tokenLifetime time.Duration) *BlockTokenSecretManager {
	return NewSlaveWithClock(keyUpdateInterval, tokenLifetime, clock.New())
}

// NewSlaveWithClock is NewSlave with an injected clock.
func NewSlaveWithClock(keyUpdateInterval, tokenLifetime time.Duration, clk clock.Clock) *BlockTokenSecretManager {
	return newManager(false, keyUpdateInterval, tokenLifetime, clk)
}

func newManager(isMaster bool, keyUpdateInterval, tokenLifetime time.Duration, clk clock.Clock) *BlockTokenSecretManager {
	return &BlockTokenSecretManager{
		isMaster:            isMaster,
		keyUpdateIntervalMs: keyUpdateInterval.Milliseconds(),
		tokenLifetimeMs:     tokenLifetime.Milliseconds(),
		allKeys:             make(map[int32]*proto.BlockKey),
		clk:                 clk,
	}
}

func (m *BlockTokenSecretManager) nowMs() int64 {
	return m.clk.Now().UnixMilli()
}

// setSerialNo keeps the low 31 bits of sn and forces the high bit from
// nnIndex. Arithmetic runs over uint32 and converts to int32 at the edges.
func (m *BlockTokenSecretManager) setSerialNo(sn uint32) {
	m.serialNo = (sn & serialLowMask) | uint32(m.nnIndex)<<31
}

// SetSerialNo overrides the serial counter, for tests.
func (m *BlockTokenSecretManager) SetSerialNo(sn uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setSerialNo(sn)
}

func (m *BlockTokenSecretManager) nextKeyID() (int32, error) {
	m.setSerialNo(m.serialNo + 1)
	return int32(m.serialNo), nil
}

func (m *BlockTokenSecretManager) newBlockKey(expiryMs int64) (*proto.BlockKey, error) {
	keyID, err := m.nextKeyID()
	if err != nil {
		return nil, err
	}
	secret, err := cryptoutil.GenSecret()
	if err != nil {
		return nil, errors.Trace(err, "generate block key secret")
	}
	return &proto.BlockKey{KeyID: keyID, ExpiryMs: expiryMs, Secret: secret}, nil
}

// generateKeys seeds the initial current/next pair. The estimated expiries
// let datanodes still age these keys out if the master crashes before its
// first rotation: current lives now + 2*interval + lifetime, next one
// interval longer.
func (m *BlockTokenSecretManager) generateKeys() (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowMs()
	if m.currentKey, err = m.newBlockKey(now + 2*m.keyUpdateIntervalMs + m.lifetimeMs()); err != nil {
		return
	}
	if m.nextKey, err = m.newBlockKey(now + 3*m.keyUpdateIntervalMs + m.lifetimeMs()); err != nil {
		return
	}
	m.allKeys[m.currentKey.KeyID] = m.currentKey
	m.allKeys[m.nextKey.KeyID] = m.nextKey
	return nil
}

func (m *BlockTokenSecretManager) lifetimeMs() int64 {
	return atomic.LoadInt64(&m.tokenLifetimeMs)
}

// SetTokenLifetime updates the lifetime applied to newly minted tokens.
// Concurrent minters may observe the previous value once.
func (m *BlockTokenSecretManager) SetTokenLifetime(lifetime time.Duration) {
	atomic.StoreInt64(&m.tokenLifetimeMs, lifetime.Milliseconds())
}

// TokenLifetime returns the lifetime applied to newly minted tokens.
func (m *BlockTokenSecretManager) TokenLifetime() time.Duration {
	return time.Duration(m.lifetimeMs()) * time.Millisecond
}

// KeyUpdateInterval returns the nominal rotation period.
func (m *BlockTokenSecretManager) KeyUpdateInterval() time.Duration {
	return time.Duration(m.keyUpdateIntervalMs) * time.Millisecond
}

// IsMaster reports the fixed role.
func (m *BlockTokenSecretManager) IsMaster() bool {
	return m.isMaster
}

// NameNodeIndex reports the HA index a master was constructed with.
func (m *BlockTokenSecretManager) NameNodeIndex() int {
	return m.nnIndex
}

// KeyCount returns the number of live keys in the registry.
func (m *BlockTokenSecretManager) KeyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.allKeys)
}

// CurrentKeyID returns the minting key id, ok=false before initialization.
func (m *BlockTokenSecretManager) CurrentKeyID() (keyID int32, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentKey == nil {
		return 0, false
	}
	return m.currentKey.KeyID, true
}

// NextKeyID returns the pre-rotated key id, ok=false on a slave.
func (m *BlockTokenSecretManager) NextKeyID() (keyID int32, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nextKey == nil {
		return 0, false
	}
	return m.nextKey.KeyID, true
}

// caller must hold m.mu
func (m *BlockTokenSecretManager) removeExpiredKeys() {
	now := m.nowMs()
	for keyID, key := range m.allKeys {
		if key.ExpiryMs < now {
			delete(m.allKeys, keyID)
		}
	}
}

// UpdateKeys rotates the registry: the retiring current key gets its final
// expiry, next is promoted with a refreshed expiry, and a fresh next key is
// generated. Master only.
func (m *BlockTokenSecretManager) UpdateKeys() (bool, error) {
	if !m.isMaster {
		return false, errors.Trace(proto.ErrRoleViolation, "updateKeys on slave")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log.LogInfof("action[UpdateKeys] updating block keys")
	m.removeExpiredKeys()
	now := m.nowMs()
	// final expiry of the retiring current key: the last moment a token it
	// minted may still need verification on a lagging datanode
	m.allKeys[m.currentKey.KeyID] = &proto.BlockKey{
		KeyID:    m.currentKey.KeyID,
		ExpiryMs: now + m.keyUpdateIntervalMs + m.lifetimeMs(),
		Secret:   m.currentKey.Secret,
	}
	m.currentKey = &proto.BlockKey{
		KeyID:    m.nextKey.KeyID,
		ExpiryMs: now + 2*m.keyUpdateIntervalMs + m.lifetimeMs(),
		Secret:   m.nextKey.Secret,
	}
	m.allKeys[m.currentKey.KeyID] = m.currentKey
	next, err := m.newBlockKey(now + 3*m.keyUpdateIntervalMs + m.lifetimeMs())
	if err != nil {
		return false, err
	}
	m.nextKey = next
	m.allKeys[m.nextKey.KeyID] = m.nextKey
	return true, nil
}

// UpdateKeysIfElapsed rotates only when the elapsed duration since the last
// rotation exceeds the update interval. The argument is elapsed time, not
// an absolute timestamp.
func (m *BlockTokenSecretManager) UpdateKeysIfElapsed(elapsed time.Duration) (bool, error) {
	if elapsed.Milliseconds() > m.keyUpdateIntervalMs {
		return m.UpdateKeys()
	}
	return false, nil
}

// ExportKeys snapshots the live key set for publication. Master only. The
// snapshot is a value copy; callers may ship it without holding any lock.
func (m *BlockTokenSecretManager) ExportKeys() (*proto.ExportedBlockKeys, error) {
	if !m.isMaster {
		return nil, errors.Trace(proto.ErrRoleViolation, "exportKeys on slave")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log.LogDebugf("action[ExportKeys] exporting %d block keys", len(m.allKeys))
	exported := &proto.ExportedBlockKeys{
		Enabled:             true,
		KeyUpdateIntervalMs: m.keyUpdateIntervalMs,
		TokenLifetimeMs:     m.lifetimeMs(),
		CurrentKey:          *m.currentKey,
		AllKeys:             make([]proto.BlockKey, 0, len(m.allKeys)),
	}
	for _, key := range m.allKeys {
		exported.AllKeys = append(exported.AllKeys, *key)
	}
	return exported, nil
}

// AddKeys imports an exported key set. Slave only. The master's view is
// authoritative: its current key replaces ours unconditionally and every
// received key overwrites on key-id collision. A slave fed by both masters
// of an HA pair holds both key streams; the disjoint id spaces keep the
// registry unambiguous.
func (m *BlockTokenSecretManager) AddKeys(exported *proto.ExportedBlockKeys) error {
	if m.isMaster {
		return errors.Trace(proto.ErrRoleViolation, "addKeys on master")
	}
	if exported == nil {
		return errors.Trace(proto.ErrParamError, "nil exported keys")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	log.LogInfof("action[AddKeys] setting %d block keys, current keyId=%d",
		len(exported.AllKeys), exported.CurrentKey.KeyID)
	m.removeExpiredKeys()
	current := exported.CurrentKey
	m.currentKey = &current
	for i := range exported.AllKeys {
		key := exported.AllKeys[i]
		if key.Secret == nil {
			continue
		}
		m.allKeys[key.KeyID] = &key
	}
	return nil
}

// CreateIdentifier returns an empty identifier for deserialization.
func (m *BlockTokenSecretManager) CreateIdentifier() *proto.TokenIdentifier {
	return &proto.TokenIdentifier{}
}

// CreatePassword stamps id with the current key and token expiry, then
// mints its password. A slave never mints, even after importing keys.
func (m *BlockTokenSecretManager) CreatePassword(id *proto.TokenIdentifier) ([]byte, error) {
	m.mu.Lock()
	key := m.currentKey
	m.mu.Unlock()
	if key == nil || !m.isMaster {
		return nil, errors.Trace(proto.ErrNotInitialized, "mint %s", id)
	}
	id.ExpiryMs = m.nowMs() + m.lifetimeMs()
	id.KeyID = key.KeyID
	log.LogDebugf("action[CreatePassword] generating block token for %s", id)
	return cryptoutil.HmacSha1(key.Secret, id.Marshal()), nil
}

// RetrievePassword re-derives the password for a verified-structure
// identifier, resolving the minting key through the registry.
func (m *BlockTokenSecretManager) RetrievePassword(id *proto.TokenIdentifier) ([]byte, error) {
	if m.isExpired(id.ExpiryMs) {
		return nil, errors.Trace(proto.ErrExpiredToken, "%s", id)
	}
	m.mu.Lock()
	key, exist := m.allKeys[id.KeyID]
	m.mu.Unlock()
	if !exist {
		return nil, errors.Trace(proto.ErrUnknownKey, "can't re-compute password for %s, keyId=%d no longer exists", id, id.KeyID)
	}
	return cryptoutil.HmacSha1(key.Secret, id.Marshal()), nil
}

// GenerateToken mints a token binding userID, the block and the mode set to
// the configured lifetime. userID may be empty.
func (m *BlockTokenSecretManager) GenerateToken(userID string, block proto.ExtendedBlock, modes proto.AccessModeSet) (*proto.Token, error) {
	if modes.Empty() {
		return nil, errors.Trace(proto.ErrParamError, "empty access mode set")
	}
	id := &proto.TokenIdentifier{
		UserID:      userID,
		BlockPoolID: block.BlockPoolID,
		BlockID:     block.BlockID,
		Modes:       modes,
	}
	password, err := m.CreatePassword(id)
	if err != nil {
		return nil, err
	}
	return &proto.Token{
		ID:       id.Marshal(),
		Password: password,
		Kind:     proto.TokenKind,
	}, nil
}

func (m *BlockTokenSecretManager) isExpired(expiryMs int64) bool {
	return m.nowMs() > expiryMs
}

// CheckAccessID runs the structural checks only. Use it when the token
// password has already been verified, e.g. by the RPC layer. expectedUser
// is not checked when empty.
func (m *BlockTokenSecretManager) CheckAccessID(id *proto.TokenIdentifier, expectedUser string, block proto.ExtendedBlock, mode proto.AccessMode) error {
	log.LogDebugf("action[CheckAccessID] user=%s block=%s mode=%s using %s", expectedUser, block, mode, id)
	if expectedUser != "" && expectedUser != id.UserID {
		return errors.Trace(proto.ErrUserMismatch, "%s doesn't belong to user %s", id, expectedUser)
	}
	if id.BlockPoolID != block.BlockPoolID {
		return errors.Trace(proto.ErrBlockMismatch, "%s doesn't apply to block %s", id, block)
	}
	if id.BlockID != block.BlockID {
		return errors.Trace(proto.ErrBlockMismatch, "%s doesn't apply to block %s", id, block)
	}
	if m.isExpired(id.ExpiryMs) {
		return errors.Trace(proto.ErrExpiredToken, "%s", id)
	}
	if !id.Modes.Contains(mode) {
		return errors.Trace(proto.ErrModeDenied, "%s doesn't have %s permission", id, mode)
	}
	return nil
}

// CheckAccess verifies a full token: structural checks first, then the MAC
// recomputation against the registry key, compared in constant time.
// Structural failures surface before cryptographic ones.
func (m *BlockTokenSecretManager) CheckAccess(token *proto.Token, expectedUser string, block proto.ExtendedBlock, mode proto.AccessMode) error {
	id := m.CreateIdentifier()
	if err := id.Unmarshal(token.ID); err != nil {
		return errors.Trace(proto.ErrMalformedToken, "user=%s block=%s mode=%s", expectedUser, block, mode)
	}
	if err := m.CheckAccessID(id, expectedUser, block, mode); err != nil {
		return err
	}
	password, err := m.RetrievePassword(id)
	if err != nil {
		return err
	}
	if !cryptoutil.HmacEqual(password, token.Password) {
		return errors.Trace(proto.ErrBadMac, "%s doesn't have the correct token password", id)
	}
	return nil
}

// IsTokenExpired probes only the leading expiry field of the identifier.
func (m *BlockTokenSecretManager) IsTokenExpired(token *proto.Token) (bool, error) {
	expiryMs, err := proto.TokenExpiry(token.ID)
	if err != nil {
		return false, err
	}
	return m.isExpired(expiryMs), nil
}
