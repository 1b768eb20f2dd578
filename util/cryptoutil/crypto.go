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

package cryptoutil

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"io"
)

// SecretSize is the HMAC-SHA1 native key and tag size in bytes. Deployed
// clients expect 20-byte tags; changing the algorithm must be coordinated
// across every master and datanode.
const SecretSize = sha1.Size

// GenSecret returns a fresh random secret of the MAC's native size.
func GenSecret() ([]byte, error) {
	secret := make([]byte, SecretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// GenSeed returns a random 32-bit seed for serial-number allocation.
func GenSeed() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// HmacSha1 computes the keyed tag over data.
func HmacSha1(secret, data []byte) []byte {
	h := hmac.New(sha1.New, secret)
	h.Write(data)
	return h.Sum(nil)
}

// HmacEqual compares two tags in constant time.
func HmacEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
