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
	"fmt"
	"strings"

	"github.com/cubefs/blockauth/util/errors"
)

// AccessMode is the semantic operation a block token permits on a block.
type AccessMode uint8

const (
	AccessModeRead AccessMode = iota
	AccessModeWrite
	AccessModeCopy
	AccessModeReplace
	accessModeCount
)

var accessModeNames = [accessModeCount]string{
	"READ",
	"WRITE",
	"COPY",
	"REPLACE",
}

func (m AccessMode) String() string {
	if m < accessModeCount {
		return accessModeNames[m]
	}
	return fmt.Sprintf("UNKNOWN(%d)", m)
}

// ParseAccessMode resolves a wire name back to its mode.
func ParseAccessMode(name string) (AccessMode, error) {
	for i, n := range accessModeNames {
		if n == name {
			return AccessMode(i), nil
		}
	}
	return 0, errors.NewErrorf("invalid access mode [%s]", name)
}

// AccessModeSet is a subset of the four access modes. The zero value is
// empty; a token identifier must carry a non-empty set.
type AccessModeSet uint8

func NewAccessModeSet(modes ...AccessMode) AccessModeSet {
	var s AccessModeSet
	for _, m := range modes {
		s = s.Add(m)
	}
	return s
}

func (s AccessModeSet) Add(m AccessMode) AccessModeSet {
	return s | 1<<m
}

func (s AccessModeSet) Contains(m AccessMode) bool {
	return s&(1<<m) != 0
}

func (s AccessModeSet) Empty() bool {
	return s == 0
}

func (s AccessModeSet) Len() int {
	n := 0
	for m := AccessMode(0); m < accessModeCount; m++ {
		if s.Contains(m) {
			n++
		}
	}
	return n
}

// Modes returns the members in declaration order.
func (s AccessModeSet) Modes() []AccessMode {
	modes := make([]AccessMode, 0, s.Len())
	for m := AccessMode(0); m < accessModeCount; m++ {
		if s.Contains(m) {
			modes = append(modes, m)
		}
	}
	return modes
}

func (s AccessModeSet) String() string {
	names := make([]string, 0, s.Len())
	for _, m := range s.Modes() {
		names = append(names, m.String())
	}
	return strings.Join(names, ",")
}

// ParseAccessModeSet parses a comma separated mode list, e.g. "READ,WRITE".
func ParseAccessModeSet(str string) (AccessModeSet, error) {
	var s AccessModeSet
	for _, p := range strings.Split(str, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		m, err := ParseAccessMode(p)
		if err != nil {
			return 0, err
		}
		s = s.Add(m)
	}
	if s.Empty() {
		return 0, errors.NewErrorf("empty access mode set [%s]", str)
	}
	return s, nil
}
