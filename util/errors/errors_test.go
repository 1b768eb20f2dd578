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

package errors

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTraceChain(t *testing.T) {
	root := New("root cause")
	mid := Trace(root, "mid layer, id=%d", 7)
	top := Trace(mid, "top layer")

	require.True(t, Is(top, root))
	require.Equal(t, root, Cause(top))
	require.Contains(t, top.Error(), "root cause")
	require.Contains(t, top.Error(), "mid layer, id=7")

	require.Contains(t, Stack(top), "errors_test.go")

	require.NoError(t, Trace(nil, "ignored"))
	require.NoError(t, NewError(nil))
}

func TestNewErrorf(t *testing.T) {
	err := NewErrorf("bad value [%v]", 42)
	require.Contains(t, err.Error(), "bad value [42]")
	require.Contains(t, err.Error(), "errors_test.go")
	require.Equal(t, err, Cause(err))
}
