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

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigString(t *testing.T) {
	cfg := LoadConfigString(`
{
  # role of this process
  "role": "master",
  "listen": "17010",
  "nnIndex": 1,
  "keyUpdateInterval": "600",
  "masterAddr": ["127.0.0.1:17010", "127.0.0.1:17011"],
  "exporterPort": 9510,
  "comment": "a # inside quotes survives"
}
`)
	require.Equal(t, "master", cfg.GetString("role"))
	require.Equal(t, "17010", cfg.GetString("listen"))
	require.Equal(t, int64(1), cfg.GetInt64("nnIndex"))
	require.Equal(t, int64(600), cfg.GetInt64("keyUpdateInterval"))
	require.Equal(t, []string{"127.0.0.1:17010", "127.0.0.1:17011"}, cfg.GetStringSlice("masterAddr"))
	require.Equal(t, int64(9510), cfg.GetInt64("exporterPort"))
	require.Equal(t, "a # inside quotes survives", cfg.GetString("comment"))

	require.Equal(t, "", cfg.GetString("missing"))
	require.Equal(t, int64(0), cfg.GetInt64("missing"))
	require.Empty(t, cfg.GetStringSlice("missing"))
}

func TestCheckOrStoreConstCfg(t *testing.T) {
	dir := t.TempDir()
	cfg := &ConstConfig{Listen: "17010", NameNodeIndex: 0}

	ok, err := CheckOrStoreConstCfg(dir, DefaultConstConfigFile, cfg)
	require.NoError(t, err)
	require.True(t, ok)

	// same settings pass on restart
	ok, err = CheckOrStoreConstCfg(dir, DefaultConstConfigFile, cfg)
	require.NoError(t, err)
	require.True(t, ok)

	// a flipped name node index is rejected
	flipped := &ConstConfig{Listen: "17010", NameNodeIndex: 1}
	_, err = CheckOrStoreConstCfg(dir, DefaultConstConfigFile, flipped)
	require.Error(t, err)

	moved := &ConstConfig{Listen: "17011", NameNodeIndex: 0}
	_, err = CheckOrStoreConstCfg(dir, DefaultConstConfigFile, moved)
	require.Error(t, err)
}
