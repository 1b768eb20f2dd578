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

package master

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/cubefs/blockauth/blocktoken"
	"github.com/cubefs/blockauth/proto"
)

func newTestServer(t *testing.T) *Server {
	manager, err := blocktoken.NewMasterWithClock(time.Hour, 2*time.Hour, 0, clock.NewMock())
	require.NoError(t, err)
	return &Server{
		clusterName:       "blockauth-test",
		nnIndex:           0,
		keyUpdateInterval: time.Hour,
		tokenLifetime:     2 * time.Hour,
		manager:           manager,
	}
}

func doRequest(t *testing.T, handler http.HandlerFunc, path string, params map[string]string) (int32, json.RawMessage) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	r := httptest.NewRequest(http.MethodGet, path+"?"+query.Encode(), nil)
	w := httptest.NewRecorder()
	handler(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	reply := &struct {
		Code int32           `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), reply))
	return reply.Code, reply.Data
}

func TestHandleTokenGenerate(t *testing.T) {
	m := newTestServer(t)
	code, data := doRequest(t, m.handleTokenGenerate, proto.TokenGenerate, map[string]string{
		proto.ParamUser:  "alice",
		proto.ParamPool:  "BP-2023",
		proto.ParamBlock: "1001",
		proto.ParamModes: "READ,WRITE",
	})
	require.EqualValues(t, proto.ErrCodeSuccess, code)

	view := &proto.TokenView{}
	require.NoError(t, json.Unmarshal(data, view))
	require.Equal(t, "alice", view.Identifier.UserID)
	require.Equal(t, int64(1001), view.Identifier.BlockID)

	raw, err := base64.StdEncoding.DecodeString(view.Token)
	require.NoError(t, err)
	token := &proto.Token{}
	require.NoError(t, token.Unmarshal(raw))
	block := proto.ExtendedBlock{BlockPoolID: "BP-2023", BlockID: 1001}
	require.NoError(t, m.manager.CheckAccess(token, "alice", block, proto.AccessModeWrite))
}

func TestHandleTokenGenerateParamErrors(t *testing.T) {
	m := newTestServer(t)
	for name, params := range map[string]map[string]string{
		"missing user": {proto.ParamPool: "BP-2023", proto.ParamBlock: "1", proto.ParamModes: "READ"},
		"missing pool": {proto.ParamUser: "alice", proto.ParamBlock: "1", proto.ParamModes: "READ"},
		"bad block":    {proto.ParamUser: "alice", proto.ParamPool: "BP-2023", proto.ParamBlock: "xyz", proto.ParamModes: "READ"},
		"bad modes":    {proto.ParamUser: "alice", proto.ParamPool: "BP-2023", proto.ParamBlock: "1", proto.ParamModes: "DESTROY"},
		"empty modes":  {proto.ParamUser: "alice", proto.ParamPool: "BP-2023", proto.ParamBlock: "1"},
	} {
		code, _ := doRequest(t, m.handleTokenGenerate, proto.TokenGenerate, params)
		require.EqualValues(t, proto.ErrCodeParamError, code, name)
	}
}

func TestHandleKeyExport(t *testing.T) {
	m := newTestServer(t)
	code, data := doRequest(t, m.handleKeyExport, proto.KeyExport, nil)
	require.EqualValues(t, proto.ErrCodeSuccess, code)

	view := &proto.KeysView{}
	require.NoError(t, json.Unmarshal(data, view))
	raw, err := base64.StdEncoding.DecodeString(view.Keys)
	require.NoError(t, err)
	exported := &proto.ExportedBlockKeys{}
	require.NoError(t, exported.Unmarshal(raw))
	require.Len(t, exported.AllKeys, 2)

	// a slave fed the export verifies master-minted tokens
	slave := blocktoken.NewSlaveWithClock(time.Hour, 2*time.Hour, clock.NewMock())
	require.NoError(t, slave.AddKeys(exported))
	block := proto.ExtendedBlock{BlockPoolID: "BP-2023", BlockID: 7}
	token, err := m.manager.GenerateToken("bob", block, proto.NewAccessModeSet(proto.AccessModeRead))
	require.NoError(t, err)
	require.NoError(t, slave.CheckAccess(token, "bob", block, proto.AccessModeRead))
}

func TestHandleUpdateKeys(t *testing.T) {
	m := newTestServer(t)
	before, ok := m.manager.CurrentKeyID()
	require.True(t, ok)
	code, _ := doRequest(t, m.handleUpdateKeys, proto.AdminUpdateKeys, nil)
	require.EqualValues(t, proto.ErrCodeSuccess, code)
	after, ok := m.manager.CurrentKeyID()
	require.True(t, ok)
	require.NotEqual(t, before, after)
}

func TestHandleSetTokenLifetime(t *testing.T) {
	m := newTestServer(t)
	code, _ := doRequest(t, m.handleSetTokenLifetime, proto.AdminSetTokenLifetime, map[string]string{
		proto.ParamLifetime: "30",
	})
	require.EqualValues(t, proto.ErrCodeSuccess, code)
	require.Equal(t, 30*time.Minute, m.manager.TokenLifetime())

	for _, lifetime := range []string{"", "abc", "0", "-5"} {
		code, _ = doRequest(t, m.handleSetTokenLifetime, proto.AdminSetTokenLifetime, map[string]string{
			proto.ParamLifetime: lifetime,
		})
		require.EqualValues(t, proto.ErrCodeParamError, code, "lifetime %q", lifetime)
	}
}

func TestHandleStatus(t *testing.T) {
	m := newTestServer(t)
	code, data := doRequest(t, m.handleStatus, proto.AdminStatus, nil)
	require.EqualValues(t, proto.ErrCodeSuccess, code)

	status := &proto.MasterStatus{}
	require.NoError(t, json.Unmarshal(data, status))
	require.Equal(t, "blockauth-test", status.Cluster)
	require.Equal(t, proto.RoleMaster, status.Role)
	require.Equal(t, 2, status.KeyCount)
	require.Equal(t, time.Hour.Milliseconds(), status.KeyUpdateIntervalMs)
	require.NotEqual(t, status.CurrentKeyID, status.NextKeyID)
}
