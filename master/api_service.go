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
	"strconv"
	"time"

	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/util/errors"
	"github.com/cubefs/blockauth/util/log"
)

func extractBlockParams(r *http.Request) (user, pool string, block int64, err error) {
	if user = r.FormValue(proto.ParamUser); user == "" {
		err = errors.NewErrorf("param %v is required", proto.ParamUser)
		return
	}
	if pool = r.FormValue(proto.ParamPool); pool == "" {
		err = errors.NewErrorf("param %v is required", proto.ParamPool)
		return
	}
	blockStr := r.FormValue(proto.ParamBlock)
	if blockStr == "" {
		err = errors.NewErrorf("param %v is required", proto.ParamBlock)
		return
	}
	if block, err = strconv.ParseInt(blockStr, 10, 64); err != nil {
		err = errors.NewErrorf("param %v is not a block id: %v", proto.ParamBlock, err)
	}
	return
}

func extractLifetime(r *http.Request) (time.Duration, error) {
	lifetimeStr := r.FormValue(proto.ParamLifetime)
	if lifetimeStr == "" {
		return 0, errors.NewErrorf("param %v is required", proto.ParamLifetime)
	}
	minutes, err := strconv.ParseInt(lifetimeStr, 10, 64)
	if err != nil {
		return 0, errors.NewErrorf("param %v is not a duration in minutes: %v", proto.ParamLifetime, err)
	}
	if minutes <= 0 {
		return 0, errors.NewErrorf("param %v must be positive", proto.ParamLifetime)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// handleTokenGenerate mints a block token for (user, pool, block, modes).
func (m *Server) handleTokenGenerate(w http.ResponseWriter, r *http.Request) {
	user, pool, block, err := extractBlockParams(r)
	if err != nil {
		sendErrReply(w, r, &proto.HTTPReply{Code: proto.ErrCodeParamError, Msg: err.Error()})
		return
	}
	modes, err := proto.ParseAccessModeSet(r.FormValue(proto.ParamModes))
	if err != nil {
		sendErrReply(w, r, &proto.HTTPReply{Code: proto.ErrCodeParamError, Msg: err.Error()})
		return
	}
	token, err := m.manager.GenerateToken(user, proto.ExtendedBlock{BlockPoolID: pool, BlockID: block}, modes)
	if err != nil {
		sendErrReply(w, r, newErrHTTPReply(err))
		return
	}
	id := m.manager.CreateIdentifier()
	if err = id.Unmarshal(token.ID); err != nil {
		sendErrReply(w, r, newErrHTTPReply(err))
		return
	}
	m.tokenMintCounter.Add(1)
	log.LogInfof("action[handleTokenGenerate] minted token %v", id)
	sendOkReply(w, r, newSuccessHTTPReply(&proto.TokenView{
		Token:      base64.StdEncoding.EncodeToString(token.Marshal()),
		Identifier: *id,
	}))
}

// handleKeyExport publishes the live key set as a base64 binary envelope.
func (m *Server) handleKeyExport(w http.ResponseWriter, r *http.Request) {
	exported, err := m.manager.ExportKeys()
	if err != nil {
		sendErrReply(w, r, newErrHTTPReply(err))
		return
	}
	sendOkReply(w, r, newSuccessHTTPReply(&proto.KeysView{
		Keys: base64.StdEncoding.EncodeToString(exported.Marshal()),
	}))
}

// handleUpdateKeys forces a rotation outside the scheduler.
func (m *Server) handleUpdateKeys(w http.ResponseWriter, r *http.Request) {
	rotated, err := m.manager.UpdateKeys()
	if err != nil {
		sendErrReply(w, r, newErrHTTPReply(err))
		return
	}
	if rotated {
		m.rotationCounter.Add(1)
		m.keyCountGauge.Set(int64(m.manager.KeyCount()))
	}
	sendOkReply(w, r, newSuccessHTTPReply("update keys successfully"))
}

// handleSetTokenLifetime updates the token lifetime of future mints. The
// change is volatile and lost on restart.
func (m *Server) handleSetTokenLifetime(w http.ResponseWriter, r *http.Request) {
	lifetime, err := extractLifetime(r)
	if err != nil {
		sendErrReply(w, r, &proto.HTTPReply{Code: proto.ErrCodeParamError, Msg: err.Error()})
		return
	}
	m.manager.SetTokenLifetime(lifetime)
	log.LogInfof("action[handleSetTokenLifetime] token lifetime set to %v", lifetime)
	sendOkReply(w, r, newSuccessHTTPReply("set token lifetime successfully"))
}

func (m *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	currentID, _ := m.manager.CurrentKeyID()
	nextID, _ := m.manager.NextKeyID()
	sendOkReply(w, r, newSuccessHTTPReply(&proto.MasterStatus{
		Cluster:             m.clusterName,
		Role:                proto.RoleMaster,
		NameNodeIndex:       m.nnIndex,
		CurrentKeyID:        currentID,
		NextKeyID:           nextID,
		KeyCount:            m.manager.KeyCount(),
		KeyUpdateIntervalMs: m.manager.KeyUpdateInterval().Milliseconds(),
		TokenLifetimeMs:     m.manager.TokenLifetime().Milliseconds(),
	}))
}

func newSuccessHTTPReply(data interface{}) *proto.HTTPReply {
	return &proto.HTTPReply{Code: proto.ErrCodeSuccess, Msg: proto.ErrSuc.Error(), Data: data}
}

func newErrHTTPReply(err error) *proto.HTTPReply {
	if err == nil {
		return newSuccessHTTPReply("")
	}
	return &proto.HTTPReply{Code: proto.ParseErrorCode(err), Msg: err.Error()}
}

func sendOkReply(w http.ResponseWriter, r *http.Request, httpReply *proto.HTTPReply) {
	reply, err := json.Marshal(httpReply)
	if err != nil {
		log.LogErrorf("fail to marshal http reply[%v]. URL[%v],remoteAddr[%v] err:[%v]", httpReply, r.URL, r.RemoteAddr, err)
		http.Error(w, "fail to marshal http reply", http.StatusBadRequest)
		return
	}
	send(w, r, reply)
}

func send(w http.ResponseWriter, r *http.Request, reply []byte) {
	w.Header().Set("content-type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(reply)))
	if _, err := w.Write(reply); err != nil {
		log.LogErrorf("fail to write http reply[%s] len[%d].URL[%v],remoteAddr[%v] err:[%v]", string(reply), len(reply), r.URL, r.RemoteAddr, err)
		return
	}
	log.LogDebugf("URL[%v],remoteAddr[%v],response ok", r.URL, r.RemoteAddr)
}

func sendErrReply(w http.ResponseWriter, r *http.Request, httpReply *proto.HTTPReply) {
	log.LogInfof("URL[%v],remoteAddr[%v],response err[%v]", r.URL, r.RemoteAddr, httpReply)
	reply, err := json.Marshal(httpReply)
	if err != nil {
		log.LogErrorf("fail to marshal http reply[%v]. URL[%v],remoteAddr[%v] err:[%v]", httpReply, r.URL, r.RemoteAddr, err)
		http.Error(w, "fail to marshal http reply", http.StatusBadRequest)
		return
	}
	send(w, r, reply)
}
