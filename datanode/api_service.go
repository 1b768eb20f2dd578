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

package datanode

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/util/config"
	"github.com/cubefs/blockauth/util/errors"
	"github.com/cubefs/blockauth/util/exporter"
	"github.com/cubefs/blockauth/util/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// maxTokenBodyLen bounds the token envelope a client may post.
const maxTokenBodyLen = 1 << 20

func (s *Server) startHTTPService(modulename string, cfg *config.Config) {
	router := mux.NewRouter().SkipClean(true)
	router.NewRoute().Methods(http.MethodPost).
		Path(proto.AccessCheck).
		HandlerFunc(s.handleAccessCheck)
	router.NewRoute().Methods(http.MethodGet).
		Path(proto.AdminStatus).
		HandlerFunc(s.handleStatus)
	registerAPIMiddleware(router)
	exporter.InitWithRouter(s.clusterName, modulename, cfg, router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.listen),
		Handler: router,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogErrorf("serveAPI: serve http server failed: err(%v)", err)
		}
	}()
	s.apiServer = server
}

func registerAPIMiddleware(router *mux.Router) {
	var interceptor mux.MiddlewareFunc = func(next http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				reqID := uuid.New().String()
				w.Header().Set("X-Request-Id", reqID)
				log.LogDebugf("action[interceptor] request[%v] method[%v] path[%v] query[%v]",
					reqID, r.Method, r.URL.Path, r.URL.Query())
				next.ServeHTTP(w, r)
			})
	}
	router.Use(interceptor)
}

// handleAccessCheck verifies the posted token envelope against the expected
// (user, pool, block, mode). The reply code names the rejection kind so the
// transport can distinguish a stale token from a forged one.
func (s *Server) handleAccessCheck(w http.ResponseWriter, r *http.Request) {
	user := r.FormValue(proto.ParamUser)
	pool := r.FormValue(proto.ParamPool)
	blockStr := r.FormValue(proto.ParamBlock)
	modeStr := r.FormValue(proto.ParamMode)
	if pool == "" || blockStr == "" || modeStr == "" {
		sendErrReply(w, r, &proto.HTTPReply{Code: proto.ErrCodeParamError,
			Msg: fmt.Sprintf("params %v, %v and %v are required", proto.ParamPool, proto.ParamBlock, proto.ParamMode)})
		return
	}
	block, err := strconv.ParseInt(blockStr, 10, 64)
	if err != nil {
		sendErrReply(w, r, &proto.HTTPReply{Code: proto.ErrCodeParamError,
			Msg: fmt.Sprintf("param %v is not a block id: %v", proto.ParamBlock, err)})
		return
	}
	mode, err := proto.ParseAccessMode(modeStr)
	if err != nil {
		sendErrReply(w, r, &proto.HTTPReply{Code: proto.ErrCodeParamError, Msg: err.Error()})
		return
	}
	body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxTokenBodyLen))
	if err != nil {
		sendErrReply(w, r, &proto.HTTPReply{Code: proto.ErrCodeParamError,
			Msg: fmt.Sprintf("read token body: %v", err)})
		return
	}
	token := &proto.Token{}
	if err = token.Unmarshal(body); err != nil {
		s.rejectToken(w, r, errors.Trace(proto.ErrMalformedToken, "unmarshal token envelope"))
		return
	}
	err = s.manager.CheckAccess(token, user, proto.ExtendedBlock{BlockPoolID: pool, BlockID: block}, mode)
	if err != nil {
		s.rejectToken(w, r, err)
		return
	}
	s.verifiedCounter.Add(1)
	log.LogDebugf("action[handleAccessCheck] access granted, user[%v] block[%v:%v] mode[%v]",
		user, pool, block, mode)
	sendOkReply(w, r, newSuccessHTTPReply("access granted"))
}

func (s *Server) rejectToken(w http.ResponseWriter, r *http.Request, err error) {
	kind := proto.ParseErrorCode(err)
	s.rejectedCounter.AddWithLabels(1, map[string]string{"kind": strconv.Itoa(int(kind))})
	log.LogWarnf("action[handleAccessCheck] access denied: %v", err)
	sendErrReply(w, r, newErrHTTPReply(err))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	currentID, _ := s.manager.CurrentKeyID()
	sendOkReply(w, r, newSuccessHTTPReply(&proto.DataNodeStatus{
		Cluster:       s.clusterName,
		Role:          proto.RoleDataNode,
		CurrentKeyID:  currentID,
		KeyCount:      s.manager.KeyCount(),
		LastKeySyncMs: atomic.LoadInt64(&s.lastKeySyncMs),
		SyncedMasters: int(atomic.LoadInt32(&s.syncedMasters)),
		MasterAddrs:   len(s.masterAddrs),
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
	}
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
