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
	"fmt"
	"net/http"

	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/util/config"
	"github.com/cubefs/blockauth/util/exporter"
	"github.com/cubefs/blockauth/util/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// RequestIDHeader carries the per-request id the middleware assigns.
const RequestIDHeader = "X-Request-Id"

func (m *Server) startHTTPService(modulename string, cfg *config.Config) {
	router := mux.NewRouter().SkipClean(true)
	m.registerAPIRoutes(router)
	registerAPIMiddleware(router)
	exporter.InitWithRouter(m.clusterName, modulename, cfg, router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", m.listen),
		Handler: router,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogErrorf("serveAPI: serve http server failed: err(%v)", err)
		}
	}()
	m.apiServer = server
}

func (m *Server) registerAPIRoutes(router *mux.Router) {
	router.NewRoute().Methods(http.MethodGet).
		Path(proto.TokenGenerate).
		HandlerFunc(m.handleTokenGenerate)
	router.NewRoute().Methods(http.MethodGet).
		Path(proto.KeyExport).
		HandlerFunc(m.handleKeyExport)
	router.NewRoute().Methods(http.MethodGet).
		Path(proto.AdminUpdateKeys).
		HandlerFunc(m.handleUpdateKeys)
	router.NewRoute().Methods(http.MethodGet).
		Path(proto.AdminSetTokenLifetime).
		HandlerFunc(m.handleSetTokenLifetime)
	router.NewRoute().Methods(http.MethodGet).
		Path(proto.AdminStatus).
		HandlerFunc(m.handleStatus)
}

// registerAPIMiddleware tags every request with a uuid so a reply can be
// matched to its log lines.
func registerAPIMiddleware(router *mux.Router) {
	var interceptor mux.MiddlewareFunc = func(next http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				reqID := uuid.New().String()
				w.Header().Set(RequestIDHeader, reqID)
				log.LogDebugf("action[interceptor] request[%v] method[%v] path[%v] query[%v]",
					reqID, r.Method, r.URL.Path, r.URL.Query())
				next.ServeHTTP(w, r)
			})
	}
	router.Use(interceptor)
}
