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
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cubefs/blockauth/blocktoken"
	"github.com/cubefs/blockauth/cmd/common"
	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/sdk/keyclient"
	"github.com/cubefs/blockauth/util/config"
	"github.com/cubefs/blockauth/util/errors"
	"github.com/cubefs/blockauth/util/exporter"
	"github.com/cubefs/blockauth/util/log"
)

// config keys
const (
	ClusterName        = "clusterName"
	Listen             = "listen"
	MasterAddr         = "masterAddr"
	CfgKeySyncInterval = "keySyncInterval"
)

const (
	// intervals are configured in minutes
	defaultKeySyncIntervalMin = 10

	// seed values for the slave manager before the first imported envelope
	defaultKeyUpdateIntervalMin = 600
	defaultTokenLifetimeMin     = 600
)

// Server verifies block tokens at the storage edge. It holds a slave-mode
// secret manager kept fresh by pulling the exported key set from every
// configured master.
type Server struct {
	clusterName     string
	listen          string
	masterAddrs     []string
	keySyncInterval time.Duration

	manager   *blocktoken.BlockTokenSecretManager
	client    keyclient.KeyClient
	apiServer *http.Server

	lastKeySyncMs int64
	syncedMasters int32

	verifiedCounter *exporter.Counter
	rejectedCounter *exporter.Counter
	keyCountGauge   *exporter.Gauge

	stopC   chan struct{}
	control common.Control
}

// NewServer returns a stopped server; Start brings it up.
func NewServer() *Server {
	return &Server{}
}

// Start parses the config, pulls the first key set and brings up the sync
// loop and the HTTP API.
func (s *Server) Start(cfg *config.Config) error {
	return s.control.Start(s, cfg, doStart)
}

// Shutdown stops the sync loop and the API listener.
func (s *Server) Shutdown() {
	s.control.Shutdown(s, doShutdown)
}

// Sync blocks until Shutdown.
func (s *Server) Sync() {
	s.control.Sync()
}

// A fully failed first sync is not fatal; the node starts empty and rejects
// tokens with unknown keys until a master answers.
func doStart(srv common.Server, cfg *config.Config) (err error) {
	s := srv.(*Server)
	if err = s.checkConfig(cfg); err != nil {
		log.LogError(errors.Stack(err))
		return
	}
	s.manager = blocktoken.NewSlave(
		time.Duration(defaultKeyUpdateIntervalMin)*time.Minute,
		time.Duration(defaultTokenLifetimeMin)*time.Minute)
	s.client = keyclient.NewKeyClient(s.masterAddrs)
	s.stopC = make(chan struct{})
	s.startHTTPService(proto.RoleDataNode, cfg)
	exporter.RegistConsul(cfg)
	s.initMetrics()
	s.syncKeys()
	s.scheduleTask()
	log.LogInfof("action[doStart] datanode started, cluster[%v] listen[%v] masters[%v]",
		s.clusterName, s.listen, s.masterAddrs)
	return nil
}

func doShutdown(srv common.Server) {
	s := srv.(*Server)
	close(s.stopC)
	if s.apiServer != nil {
		s.apiServer.Close()
	}
}

func (s *Server) checkConfig(cfg *config.Config) (err error) {
	s.clusterName = cfg.GetString(ClusterName)
	s.listen = cfg.GetString(Listen)
	if s.clusterName == "" || s.listen == "" {
		return errors.Trace(proto.ErrInvalidCfg, "clusterName and listen are required")
	}
	s.masterAddrs = cfg.GetStringSlice(MasterAddr)
	if len(s.masterAddrs) == 0 {
		return errors.Trace(proto.ErrInvalidCfg, "masterAddr is required")
	}
	intervalMin := cfg.GetInt64(CfgKeySyncInterval)
	if intervalMin == 0 {
		intervalMin = defaultKeySyncIntervalMin
	}
	if intervalMin < 0 {
		return errors.Trace(proto.ErrInvalidCfg, "negative keySyncInterval [%d]", intervalMin)
	}
	s.keySyncInterval = time.Duration(intervalMin) * time.Minute
	return nil
}

func (s *Server) initMetrics() {
	s.verifiedCounter = exporter.NewCounter("token_verified_count")
	s.rejectedCounter = exporter.NewCounter("token_rejected_count")
	s.keyCountGauge = exporter.NewGauge("live_key_count")
}

// syncKeys pulls the exported key set from every configured master and
// imports each envelope that decodes. Masters are symmetric authorities
// with disjoint key-id spaces, so importing both is safe.
func (s *Server) syncKeys() {
	synced := int32(0)
	for _, addr := range s.masterAddrs {
		if err := s.syncKeysFrom(addr); err != nil {
			log.LogWarnf("action[syncKeys] master[%v] sync failed: %v", addr, err)
			continue
		}
		synced++
	}
	if synced > 0 {
		atomic.StoreInt64(&s.lastKeySyncMs, time.Now().UnixMilli())
	}
	atomic.StoreInt32(&s.syncedMasters, synced)
	s.keyCountGauge.Set(int64(s.manager.KeyCount()))
	log.LogInfof("action[syncKeys] synced %d/%d masters, %d keys live",
		synced, len(s.masterAddrs), s.manager.KeyCount())
}

func (s *Server) syncKeysFrom(addr string) error {
	data, err := s.client.RequestNode(addr, http.MethodGet, proto.KeyExport, nil, nil)
	if err != nil {
		return err
	}
	view := &proto.KeysView{}
	if err = json.Unmarshal(data, view); err != nil {
		return errors.Trace(err, "decode keys view from [%v]", addr)
	}
	raw, err := base64.StdEncoding.DecodeString(view.Keys)
	if err != nil {
		return errors.Trace(err, "decode keys envelope from [%v]", addr)
	}
	exported := &proto.ExportedBlockKeys{}
	if err = exported.Unmarshal(raw); err != nil {
		return errors.Trace(err, "unmarshal keys envelope from [%v]", addr)
	}
	return s.manager.AddKeys(exported)
}

func (s *Server) scheduleTask() {
	go func() {
		ticker := time.NewTicker(s.keySyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopC:
				log.LogInfo("action[scheduleTask] key sync loop stopped")
				return
			case <-ticker.C:
				s.syncKeys()
			}
		}
	}()
}
