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
	"net/http"
	"time"

	"github.com/cubefs/blockauth/blocktoken"
	"github.com/cubefs/blockauth/cmd/common"
	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/util/config"
	"github.com/cubefs/blockauth/util/errors"
	"github.com/cubefs/blockauth/util/exporter"
	"github.com/cubefs/blockauth/util/log"
)

// config keys
const (
	ClusterName          = "clusterName"
	Listen               = "listen"
	NameNodeIndex        = "nnIndex"
	CfgKeyUpdateInterval = "keyUpdateInterval"
	CfgTokenLifetime     = "tokenLifetime"
)

const (
	// intervals are configured in minutes
	defaultKeyUpdateIntervalMin = 600
	defaultTokenLifetimeMin     = 600
)

// Server is the mint authority: it owns a master-mode secret manager,
// rotates its keys on schedule and serves the token and key-export API.
type Server struct {
	clusterName       string
	listen            string
	nnIndex           int
	keyUpdateInterval time.Duration
	tokenLifetime     time.Duration

	manager   *blocktoken.BlockTokenSecretManager
	apiServer *http.Server

	tokenMintCounter *exporter.Counter
	rotationCounter  *exporter.Counter
	keyCountGauge    *exporter.Gauge

	stopC   chan struct{}
	control common.Control
}

// NewServer returns a stopped server; Start brings it up.
func NewServer() *Server {
	return &Server{}
}

// Start parses the config, builds the key set and brings up the rotation
// scheduler and the HTTP API.
func (m *Server) Start(cfg *config.Config) error {
	return m.control.Start(m, cfg, doStart)
}

// Shutdown stops the scheduler and the API listener.
func (m *Server) Shutdown() {
	m.control.Shutdown(m, doShutdown)
}

// Sync blocks until Shutdown.
func (m *Server) Sync() {
	m.control.Sync()
}

func doStart(s common.Server, cfg *config.Config) (err error) {
	m := s.(*Server)
	if err = m.checkConfig(cfg); err != nil {
		log.LogError(errors.Stack(err))
		return
	}
	if m.manager, err = blocktoken.NewMaster(m.keyUpdateInterval, m.tokenLifetime, m.nnIndex); err != nil {
		log.LogError(errors.Stack(err))
		return
	}
	m.stopC = make(chan struct{})
	m.startHTTPService(proto.RoleMaster, cfg)
	exporter.RegistConsul(cfg)
	m.initMetrics()
	m.scheduleTask()
	log.LogInfof("action[doStart] master started, cluster[%v] listen[%v] nnIndex[%v]",
		m.clusterName, m.listen, m.nnIndex)
	return nil
}

func doShutdown(s common.Server) {
	m := s.(*Server)
	close(m.stopC)
	if m.apiServer != nil {
		m.apiServer.Close()
	}
}

func (m *Server) checkConfig(cfg *config.Config) (err error) {
	m.clusterName = cfg.GetString(ClusterName)
	m.listen = cfg.GetString(Listen)
	if m.clusterName == "" || m.listen == "" {
		return errors.Trace(proto.ErrInvalidCfg, "clusterName and listen are required")
	}
	m.nnIndex = int(cfg.GetInt64(NameNodeIndex))
	if m.nnIndex != 0 && m.nnIndex != 1 {
		return errors.Trace(proto.ErrInvalidCfg, "nnIndex must be 0 or 1, got [%d]", m.nnIndex)
	}
	intervalMin := cfg.GetInt64(CfgKeyUpdateInterval)
	if intervalMin == 0 {
		intervalMin = defaultKeyUpdateIntervalMin
	}
	lifetimeMin := cfg.GetInt64(CfgTokenLifetime)
	if lifetimeMin == 0 {
		lifetimeMin = defaultTokenLifetimeMin
	}
	if intervalMin < 0 || lifetimeMin < 0 {
		return errors.Trace(proto.ErrInvalidCfg, "negative interval [%d] or lifetime [%d]", intervalMin, lifetimeMin)
	}
	m.keyUpdateInterval = time.Duration(intervalMin) * time.Minute
	m.tokenLifetime = time.Duration(lifetimeMin) * time.Minute
	return nil
}

func (m *Server) initMetrics() {
	m.tokenMintCounter = exporter.NewCounter("token_mint_count")
	m.rotationCounter = exporter.NewCounter("key_rotation_count")
	m.keyCountGauge = exporter.NewGauge("live_key_count")
}

// scheduleTask runs the rotation loop until Shutdown. Every tick retires
// the current key, promotes the next and drops keys past expiry.
func (m *Server) scheduleTask() {
	go func() {
		ticker := time.NewTicker(m.keyUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopC:
				log.LogInfo("action[scheduleTask] rotation scheduler stopped")
				return
			case <-ticker.C:
				rotated, err := m.manager.UpdateKeys()
				if err != nil {
					log.LogErrorf("action[scheduleTask] rotate keys failed: %v", err)
					continue
				}
				if rotated {
					m.rotationCounter.Add(1)
				}
				m.keyCountGauge.Set(int64(m.manager.KeyCount()))
			}
		}
	}()
}
