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

package exporter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cubefs/blockauth/util/config"
	"github.com/cubefs/blockauth/util/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	PromHandlerPattern      = "/metrics"
	AppName                 = "blockauth"
	ConfigKeyExporterEnable = "exporterEnable"
	ConfigKeyExporterPort   = "exporterPort"
	ConfigKeyConsulAddr     = "consulAddr"
	ChSize                  = 1024 * 10
)

var (
	inited            bool
	namespace         string
	clustername       string
	modulename        string
	exporterPort      int64
	enabledPrometheus = false
	replacer          = strings.NewReplacer("-", "_", ".", "_", " ", "_", ",", "_", ":", "_")
	stopC             = make(chan struct{})
	wg                sync.WaitGroup
)

func metricsName(name string) string {
	if len(namespace) > 0 {
		return replacer.Replace(fmt.Sprintf("%s_%s", namespace, name))
	}
	return name
}

// Init starts the exporter on its own listener. The registration goroutines
// keep running until Stop.
func Init(cluster, role string, cfg *config.Config) {
	defer func() {
		inited = true
		log.LogInfof("exporter [cluster: %v, role: %v, exporterPort: %v] inited.", clustername, modulename, exporterPort)
	}()

	clustername = replacer.Replace(cluster)
	modulename = role

	if !cfg.GetBoolWithDefault(ConfigKeyExporterEnable, true) {
		log.LogInfof("%v exporter disabled", role)
		return
	}
	port := cfg.GetInt64(ConfigKeyExporterPort)
	if port == 0 {
		log.LogInfof("%v exporter port not set", role)
		return
	}

	exporterPort = port
	enabledPrometheus = true
	server := &http.Server{Addr: fmt.Sprintf(":%d", port)}
	http.Handle(PromHandlerPattern, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		Timeout: 5 * time.Second,
	}))
	namespace = AppName + "_" + role
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError("exporter http serve error: ", err)
		}
	}()
	go func() {
		defer wg.Done()
		<-stopC
		server.Shutdown(context.Background())
	}()

	collect()

	m := NewGauge("start_time")
	m.Set(time.Now().Unix() * 1000)
}

// InitWithRouter mounts the metrics handler on an existing router instead of
// opening a dedicated listener.
func InitWithRouter(cluster, role string, cfg *config.Config, router *mux.Router) {
	defer func() {
		inited = true
		log.LogInfof("exporter [cluster: %v, role: %v] inited on service router.", clustername, modulename)
	}()

	clustername = replacer.Replace(cluster)
	modulename = role

	if !cfg.GetBoolWithDefault(ConfigKeyExporterEnable, true) {
		log.LogInfof("%v metrics exporter disabled", role)
		return
	}
	exporterPort = cfg.GetInt64(ConfigKeyExporterPort)
	enabledPrometheus = true
	router.NewRoute().Name("metrics").
		Methods(http.MethodGet).
		Path(PromHandlerPattern).
		Handler(promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			Timeout: 5 * time.Second,
		}))
	namespace = AppName + "_" + role

	collect()

	m := NewGauge("start_time")
	m.Set(time.Now().Unix() * 1000)
}

// IsEnabled reports whether prometheus collection is active.
func IsEnabled() bool {
	return enabledPrometheus
}

// RegistConsul registers the metrics endpoint with consul so prometheus can
// discover it. No-op without a configured consul address.
func RegistConsul(cfg *config.Config) {
	if !inited || !enabledPrometheus {
		log.LogInfof("skip consul registration cause exporter not inited or prometheus not enabled.")
		return
	}

	consulAddr := cfg.GetString(ConfigKeyConsulAddr)
	if len(consulAddr) == 0 {
		log.LogInfof("skip consul registration cause consul address not configured.")
		return
	}
	if exporterPort <= 0 {
		log.LogInfof("skip consul registration cause configured export port is illegal.")
		return
	}

	if !strings.HasPrefix(consulAddr, "http") {
		consulAddr = "http://" + consulAddr
	}
	host, err := GetLocalIpAddr()
	if err != nil {
		log.LogErrorf("skip consul registration cause local address lookup failed: %v", err)
		return
	}
	wg.Add(1)
	go DoConsulRegisterProc(consulAddr, AppName, modulename, clustername, host, exporterPort)
	log.LogInfof("consul registered [addr %v, app: %v, role: %v, cluster: %v, port: %v]",
		consulAddr, AppName, modulename, clustername, exporterPort)
}

func collect() {
	if !enabledPrometheus {
		return
	}
	wg.Add(2)
	go collectCounter()
	go collectGauge()
}

// Stop shuts the exporter listener down and waits for the collectors.
func Stop() {
	close(stopC)
	wg.Wait()
}
