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

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/cubefs/blockauth/cmd/common"
	"github.com/cubefs/blockauth/datanode"
	"github.com/cubefs/blockauth/master"
	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/util/config"
	"github.com/cubefs/blockauth/util/exporter"
	"github.com/cubefs/blockauth/util/log"
)

const (
	ConfigKeyRole     = "role"
	ConfigKeyLogDir   = "logDir"
	ConfigKeyLogLevel = "logLevel"
)

var (
	configFile = flag.String("c", "", "config file path")
)

func interceptSignal(s common.Server) {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigC
		log.LogInfof("action[interceptSignal] received signal: %s", sig.String())
		s.Shutdown()
	}()
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfigFile(*configFile)
	if err != nil {
		fmt.Printf("load config file %s failed: %v\n", *configFile, err)
		os.Exit(1)
	}

	role := cfg.GetString(ConfigKeyRole)
	logDir := cfg.GetString(ConfigKeyLogDir)
	logLevel := log.ParseLevel(cfg.GetString(ConfigKeyLogLevel), log.InfoLevel)

	var (
		server common.Server
		module string
	)
	switch role {
	case proto.RoleMaster:
		server = master.NewServer()
		module = proto.RoleMaster
	case proto.RoleDataNode:
		server = datanode.NewServer()
		module = proto.RoleDataNode
	default:
		fmt.Printf("unknown role: %s\n", role)
		os.Exit(1)
	}

	if _, err = log.NewLog(logDir, module, logLevel); err != nil {
		fmt.Printf("init logger failed: %v\n", err)
		os.Exit(1)
	}

	// the listen port and name node index must not drift between restarts
	if role == proto.RoleMaster {
		constCfg := &config.ConstConfig{
			Listen:        cfg.GetString(master.Listen),
			NameNodeIndex: int(cfg.GetInt64(master.NameNodeIndex)),
		}
		if _, err = config.CheckOrStoreConstCfg(path.Join(logDir, "..", "conf"),
			config.DefaultConstConfigFile, constCfg); err != nil {
			log.LogErrorf("const config check failed: %v", err)
			log.LogFlush()
			fmt.Printf("const config check failed: %v\n", err)
			os.Exit(1)
		}
	}

	interceptSignal(server)

	if err = server.Start(cfg); err != nil {
		log.LogErrorf("start %s failed: %v", module, err)
		log.LogFlush()
		fmt.Printf("start %s failed: %v\n", module, err)
		os.Exit(1)
	}
	log.LogInfof("%s is running", module)

	server.Sync()
	exporter.Stop()
	log.LogFlush()
	os.Exit(0)
}
