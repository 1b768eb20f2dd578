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
	"fmt"
	"os"

	"github.com/cubefs/blockauth/cli/cmd"
	"github.com/cubefs/blockauth/sdk/keyclient"
	"github.com/cubefs/blockauth/util/log"
)

func runCLI() (err error) {
	var cfg *cmd.Config
	if cfg, err = cmd.LoadConfig(); err != nil {
		fmt.Printf("load cli config err[%v]\n", err)
		return
	}
	client := keyclient.NewKeyClient(cfg.MasterAddr)
	rootCmd := cmd.NewRootCmd(client)
	if err = rootCmd.Command.Execute(); err != nil {
		log.LogErrorf("command fail, err:%v", err)
	}
	return
}

func main() {
	if err := runCLI(); err != nil {
		os.Exit(1)
	}
}
