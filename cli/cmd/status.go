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

package cmd

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/sdk/keyclient"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const cmdStatusShort = "Show the registry status of every configured master"

func newStatusCmd(client keyclient.KeyClient) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: cmdStatusShort,
		Run: func(cmd *cobra.Command, args []string) {
			for _, node := range client.Nodes() {
				stdout("Master %v:\n", node)
				data, err := client.RequestNode(node, http.MethodGet, proto.AdminStatus, nil, nil)
				if err != nil {
					stdout("  %v\n", color.RedString("unreachable: %v", err))
					continue
				}
				status := &proto.MasterStatus{}
				if err = json.Unmarshal(data, status); err != nil {
					stdout("  %v\n", color.RedString("bad status reply: %v", err))
					continue
				}
				stdout("  Cluster       : %v\n", status.Cluster)
				stdout("  NameNode index: %v\n", status.NameNodeIndex)
				stdout("  Current key   : %v\n", status.CurrentKeyID)
				stdout("  Next key      : %v\n", status.NextKeyID)
				stdout("  Live keys     : %v\n", status.KeyCount)
				stdout("  Key interval  : %v\n", time.Duration(status.KeyUpdateIntervalMs)*time.Millisecond)
				stdout("  Token lifetime: %v\n", time.Duration(status.TokenLifetimeMs)*time.Millisecond)
			}
		},
	}
}
