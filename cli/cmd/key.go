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
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/sdk/keyclient"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const (
	cmdKeyShort         = "Manage block keys"
	cmdKeyExportShort   = "Show the exported key set of the masters"
	cmdKeyUpdateShort   = "Force a key rotation on the master"
	cmdKeyLifetimeShort = "Set the token lifetime of future mints"
)

func newKeyCmd(client keyclient.KeyClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: cmdKeyShort,
	}
	cmd.AddCommand(
		newKeyExportCmd(client),
		newKeyUpdateCmd(client),
		newKeyLifetimeCmd(client),
	)
	return cmd
}

func newKeyExportCmd(client keyclient.KeyClient) *cobra.Command {
	var optRaw bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: cmdKeyExportShort,
		Run: func(cmd *cobra.Command, args []string) {
			exported, err := fetchExportedKeys(client)
			if err != nil {
				errout("fetch exported keys failed: %v", err)
			}
			if optRaw {
				stdout("%v\n", base64.StdEncoding.EncodeToString(exported.Marshal()))
				return
			}
			stdout("Key update interval: %v\n", time.Duration(exported.KeyUpdateIntervalMs)*time.Millisecond)
			stdout("Token lifetime     : %v\n", time.Duration(exported.TokenLifetimeMs)*time.Millisecond)
			keys := append([]proto.BlockKey(nil), exported.AllKeys...)
			sort.Slice(keys, func(i, j int) bool { return keys[i].KeyID < keys[j].KeyID })
			for _, key := range keys {
				marker := "  "
				if key.KeyID == exported.CurrentKey.KeyID {
					marker = color.GreenString("* ")
				}
				stdout("%vkeyId=%-12d expires %v\n", marker, key.KeyID,
					humanize.Time(time.UnixMilli(key.ExpiryMs)))
			}
		},
	}
	cmd.Flags().BoolVar(&optRaw, "raw", false, "Print the raw base64 envelope")
	return cmd
}

func newKeyUpdateCmd(client keyclient.KeyClient) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: cmdKeyUpdateShort,
		Run: func(cmd *cobra.Command, args []string) {
			data, err := client.Request(http.MethodGet, proto.AdminUpdateKeys, nil, nil)
			if err != nil {
				errout("update keys failed: %v", err)
			}
			var msg string
			if err = json.Unmarshal(data, &msg); err != nil {
				msg = string(data)
			}
			stdout("%v\n", msg)
		},
	}
}

func newKeyLifetimeCmd(client keyclient.KeyClient) *cobra.Command {
	return &cobra.Command{
		Use:   "lifetime [MINUTES]",
		Short: cmdKeyLifetimeShort,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			minutes, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || minutes <= 0 {
				errout("lifetime must be a positive number of minutes")
			}
			params := map[string]string{proto.ParamLifetime: strconv.FormatInt(minutes, 10)}
			if _, err = client.Request(http.MethodGet, proto.AdminSetTokenLifetime, params, nil); err != nil {
				errout("set token lifetime failed: %v", err)
			}
			stdout("Token lifetime set to %v minutes\n", minutes)
		},
	}
}

func fetchExportedKeys(client keyclient.KeyClient) (*proto.ExportedBlockKeys, error) {
	data, err := client.Request(http.MethodGet, proto.KeyExport, nil, nil)
	if err != nil {
		return nil, err
	}
	view := &proto.KeysView{}
	if err = json.Unmarshal(data, view); err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(view.Keys)
	if err != nil {
		return nil, err
	}
	exported := &proto.ExportedBlockKeys{}
	if err = exported.Unmarshal(raw); err != nil {
		return nil, err
	}
	return exported, nil
}
