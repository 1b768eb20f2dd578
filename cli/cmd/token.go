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
	"strconv"
	"time"

	"github.com/cubefs/blockauth/blocktoken"
	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/sdk/keyclient"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const (
	cmdTokenShort         = "Manage block tokens"
	cmdTokenGenerateShort = "Mint a block token on the master"
	cmdTokenVerifyShort   = "Verify a token against the exported key set"
	cmdTokenInspectShort  = "Decode a token without verifying it"
)

func newTokenCmd(client keyclient.KeyClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: cmdTokenShort,
	}
	cmd.AddCommand(
		newTokenGenerateCmd(client),
		newTokenVerifyCmd(client),
		newTokenInspectCmd(),
	)
	return cmd
}

func newTokenGenerateCmd(client keyclient.KeyClient) *cobra.Command {
	var (
		optUser  string
		optPool  string
		optBlock int64
		optModes string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: cmdTokenGenerateShort,
		Run: func(cmd *cobra.Command, args []string) {
			params := map[string]string{
				proto.ParamUser:  optUser,
				proto.ParamPool:  optPool,
				proto.ParamBlock: strconv.FormatInt(optBlock, 10),
				proto.ParamModes: optModes,
			}
			data, err := client.Request(http.MethodGet, proto.TokenGenerate, params, nil)
			if err != nil {
				errout("generate token failed: %v", err)
			}
			view := &proto.TokenView{}
			if err = json.Unmarshal(data, view); err != nil {
				errout("decode token reply failed: %v", err)
			}
			stdout("Token   : %v\n", view.Token)
			printIdentifier(&view.Identifier)
		},
	}
	cmd.Flags().StringVar(&optUser, "user", "", "User the token is bound to")
	cmd.Flags().StringVar(&optPool, "pool", "", "Block pool id")
	cmd.Flags().Int64Var(&optBlock, "block", 0, "Block id")
	cmd.Flags().StringVar(&optModes, "modes", "READ", "Access modes, comma separated")
	return cmd
}

func newTokenVerifyCmd(client keyclient.KeyClient) *cobra.Command {
	var (
		optUser  string
		optPool  string
		optBlock int64
		optMode  string
	)
	cmd := &cobra.Command{
		Use:   "verify [TOKEN]",
		Short: cmdTokenVerifyShort,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token := decodeToken(args[0])
			mode, err := proto.ParseAccessMode(optMode)
			if err != nil {
				errout("bad access mode: %v", err)
			}
			exported, err := fetchExportedKeys(client)
			if err != nil {
				errout("fetch exported keys failed: %v", err)
			}
			manager := blocktoken.NewSlave(
				time.Duration(exported.KeyUpdateIntervalMs)*time.Millisecond,
				time.Duration(exported.TokenLifetimeMs)*time.Millisecond)
			if err = manager.AddKeys(exported); err != nil {
				errout("import exported keys failed: %v", err)
			}
			block := proto.ExtendedBlock{BlockPoolID: optPool, BlockID: optBlock}
			if err = manager.CheckAccess(token, optUser, block, mode); err != nil {
				stdout("Verdict : %v\n", color.RedString("DENIED"))
				stdout("Reason  : %v\n", err)
				OsExitWithLogFlush()
			}
			stdout("Verdict : %v\n", color.GreenString("GRANTED"))
		},
	}
	cmd.Flags().StringVar(&optUser, "user", "", "Expected user, empty skips the user check")
	cmd.Flags().StringVar(&optPool, "pool", "", "Expected block pool id")
	cmd.Flags().Int64Var(&optBlock, "block", 0, "Expected block id")
	cmd.Flags().StringVar(&optMode, "mode", "READ", "Requested access mode")
	return cmd
}

func newTokenInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [TOKEN]",
		Short: cmdTokenInspectShort,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token := decodeToken(args[0])
			id := &proto.TokenIdentifier{}
			if err := id.Unmarshal(token.ID); err != nil {
				errout("decode token identifier failed: %v", err)
			}
			printIdentifier(id)
			stdout("Kind    : %v\n", token.Kind)
			stdout("Password: %d bytes\n", len(token.Password))
		},
	}
}

func decodeToken(arg string) *proto.Token {
	raw, err := base64.StdEncoding.DecodeString(arg)
	if err != nil {
		errout("token is not valid base64: %v", err)
	}
	token := &proto.Token{}
	if err = token.Unmarshal(raw); err != nil {
		errout("decode token envelope failed: %v", err)
	}
	return token
}

func printIdentifier(id *proto.TokenIdentifier) {
	expiry := time.UnixMilli(id.ExpiryMs)
	expiryNote := humanize.Time(expiry)
	if expiry.Before(time.Now()) {
		expiryNote = color.RedString("%v (expired)", humanize.Time(expiry))
	}
	stdout("User    : %v\n", id.UserID)
	stdout("Block   : %v\n", id.Block())
	stdout("Modes   : %v\n", id.Modes)
	stdout("Key id  : %v\n", id.KeyID)
	stdout("Expiry  : %v, %v\n", expiry.Format(time.RFC3339), expiryNote)
}
