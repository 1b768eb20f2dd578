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
	"fmt"
	"os"
	"path"

	"github.com/cubefs/blockauth/sdk/keyclient"
	"github.com/cubefs/blockauth/util/log"
	"github.com/spf13/cobra"
)

const cmdRootShort = "BlockAuth Command Line Interface (CLI)"

// BlockAuthCmd is the CLI command tree rooted at the binary name.
type BlockAuthCmd struct {
	Command *cobra.Command
}

func NewRootCmd(client keyclient.KeyClient) *BlockAuthCmd {
	cmd := &BlockAuthCmd{
		Command: &cobra.Command{
			Use:   path.Base(os.Args[0]),
			Short: cmdRootShort,
			Args:  cobra.MinimumNArgs(0),
		},
	}
	cmd.Command.AddCommand(
		newTokenCmd(client),
		newKeyCmd(client),
		newStatusCmd(client),
		newConfigCmd(),
	)
	return cmd
}

func stdout(format string, a ...interface{}) {
	_, _ = fmt.Fprintf(os.Stdout, format, a...)
}

func errout(format string, a ...interface{}) {
	log.LogErrorf(format+"\n", a...)
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", a...)
	OsExitWithLogFlush()
}

func OsExitWithLogFlush() {
	log.LogFlush()
	os.Exit(1)
}
