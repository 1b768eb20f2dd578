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
	"io/ioutil"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"
)

const cmdConfigShort = "Manage global config file"

var (
	defaultHomeDir, _ = os.UserHomeDir()
	defaultConfigName = ".blockauth-cli.json"
	defaultConfigPath = path.Join(defaultHomeDir, defaultConfigName)
	defaultConfigData = []byte(`
{
  "masterAddr": [
    "127.0.0.1:17010",
    "127.0.0.1:17011"
  ]
}
`)
)

// Config is the CLI's persistent settings in the user's home directory.
type Config struct {
	MasterAddr []string `json:"masterAddr"`
}

// LoadConfig reads the config file, seeding it with defaults on first use.
func LoadConfig() (*Config, error) {
	data, err := ioutil.ReadFile(defaultConfigPath)
	if os.IsNotExist(err) {
		if err = ioutil.WriteFile(defaultConfigPath, defaultConfigData, 0600); err != nil {
			return nil, err
		}
		data = defaultConfigData
	} else if err != nil {
		return nil, err
	}
	config := &Config{}
	if err = json.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

func saveConfig(config *Config) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(defaultConfigPath, data, 0600)
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: cmdConfigShort,
	}
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigInfoCmd())
	return cmd
}

const (
	cmdConfigSetShort  = "set value of config file"
	cmdConfigInfoShort = "show info of config file"
)

func newConfigSetCmd() *cobra.Command {
	var optMasterHosts string
	cmd := &cobra.Command{
		Use:   "set",
		Short: cmdConfigSetShort,
		Long:  `Set the config file`,
		Run: func(cmd *cobra.Command, args []string) {
			if optMasterHosts == "" {
				stdout("No changes has been set. Input 'blockauth-cli config set -h' for help.\n")
				return
			}
			config, err := LoadConfig()
			if err != nil {
				errout("load config file failed: %v", err)
			}
			config.MasterAddr = strings.Split(optMasterHosts, ",")
			if err = saveConfig(config); err != nil {
				errout("save config file failed: %v", err)
			}
			stdout("Config has been set successfully!\n")
		},
	}
	cmd.Flags().StringVar(&optMasterHosts, "addr", "", "Specify master addresses, comma separated")
	return cmd
}

func newConfigInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: cmdConfigInfoShort,
		Run: func(cmd *cobra.Command, args []string) {
			config, err := LoadConfig()
			if err != nil {
				errout("load config file failed: %v", err)
			}
			stdout("Config file   : %v\n", defaultConfigPath)
			stdout("Master address: %v\n", strings.Join(config.MasterAddr, ","))
		},
	}
}
