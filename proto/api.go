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

package proto

// API routes served by the master.
const (
	TokenGenerate         = "/token/generate"
	KeyExport             = "/key/export"
	AdminUpdateKeys       = "/admin/updateKeys"
	AdminSetTokenLifetime = "/admin/setTokenLifetime"
	AdminStatus           = "/admin/status"
)

// API routes served by the datanode.
const (
	AccessCheck = "/access/check"
)

// Request parameter keys.
const (
	ParamUser     = "user"
	ParamPool     = "pool"
	ParamBlock    = "block"
	ParamModes    = "modes"
	ParamMode     = "mode"
	ParamLifetime = "lifetime"
)

// TokenView is the mint reply: the raw envelope plus its decoded claim.
type TokenView struct {
	Token      string          `json:"token"`
	Identifier TokenIdentifier `json:"identifier"`
}

// KeysView is the key export reply carrying the binary envelope.
type KeysView struct {
	Keys string `json:"keys"`
}

// MasterStatus reports a master's registry state.
type MasterStatus struct {
	Cluster             string `json:"cluster"`
	Role                string `json:"role"`
	NameNodeIndex       int    `json:"nnIndex"`
	CurrentKeyID        int32  `json:"currentKeyId"`
	NextKeyID           int32  `json:"nextKeyId"`
	KeyCount            int    `json:"keyCount"`
	KeyUpdateIntervalMs int64  `json:"keyUpdateIntervalMs"`
	TokenLifetimeMs     int64  `json:"tokenLifetimeMs"`
}

// DataNodeStatus reports a datanode's registry state.
type DataNodeStatus struct {
	Cluster       string `json:"cluster"`
	Role          string `json:"role"`
	CurrentKeyID  int32  `json:"currentKeyId"`
	KeyCount      int    `json:"keyCount"`
	LastKeySyncMs int64  `json:"lastKeySyncMs"`
	SyncedMasters int    `json:"syncedMasters"`
	MasterAddrs   int    `json:"masterAddrs"`
}

// RoleMaster and RoleDataNode select the binary's role in the config file.
const (
	RoleMaster   = "master"
	RoleDataNode = "datanode"
)
