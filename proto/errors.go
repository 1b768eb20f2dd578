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

import "github.com/cubefs/blockauth/util/errors"

// err
var (
	ErrSuc            = errors.New("success")
	ErrInternalError  = errors.New("internal error")
	ErrParamError     = errors.New("parameter error")
	ErrInvalidCfg     = errors.New("bad configuration file")
	ErrNotInitialized = errors.New("block key not initialized")
	ErrMalformedToken = errors.New("malformed block token")
	ErrUserMismatch   = errors.New("token does not belong to user")
	ErrBlockMismatch  = errors.New("token does not apply to block")
	ErrExpiredToken   = errors.New("expired block token")
	ErrModeDenied     = errors.New("access mode not permitted by token")
	ErrUnknownKey     = errors.New("block key not found")
	ErrBadMac         = errors.New("token password mismatch")
	ErrRoleViolation  = errors.New("operation not permitted for role")
	ErrNoValidMaster  = errors.New("no valid master")
)

// http response error code and error message definitions
const (
	ErrCodeSuccess = iota
	ErrCodeInternalError
	ErrCodeParamError
	ErrCodeInvalidCfg
	ErrCodeNotInitialized
	ErrCodeMalformedToken
	ErrCodeUserMismatch
	ErrCodeBlockMismatch
	ErrCodeExpiredToken
	ErrCodeModeDenied
	ErrCodeUnknownKey
	ErrCodeBadMac
	ErrCodeRoleViolation
	ErrCodeNoValidMaster
)

// Err2CodeMap error map to code
var Err2CodeMap = map[error]int32{
	ErrSuc:            ErrCodeSuccess,
	ErrInternalError:  ErrCodeInternalError,
	ErrParamError:     ErrCodeParamError,
	ErrInvalidCfg:     ErrCodeInvalidCfg,
	ErrNotInitialized: ErrCodeNotInitialized,
	ErrMalformedToken: ErrCodeMalformedToken,
	ErrUserMismatch:   ErrCodeUserMismatch,
	ErrBlockMismatch:  ErrCodeBlockMismatch,
	ErrExpiredToken:   ErrCodeExpiredToken,
	ErrModeDenied:     ErrCodeModeDenied,
	ErrUnknownKey:     ErrCodeUnknownKey,
	ErrBadMac:         ErrCodeBadMac,
	ErrRoleViolation:  ErrCodeRoleViolation,
	ErrNoValidMaster:  ErrCodeNoValidMaster,
}

// ParseErrorCode resolves err to its reply code, unwrapping traced errors.
func ParseErrorCode(err error) int32 {
	if err == nil {
		return ErrCodeSuccess
	}
	if code, exist := Err2CodeMap[errors.Cause(err)]; exist {
		return code
	}
	return ErrCodeInternalError
}

// HTTPReply uniform response structure
type HTTPReply struct {
	Code int32       `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}
