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

package keyclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync"
	"time"

	"github.com/cubefs/blockauth/proto"
	"github.com/cubefs/blockauth/util/errors"
	"github.com/cubefs/blockauth/util/log"
)

const requestTimeout = 3 * time.Second

// KeyClient talks to the master key service over HTTP. Masters are
// symmetric peers, so Request tries the last node that answered first and
// falls over to the rest of the list.
type KeyClient interface {
	AddNode(address string)
	Nodes() []string
	Request(method, path string, param map[string]string, body []byte) (data []byte, err error)
	RequestNode(node, method, path string, param map[string]string, body []byte) (data []byte, err error)
}

type keyClient struct {
	sync.RWMutex
	masters  []string
	lastGood string
}

// NewKeyClient returns a client over the given master addresses.
func NewKeyClient(masters []string) KeyClient {
	c := &keyClient{}
	for _, addr := range masters {
		c.AddNode(addr)
	}
	return c
}

// AddNode appends the address to the master list if absent.
func (c *keyClient) AddNode(address string) {
	if address == "" {
		return
	}
	c.Lock()
	defer c.Unlock()
	for _, master := range c.masters {
		if master == address {
			return
		}
	}
	c.masters = append(c.masters, address)
}

// Nodes returns all master addresses.
func (c *keyClient) Nodes() (nodes []string) {
	c.RLock()
	nodes = append(nodes, c.masters...)
	c.RUnlock()
	return
}

func (c *keyClient) setLastGood(addr string) {
	c.Lock()
	c.lastGood = addr
	c.Unlock()
}

func (c *keyClient) prepareRequest() (addr string, nodes []string) {
	c.RLock()
	addr = c.lastGood
	nodes = append(nodes, c.masters...)
	c.RUnlock()
	return
}

// Request tries every master until one replies with a well-formed body.
func (c *keyClient) Request(method, path string, param map[string]string, reqData []byte) (respData []byte, err error) {
	lastGood, nodes := c.prepareRequest()
	host := lastGood
	for i := -1; i < len(nodes); i++ {
		if i == -1 {
			if host == "" {
				continue
			}
		} else {
			if nodes[i] == lastGood {
				continue
			}
			host = nodes[i]
		}
		respData, err = c.RequestNode(host, method, path, param, reqData)
		if err != nil {
			log.LogErrorf("action[Request] master[%v] path[%v] err: %v", host, path, err)
			continue
		}
		if host != lastGood {
			c.setLastGood(host)
		}
		return respData, nil
	}
	return nil, proto.ErrNoValidMaster
}

// RequestNode sends one request to one node and unwraps the reply envelope.
// A non-success reply code surfaces as an error carrying the server message.
func (c *keyClient) RequestNode(node, method, path string, param map[string]string, reqData []byte) (data []byte, err error) {
	var resp *http.Response
	resp, err = c.httpRequest(method, fmt.Sprintf("http://%s%s", node, path), param, reqData)
	if err != nil {
		return
	}
	stateCode := resp.StatusCode
	respData, err := ioutil.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return
	}
	if stateCode != http.StatusOK {
		return nil, errors.NewErrorf("master[%v] uri[%v] statusCode[%v] respBody[%v]",
			node, path, stateCode, string(respData))
	}
	body := &struct {
		Code int32           `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}{}
	if err = json.Unmarshal(respData, body); err != nil {
		return nil, errors.NewErrorf("unmarshal response body err: %v", err)
	}
	if body.Code != proto.ErrCodeSuccess {
		return nil, errors.NewErrorf("request error, code[%d], msg[%s]", body.Code, body.Msg)
	}
	return []byte(body.Data), nil
}

func (c *keyClient) httpRequest(method, url string, param map[string]string, reqData []byte) (resp *http.Response, err error) {
	client := &http.Client{Timeout: requestTimeout}
	reader := bytes.NewReader(reqData)
	fullUrl := mergeRequestUrl(url, param)
	log.LogDebugf("action[httpRequest] method[%v] url[%v] reqBodyLen[%v].", method, fullUrl, len(reqData))
	var req *http.Request
	if req, err = http.NewRequest(method, fullUrl, reader); err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "close")
	resp, err = client.Do(req)
	return
}

func mergeRequestUrl(url string, params map[string]string) string {
	if len(params) > 0 {
		buff := bytes.NewBuffer([]byte(url))
		isFirstParam := true
		for k, v := range params {
			if isFirstParam {
				buff.WriteString("?")
				isFirstParam = false
			} else {
				buff.WriteString("&")
			}
			buff.WriteString(k)
			buff.WriteString("=")
			buff.WriteString(v)
		}
		return buff.String()
	}
	return url
}
