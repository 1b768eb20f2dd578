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

package exporter

import (
	"crypto/md5"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cubefs/blockauth/util/log"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GaugeGroup sync.Map
	GaugePool  = &sync.Pool{New: func() interface{} {
		return new(Gauge)
	}}
	GaugeCh = make(chan *Gauge, ChSize)
)

func collectGauge() {
	defer wg.Done()
	for {
		select {
		case <-stopC:
			return
		case m := <-GaugeCh:
			metric := m.Metric()
			metric.Set(float64(m.val))
			GaugePool.Put(m)
		}
	}
}

type Gauge struct {
	name   string
	labels map[string]string
	val    int64
}

func NewGauge(name string) (g *Gauge) {
	if !enabledPrometheus {
		return
	}
	g = GaugePool.Get().(*Gauge)
	g.name = metricsName(name)
	g.labels = nil
	return
}

func (g *Gauge) Key() string {
	str := g.name
	if len(g.labels) > 0 {
		str = fmt.Sprintf("%s-%s", g.name, stringMapToString(g.labels))
	}
	return stringMD5(str)
}

func (g *Gauge) Metric() prometheus.Gauge {
	metric := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        g.name,
			ConstLabels: g.labels,
		})
	key := g.Key()
	actualMetric, load := GaugeGroup.LoadOrStore(key, metric)
	if !load {
		if err := prometheus.Register(actualMetric.(prometheus.Collector)); err == nil {
			log.LogInfo("register metric ", g.name)
		}
	}
	return actualMetric.(prometheus.Gauge)
}

func (g *Gauge) Set(val int64) {
	if !enabledPrometheus || g == nil {
		return
	}
	g.val = val
	g.publish()
}

func (g *Gauge) SetWithLabels(val int64, labels map[string]string) {
	if !enabledPrometheus || g == nil {
		return
	}
	g.labels = labels
	g.Set(val)
}

func (g *Gauge) publish() {
	select {
	case GaugeCh <- g:
	default:
	}
}

func stringMapToString(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, labels[k]))
	}
	return strings.Join(parts, ",")
}

func stringMD5(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}
