// Package metrics 维护进程级 Prometheus 注册表。指标族按名称惰性创建，
// 标签名取自首次调用时的 labels（排序后）；后续调用标签集不一致时忽略该次上报。
package metrics

import (
	"bytes"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

var (
	mu        sync.Mutex
	reg       = prometheus.NewRegistry()
	counters  = map[string]*prometheus.CounterVec{}
	summaries = map[string]*prometheus.SummaryVec{}
	gauges    = map[string]*prometheus.GaugeVec{}
	labelSets = map[string][]string{}
)

var objectives = map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

func labelNames(labels map[string]string) []string {
	out := make([]string, 0, len(labels))
	for k := range labels {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// must be called with mu held.
func checkFamily(name string, names []string) bool {
	known, ok := labelSets[name]
	if !ok {
		return true
	}
	return sameNames(known, names)
}

func counter(name string, labels map[string]string) prometheus.Counter {
	mu.Lock()
	defer mu.Unlock()
	names := labelNames(labels)
	if !checkFamily(name, names) {
		return nil
	}
	vec, ok := counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: name}, names)
		if err := reg.Register(vec); err != nil {
			return nil
		}
		counters[name] = vec
		labelSets[name] = names
	}
	c, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return nil
	}
	return c
}

func summary(name string, labels map[string]string) prometheus.Observer {
	mu.Lock()
	defer mu.Unlock()
	names := labelNames(labels)
	if !checkFamily(name, names) {
		return nil
	}
	vec, ok := summaries[name]
	if !ok {
		vec = prometheus.NewSummaryVec(prometheus.SummaryOpts{Name: name, Help: name, Objectives: objectives}, names)
		if err := reg.Register(vec); err != nil {
			return nil
		}
		summaries[name] = vec
		labelSets[name] = names
	}
	o, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return nil
	}
	return o
}

func gauge(name string, labels map[string]string) prometheus.Gauge {
	mu.Lock()
	defer mu.Unlock()
	names := labelNames(labels)
	if !checkFamily(name, names) {
		return nil
	}
	vec, ok := gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: name}, names)
		if err := reg.Register(vec); err != nil {
			return nil
		}
		gauges[name] = vec
		labelSets[name] = names
	}
	g, err := vec.GetMetricWith(prometheus.Labels(labels))
	if err != nil {
		return nil
	}
	return g
}

// Inc 计数 +1。
func Inc(name string, labels map[string]string) { Add(name, labels, 1) }

// Add 计数 +v（v 必须非负）。
func Add(name string, labels map[string]string, v float64) {
	if v < 0 {
		return
	}
	if c := counter(name, labels); c != nil {
		c.Add(v)
	}
}

// ObserveSummary 记录一次摘要观测（通常为毫秒延迟）。
func ObserveSummary(name string, labels map[string]string, v float64) {
	if o := summary(name, labels); o != nil {
		o.Observe(v)
	}
}

func SetGauge(name string, labels map[string]string, v float64) {
	if g := gauge(name, labels); g != nil {
		g.Set(v)
	}
}

func AddGauge(name string, labels map[string]string, v float64) {
	if g := gauge(name, labels); g != nil {
		g.Add(v)
	}
}

// Registry 暴露注册表，供宿主程序挂载 promhttp。
func Registry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return reg
}

// Reset 丢弃全部指标（测试用）。
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	reg = prometheus.NewRegistry()
	counters = map[string]*prometheus.CounterVec{}
	summaries = map[string]*prometheus.SummaryVec{}
	gauges = map[string]*prometheus.GaugeVec{}
	labelSets = map[string][]string{}
}

// DumpProm 以 Prometheus 文本格式导出当前全部指标。
func DumpProm() string {
	mfs, err := Registry().Gather()
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return buf.String()
		}
	}
	return buf.String()
}

// Value 返回计数器或仪表在给定标签下的当前值；summary 返回观测次数。
func Value(name string, labels map[string]string) (float64, bool) {
	mfs, err := Registry().Gather()
	if err != nil {
		return 0, false
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m.GetLabel(), labels) {
				continue
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				return m.GetCounter().GetValue(), true
			case dto.MetricType_GAUGE:
				return m.GetGauge().GetValue(), true
			case dto.MetricType_SUMMARY:
				return float64(m.GetSummary().GetSampleCount()), true
			}
		}
	}
	return 0, false
}

func labelsMatch(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) != len(want) {
		return false
	}
	for _, lp := range got {
		if v, ok := want[lp.GetName()]; !ok || v != lp.GetValue() {
			return false
		}
	}
	return true
}
