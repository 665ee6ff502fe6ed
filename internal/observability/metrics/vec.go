package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// labelSep joins label values into a map key; it cannot appear in valid UTF-8.
const labelSep = "\xff"

// counterVec is a counter family partitioned by a fixed set of labels.
type counterVec struct {
	name   string
	help   string
	labels []string

	mu     sync.Mutex
	values map[string]uint64
}

func newCounterVec(name, help string, labels ...string) *counterVec {
	return &counterVec{name: name, help: help, labels: labels, values: make(map[string]uint64)}
}

func (c *counterVec) inc(values ...string) {
	c.add(1, values...)
}

func (c *counterVec) add(n uint64, values ...string) {
	key := strings.Join(values, labelSep)
	c.mu.Lock()
	c.values[key] += n
	c.mu.Unlock()
}

func (c *counterVec) write(b *strings.Builder) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
	for _, key := range sortedKeys(c.values) {
		fmt.Fprintf(b, "%s%s %d\n", c.name, labelPairs(c.labels, key, ""), c.values[key])
	}
}

// histogramVec is a histogram family with shared bucket bounds.
type histogramVec struct {
	name    string
	help    string
	labels  []string
	buckets []float64

	mu     sync.Mutex
	series map[string]*histogram
}

type histogram struct {
	counts []uint64
	sum    float64
	count  uint64
}

func newHistogramVec(name, help string, buckets []float64, labels ...string) *histogramVec {
	return &histogramVec{name: name, help: help, labels: labels, buckets: buckets, series: make(map[string]*histogram)}
}

func (h *histogramVec) observe(value float64, values ...string) {
	key := strings.Join(values, labelSep)
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.series[key]
	if s == nil {
		s = &histogram{counts: make([]uint64, len(h.buckets))}
		h.series[key] = s
	}
	s.count++
	s.sum += value
	// 超过最大上界的值只计入 +Inf，即 count。
	for i, bound := range h.buckets {
		if value <= bound {
			s.counts[i]++
		}
	}
}

func (h *histogramVec) write(b *strings.Builder) {
	h.mu.Lock()
	defer h.mu.Unlock()

	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
	for _, key := range sortedKeys(h.series) {
		s := h.series[key]
		for i, bound := range h.buckets {
			fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, labelPairs(h.labels, key, formatFloat(bound)), s.counts[i])
		}
		fmt.Fprintf(b, "%s_bucket%s %d\n", h.name, labelPairs(h.labels, key, "+Inf"), s.count)
		fmt.Fprintf(b, "%s_sum%s %s\n", h.name, labelPairs(h.labels, key, ""), formatFloat(s.sum))
		fmt.Fprintf(b, "%s_count%s %d\n", h.name, labelPairs(h.labels, key, ""), s.count)
	}
}

// labelPairs renders {a="x",b="y"}; le is appended when non-empty.
func labelPairs(names []string, key, le string) string {
	values := strings.Split(key, labelSep)
	pairs := make([]string, 0, len(names)+1)
	for i, name := range names {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		pairs = append(pairs, fmt.Sprintf("%s=\"%s\"", name, escape(value)))
	}
	if le != "" {
		pairs = append(pairs, fmt.Sprintf("le=\"%s\"", le))
	}
	if len(pairs) == 0 {
		return ""
	}
	return "{" + strings.Join(pairs, ",") + "}"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	return strings.ReplaceAll(value, "\n", "")
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
