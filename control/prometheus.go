// control/prometheus.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus text exposition of the metrics registry plus a JSON dump of
// debug probes, served over net/http.

package control

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// gauges lists the snapshot keys exported with TYPE gauge; everything else
// numeric is a counter.
var gauges = map[string]bool{
	SessionsActive: true,
}

// WritePrometheus writes every numeric value of snap under prefix, in
// sorted key order. Non-numeric values are skipped.
func WritePrometheus(w io.Writer, prefix string, snap map[string]any) error {
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := numeric(snap[k])
		if !ok {
			continue
		}
		name := metricName(prefix, k)
		typ := "counter"
		if gauges[k] {
			typ = "gauge"
		} else if !strings.HasSuffix(name, "_total") {
			name += "_total"
		}
		if _, err := fmt.Fprintf(w, "# TYPE %s %s\n%s %s\n\n", name, typ, name, v); err != nil {
			return err
		}
	}
	return nil
}

func metricName(prefix, key string) string {
	key = strings.NewReplacer(".", "_", "-", "_").Replace(key)
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

func numeric(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return fmt.Sprint(n), true
	case int64:
		return fmt.Sprint(n), true
	case uint32:
		return fmt.Sprint(n), true
	case uint64:
		return fmt.Sprint(n), true
	case float64:
		return fmt.Sprintf("%g", n), true
	default:
		return "", false
	}
}

// Handler serves /metrics (Prometheus text) and /debug/state (probes as
// JSON). probes may be nil.
func Handler(prefix string, mr *MetricsRegistry, probes *DebugProbes) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = WritePrometheus(w, prefix, mr.GetSnapshot())
	})
	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, r *http.Request) {
		state := map[string]any{}
		if probes != nil {
			state = probes.DumpState()
		}
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(state)
	})
	return mux
}
