package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/blogauth"
	"github.com/MrEthical07/blogauth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Source is what the exporter reads. *blogauth.Engine satisfies it.
type Source interface {
	MetricsSnapshot() blogauth.MetricsSnapshot
}

// Exporter renders engine metrics in Prometheus text exposition format.
type Exporter struct {
	source Source
}

func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves Render with the exposition content type.
func (x *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(x.Render()))
	})
}

// Render returns the current metrics, or "" when the engine has metrics
// disabled.
func (x *Exporter) Render() string {
	if x == nil || x.source == nil {
		return ""
	}
	snap := x.source.MetricsSnapshot()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 {
		return ""
	}

	var out exposition
	out.Grow(8192)
	for _, def := range internaldefs.CounterDefs {
		out.family(def.Name, def.Help, "counter")
		out.sample(def.Name, "", snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		if raw, ok := snap.Histograms[def.ID]; ok {
			out.latency(def, raw)
		}
	}
	return out.String()
}

// exposition accumulates metric families in the text format.
type exposition struct {
	strings.Builder
}

func (e *exposition) family(name, help, kind string) {
	help = strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
	e.WriteString("# HELP " + name + " " + help + "\n")
	e.WriteString("# TYPE " + name + " " + kind + "\n")
}

func (e *exposition) sample(name, labels string, v uint64) {
	e.WriteString(name)
	if labels != "" {
		e.WriteString("{" + labels + "}")
	}
	e.WriteByte(' ')
	e.WriteString(strconv.FormatUint(v, 10))
	e.WriteByte('\n')
}

// latency writes one histogram family. Snapshots hold bucket counts only,
// so _sum is always 0.
func (e *exposition) latency(def internaldefs.HistogramDef, raw []uint64) {
	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
	e.family(def.Name, def.Help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		e.sample(def.Name+"_bucket", `le="`+le+`"`, cumulative[i])
	}
	e.sample(def.Name+"_count", "", cumulative[len(cumulative)-1])
	e.sample(def.Name+"_sum", "", 0)
}
