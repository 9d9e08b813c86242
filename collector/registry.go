package collector

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"google.golang.org/protobuf/proto"
)

// Registry accumulates gauge samples for one notification and renders them in the
// Prometheus text exposition format. A Registry is built fresh for every message and is
// not safe for concurrent use.
type Registry struct {
	families map[string]*family
}

type family struct {
	help    string
	samples map[string]sample
}

type sample struct {
	labels map[string]string
	value  float64
}

var _ prometheus.Gatherer = (*Registry)(nil)

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{families: map[string]*family{}}
}

// Set records value for the series identified by name and labels. The metric is declared
// with help on first use; later calls keep the original help text. Setting the same label
// set twice overwrites the earlier value.
func (r *Registry) Set(name, help string, labels map[string]string, value float64) error {
	if !model.IsValidLegacyMetricName(name) {
		return fmt.Errorf("invalid metric name %q", name)
	}
	for lName := range labels {
		if !model.LabelName(lName).IsValidLegacy() {
			return fmt.Errorf("invalid label name %q for metric %s", lName, name)
		}
	}

	f, ok := r.families[name]
	if !ok {
		f = &family{help: help, samples: map[string]sample{}}
		r.families[name] = f
	}
	f.samples[labelSignature(labels)] = sample{labels: maps.Clone(labels), value: value}
	return nil
}

// Has reports whether name has been declared.
func (r *Registry) Has(name string) bool {
	_, ok := r.families[name]
	return ok
}

// Len returns the number of declared metric families.
func (r *Registry) Len() int {
	return len(r.families)
}

// SampleValue looks up the value of one series.
func (r *Registry) SampleValue(name string, labels map[string]string) (float64, bool) {
	f, ok := r.families[name]
	if !ok {
		return 0, false
	}
	s, ok := f.samples[labelSignature(labels)]
	if !ok {
		return 0, false
	}
	return s.value, true
}

// Gather implements prometheus.Gatherer. Families are sorted by name, samples by label
// signature, so gathering the same Registry twice yields identical output.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	mfs := make([]*dto.MetricFamily, 0, len(r.families))
	for _, name := range slices.Sorted(maps.Keys(r.families)) {
		f := r.families[name]
		mf := &dto.MetricFamily{
			Name: proto.String(name),
			Type: dto.MetricType_GAUGE.Enum(),
		}
		if f.help != "" {
			mf.Help = proto.String(f.help)
		}
		for _, sig := range slices.Sorted(maps.Keys(f.samples)) {
			s := f.samples[sig]
			m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(s.value)}}
			for _, lName := range slices.Sorted(maps.Keys(s.labels)) {
				m.Label = append(m.Label, &dto.LabelPair{
					Name:  proto.String(lName),
					Value: proto.String(s.labels[lName]),
				})
			}
			mf.Metric = append(mf.Metric, m)
		}
		mfs = append(mfs, mf)
	}
	return mfs, nil
}

// WriteText serializes the registry in the text exposition format.
func (r *Registry) WriteText(w io.Writer) error {
	mfs, err := r.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Bytes is WriteText into a buffer.
func (r *Registry) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteText(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// labelSignature renders labels as a sorted name="value" list, usable as a map key and as
// a stable sort key.
func labelSignature(labels map[string]string) string {
	var sb strings.Builder
	for i, lName := range slices.Sorted(maps.Keys(labels)) {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%q", lName, labels[lName])
	}
	return sb.String()
}
