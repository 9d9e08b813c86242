package collector

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/openstack/ironic-prometheus-exporter/config"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// testLogger discards everything
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testDescriptions loads the embedded help texts
func testDescriptions(t *testing.T) *Descriptions {
	t.Helper()

	d, err := LoadDescriptions()
	require.NoError(t, err)
	return d
}

// newTestProcessor builds a Processor with the given json_metrics entries
func newTestProcessor(t *testing.T, jsonMetrics ...config.JSONMetricsConfig) *Processor {
	t.Helper()

	p, err := NewProcessor(testLogger(), testDescriptions(t), jsonMetrics)
	require.NoError(t, err)
	return p
}

// processNotification runs a notification through a fresh Processor
func processNotification(t *testing.T, n Notification) Result {
	t.Helper()

	res, err := newTestProcessor(t).Process(context.Background(), n)
	require.NoError(t, err)
	require.NotNil(t, res.Registry)
	return res
}

// ipmiNode is the identity of the node in notification-ipmi-1.json
func ipmiNode() NodeIdentity {
	return NodeIdentity{
		NodeName:     stringPtr("knilab-master-u9"),
		NodeUUID:     "ac2aa2fd-6e1a-41c8-a114-2084c8705228",
		InstanceUUID: stringPtr("ac2aa2fd-6e1a-41c8-a114-2084c8705228"),
	}
}

// withLabels returns the identity labels of node extended by extra
func withLabels(node NodeIdentity, extra map[string]string) map[string]string {
	labels := node.Labels()
	for k, v := range extra {
		labels[k] = v
	}
	return labels
}

// gatheredFamily returns the named family of a registry
func gatheredFamily(t *testing.T, reg *Registry, name string) *dto.MetricFamily {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not found", name)
	return nil
}

// familyNames lists the families of a registry in output order
func familyNames(t *testing.T, reg *Registry) []string {
	t.Helper()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(mfs))
	for _, mf := range mfs {
		names = append(names, mf.GetName())
	}
	return names
}
