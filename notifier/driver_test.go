package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openstack/ironic-prometheus-exporter/collector"
	"github.com/openstack/ironic-prometheus-exporter/textfile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture reads a notification from the collector test data, wrapped in an oslo envelope
func fixture(t *testing.T, name string) []byte {
	t.Helper()

	raw, err := os.ReadFile(filepath.Join("..", "collector", "testdata", name))
	require.NoError(t, err)
	wrapped, err := EncodeMessage(raw)
	require.NoError(t, err)
	return wrapped
}

type testDriver struct {
	*FileDriver
	dir      string
	registry *prometheus.Registry
	metrics  *Metrics
}

func newTestDriver(t *testing.T) *testDriver {
	t.Helper()

	descriptions, err := collector.LoadDescriptions()
	require.NoError(t, err)
	processor, err := collector.NewProcessor(testLogger(), descriptions, nil)
	require.NoError(t, err)
	dir := t.TempDir()
	writer, err := textfile.NewWriter(dir)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	return &testDriver{
		FileDriver: NewFileDriver(processor, writer, metrics, testLogger()),
		dir:        dir,
		registry:   registry,
		metrics:    metrics,
	}
}

func (d *testDriver) files(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(d.dir)
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names
}

func TestFileDriverWritesOneFilePerNodeAndEvent(t *testing.T) {
	tT := map[string]struct {
		fixtures  []string
		wantFiles []string
	}{
		"same node twice": {
			fixtures:  []string{"notification-ipmi-1.json", "notification-ipmi-1.json"},
			wantFiles: []string{"knilab-master-u9-hardware.ipmi.metrics"},
		},
		"different nodes": {
			fixtures: []string{"notification-ipmi-1.json", "notification-ipmi-2.json"},
			wantFiles: []string{
				"knilab-master-u10-hardware.ipmi.metrics",
				"knilab-master-u9-hardware.ipmi.metrics",
			},
		},
		"same node, different event types": {
			fixtures: []string{"notification-ipmi-1.json", "notification-redfish.json"},
			wantFiles: []string{
				"knilab-master-u9-hardware.ipmi.metrics",
				"knilab-master-u9-hardware.redfish.metrics",
			},
		},
		"node without a name": {
			fixtures:  []string{"notification-ipmi-none-node_name.json"},
			wantFiles: []string{"ac2aa2fd-6e1a-41c8-a114-2084c8705228-hardware.ipmi.metrics"},
		},
		"ironic service metrics": {
			fixtures:  []string{"notification-ironic.json"},
			wantFiles: []string{"hw-arm-01-ironic.metrics"},
		},
	}
	for tName, test := range tT {
		t.Run(tName, func(t *testing.T) {
			d := newTestDriver(t)
			for _, f := range test.fixtures {
				require.NoError(t, d.Notify(context.Background(), fixture(t, f)))
			}
			assert.ElementsMatch(t, test.wantFiles, d.files(t))
		})
	}
}

func TestFileDriverFileContent(t *testing.T) {
	d := newTestDriver(t)
	require.NoError(t, d.Notify(context.Background(), fixture(t, "notification-ipmi-1.json")))

	content, err := os.ReadFile(filepath.Join(d.dir, "knilab-master-u9-hardware.ipmi.metrics"))
	require.NoError(t, err)
	assert.Contains(t, string(content), `baremetal_fan_rpm{entity_id="7.1 (System Board)",instance_uuid="ac2aa2fd-6e1a-41c8-a114-2084c8705228",node_name="knilab-master-u9",node_uuid="ac2aa2fd-6e1a-41c8-a114-2084c8705228",sensor_id="Fan4B (0x43)",status="ok"} 5880`)
	assert.Contains(t, string(content), `baremetal_last_payload_timestamp_seconds{instance_uuid="ac2aa2fd-6e1a-41c8-a114-2084c8705228",node_name="knilab-master-u9",node_uuid="ac2aa2fd-6e1a-41c8-a114-2084c8705228"} 1.553890342e+09`)
	assert.Equal(t, 1, strings.Count(string(content), "# TYPE baremetal_fan_rpm gauge"))

	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.notificationsTotal.WithLabelValues(collector.EventIPMIMetrics, resultWritten)))
	assert.Equal(t, 1, testutil.CollectAndCount(d.metrics.processingDuration))
}

func TestFileDriverIgnoresUnsupportedEvents(t *testing.T) {
	d := newTestDriver(t)
	body, err := EncodeMessage([]byte(`{"event_type": "baremetal.node.power_set.end", "payload": {"node_uuid": "ac2aa2fd-6e1a-41c8-a114-2084c8705228"}}`))
	require.NoError(t, err)

	require.NoError(t, d.Notify(context.Background(), body))
	assert.Empty(t, d.files(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.notificationsTotal.WithLabelValues("baremetal.node.power_set.end", resultIgnored)))
}

func TestFileDriverKeepsPreviousFileOnError(t *testing.T) {
	d := newTestDriver(t)
	require.NoError(t, d.Notify(context.Background(), fixture(t, "notification-ipmi-1.json")))
	path := filepath.Join(d.dir, "knilab-master-u9-hardware.ipmi.metrics")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	body, err := EncodeMessage([]byte(`{"event_type": "hardware.ipmi.metrics", "payload": {"node_name": "knilab-master-u9", "node_uuid": "ac2aa2fd-6e1a-41c8-a114-2084c8705228", "payload": {}}}`))
	require.NoError(t, err)
	err = d.Notify(context.Background(), body)
	require.ErrorIs(t, err, collector.ErrMissingField)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.notificationsTotal.WithLabelValues(collector.EventIPMIMetrics, resultError)))

	err = d.Notify(context.Background(), []byte(`not json`))
	require.ErrorContains(t, err, "unable to decode notification")
}

type failingWriter struct{}

func (failingWriter) Write(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestFileDriverWriteFailure(t *testing.T) {
	descriptions, err := collector.LoadDescriptions()
	require.NoError(t, err)
	processor, err := collector.NewProcessor(testLogger(), descriptions, nil)
	require.NoError(t, err)
	metrics := NewMetrics(prometheus.NewRegistry())
	d := NewFileDriver(processor, failingWriter{}, metrics, testLogger())

	err = d.Notify(context.Background(), fixture(t, "notification-ironic.json"))
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.notificationsTotal.WithLabelValues(collector.EventIronicMetrics, resultWriteFailed)))
}
