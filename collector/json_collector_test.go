package collector

import (
	"context"
	"testing"
	"time"

	"github.com/itchyny/gojq"
	"github.com/openstack/ironic-prometheus-exporter/config"
	"github.com/stretchr/testify/require"
	gta "gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

const powerFilter = `[.payload.Power | to_entries[] | select(.value.last_power_output_watts != null) | {
        name: "baremetal_power_output_watts",
        value: .value.last_power_output_watts,
        labels: {"sensor_id": .key},
        help: ("Power output reported by " + .value.serial_number)
      }] | sort_by(.labels.sensor_id)`

func Test_metricsFromBody(t *testing.T) {
	tT := map[string]struct {
		rawBody       []byte
		jqFilter      string
		wantErrString string
		wantMetrics   []JSONYieldedMetric
	}{
		"happy path for redfish power supplies": {
			rawBody: []byte(`{
"node_uuid": "fe81395b-1999-4ab4-8eb0-235e1ab02778",
"payload": {
  "Power": {
    "0:Power@System.Embedded.1": {
      "last_power_output_watts": 148,
      "serial_number": "CNDED0089IA7W5",
      "state": "Enabled"
    },
    "1:Power@System.Embedded.1": {
      "last_power_output_watts": null,
      "serial_number": "CNDED0089IA7W6",
      "state": "Absent"
    }
  }
}}`),
			jqFilter:      powerFilter,
			wantErrString: "",
			wantMetrics: []JSONYieldedMetric{
				{
					Name:   "baremetal_power_output_watts",
					Value:  148,
					Help:   "Power output reported by CNDED0089IA7W5",
					Labels: map[string]string{"sensor_id": "0:Power@System.Embedded.1"},
				},
			},
		},
		"errors are bubbled up": {
			rawBody: []byte(`{
"payload": {
  "Power": {
    "0:Power@System.Embedded.1": {
      "last_power_output_watts": 148,
      "serial_number": "CNDED0089IA7W5"
    }
  }
}}`),
			jqFilter: `[.payload.Power | to_entries[] | {
        name1: "baremetal_power_output_watts",
        valuefoo: .value.last_power_output_watts,
        labels: {"sensor_id": .key}
      }]`,
			wantErrString: "item missing name, provided keys: [labels name1 valuefoo]",
			wantMetrics:   nil,
		},
		"body which is not an object": {
			rawBody:       []byte(`[1, 2]`),
			jqFilter:      `.`,
			wantErrString: "cannot unmarshal array",
			wantMetrics:   nil,
		},
	}
	for tName, test := range tT {
		t.Run(tName, func(t *testing.T) {
			query, err := gojq.Parse(test.jqFilter)
			if err != nil {
				gta.Assert(t, cmp.ErrorContains(err, test.wantErrString))
			}

			got, err := metricsFromBody(context.Background(), query, test.rawBody)
			if err != nil {
				gta.Assert(t, cmp.ErrorContains(err, test.wantErrString))
			}
			gta.Assert(t, cmp.DeepEqual(test.wantMetrics, got))
		})
	}

}

func Test_convertToMetric(t *testing.T) {
	tT := map[string]struct {
		item       map[string]any
		wantMetric JSONYieldedMetric
		wantError  string
	}{
		"normal, no labels": {
			item: map[string]any{
				"name":  "foo",
				"value": 1.0,
				"help":  "bar",
			},
			wantMetric: JSONYieldedMetric{
				Name:   "foo",
				Help:   "bar",
				Value:  1.0,
				Labels: map[string]string{},
			},
			wantError: "",
		},
		"normal, labels and help": {
			item: map[string]any{
				"name":  "foo",
				"help":  "bar",
				"value": 1.0,
				"labels": map[string]any{
					"tree": "house",
				},
			},
			wantMetric: JSONYieldedMetric{
				Name:  "foo",
				Help:  "bar",
				Value: 1.0,
				Labels: map[string]string{
					"tree": "house",
				},
			},
			wantError: "",
		},
		"help is optional and integer values are accepted": {
			item: map[string]any{
				"name":  "foo",
				"value": 3,
			},
			wantMetric: JSONYieldedMetric{
				Name:   "foo",
				Value:  3,
				Labels: map[string]string{},
			},
			wantError: "",
		},
		"non-string label values are dropped": {
			item: map[string]any{
				"name":   "foo",
				"value":  1.0,
				"labels": map[string]any{"slot": 9.0, "bay": "1"},
			},
			wantMetric: JSONYieldedMetric{
				Name:   "foo",
				Value:  1.0,
				Labels: map[string]string{"bay": "1"},
			},
			wantError: "",
		},
		"unexpected input leads to empty metric and error": {
			item: map[string]any{
				"name":  1.0,
				"value": "foo",
			},
			wantMetric: JSONYieldedMetric{
				Labels: map[string]string{},
			},
			wantError: "item contained a non-string name",
		},
		"missing input leads to empty metric and error": {
			item: map[string]any{
				"foo": "name",
			},
			wantMetric: JSONYieldedMetric{
				Labels: map[string]string{},
			},
			wantError: "item missing name, provided keys: [foo]\nitem missing value, provided keys: [foo]",
		},
	}

	for tName, test := range tT {
		t.Run(tName, func(t *testing.T) {
			got, err := convertToMetric(test.item)
			gta.Assert(t, cmp.DeepEqual(test.wantMetric, got))
			if test.wantError != "" {
				gta.Assert(t, cmp.ErrorContains(err, test.wantError))
			} else {
				gta.NilError(t, err)
			}
		})
	}
}

func TestNewJSONCollectorRejectsInvalidFilter(t *testing.T) {
	_, err := NewJSONCollector(config.JSONMetricsConfig{EventType: EventRedfishMetrics, JQFilter: "[.payload"})
	gta.Assert(t, cmp.ErrorContains(err, "jq parse error for event type hardware.redfish.metrics"))
}

func TestJSONCollectorCollectMergesNodeLabels(t *testing.T) {
	jc, err := NewJSONCollector(config.JSONMetricsConfig{
		EventType: EventRedfishMetrics,
		JQFilter:  powerFilter,
		Timeout:   time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, EventRedfishMetrics, jc.EventType())

	n := NewTestDataCatalog(t).IDRAC()
	node, err := NodeIdentityFrom(n.Payload)
	require.NoError(t, err)

	reg := NewRegistry()
	require.NoError(t, jc.Collect(context.Background(), []byte(n.Payload.Raw), &node, reg))

	value, ok := reg.SampleValue("baremetal_power_output_watts", withLabels(node, map[string]string{
		"sensor_id": "0:Power@System.Embedded.1",
	}))
	require.True(t, ok)
	require.Equal(t, 148.0, value)
	require.Equal(t, "Power output reported by CNDED0089IA7W5",
		gatheredFamily(t, reg, "baremetal_power_output_watts").GetHelp())
}

func TestJSONCollectorCollectReportsInvalidNames(t *testing.T) {
	jc, err := NewJSONCollector(config.JSONMetricsConfig{
		EventType: EventIronicMetrics,
		JQFilter:  `[{name: "not a metric", value: 1}, {name: "ironic_ok", value: 2}]`,
	})
	require.NoError(t, err)

	reg := NewRegistry()
	err = jc.Collect(context.Background(), []byte(`{"hostname": "hw-arm-01"}`), nil, reg)
	gta.Assert(t, cmp.ErrorContains(err, `invalid metric name "not a metric"`))
	require.True(t, reg.Has("ironic_ok"))
	require.False(t, reg.Has("not a metric"))
}
