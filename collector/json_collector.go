package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/itchyny/gojq"
	"github.com/openstack/ironic-prometheus-exporter/config"
)

// JSONYieldedMetric is a metric-like struct built from the output of applying a JQ filter
// to a notification payload.
type JSONYieldedMetric struct {
	Name   string
	Help   string
	Value  float64
	Labels map[string]string
}

// JSONCollector applies a configured JQ filter to the payloads of one event type.
type JSONCollector struct {
	eventType string
	timeout   time.Duration
	jqQuery   *gojq.Query
}

// NewJSONCollector parses the filter of a json_metrics entry.
func NewJSONCollector(cfg config.JSONMetricsConfig) (*JSONCollector, error) {
	query, err := gojq.Parse(cfg.JQFilter)
	if err != nil {
		return nil, fmt.Errorf("jq parse error for event type %s: %w", cfg.EventType, err)
	}
	return &JSONCollector{
		eventType: cfg.EventType,
		timeout:   cfg.Timeout,
		jqQuery:   query,
	}, nil
}

// EventType is the event type the filter applies to.
func (j *JSONCollector) EventType() string {
	return j.eventType
}

// Collect runs the filter over payload and records every yielded metric in reg, merged
// with the node identity labels when node is not nil.
func (j *JSONCollector) Collect(ctx context.Context, payload []byte, node *NodeIdentity, reg *Registry) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	metrics, err := metricsFromBody(ctx, j.jqQuery, payload)
	var setErrors []error
	for _, metric := range metrics {
		labels := metric.Labels
		if node != nil {
			labels = node.Labels()
			maps.Copy(labels, metric.Labels)
		}
		if err := reg.Set(metric.Name, metric.Help, labels, metric.Value); err != nil {
			setErrors = append(setErrors, err)
		}
	}
	return errors.Join(err, errors.Join(setErrors...))
}

// metricsFromBody applies the given gojq.Query to a payload body.
// It is expected that the result of JQ application yields data in a format which may further be
// converted to a typed struct. A slice of JSONYieldedMetric is returned then for all data which meets
// this expectation.
// An item which cannot be converted is skipped, and errors encountered in this way
// are joined together and returned as a bundle.
func metricsFromBody(ctx context.Context, query *gojq.Query, jsonBody []byte) ([]JSONYieldedMetric, error) {
	var yielded []JSONYieldedMetric
	var parseErrors []error
	var intermediary map[string]any

	if err := json.Unmarshal(jsonBody, &intermediary); err != nil {
		return yielded, err
	}
	iter := query.RunWithContext(ctx, intermediary)

	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			if err, ok := err.(*gojq.HaltError); ok && err.Value() == nil {
				break
			}
			return []JSONYieldedMetric{}, err
		}
		if container, ok := v.([]any); ok {
			for _, items := range container {
				if item, ok := items.(map[string]any); ok {
					yieldedMetric, err := convertToMetric(item)
					if err != nil {
						parseErrors = append(parseErrors, err)
						continue
					}
					yielded = append(yielded, yieldedMetric)
				}
			}
		}
	}
	return yielded, errors.Join(parseErrors...)
}

// convertToMetric yields a typed struct through type assertions on one filter output item.
// name and value are required; help and labels are optional.
func convertToMetric(item map[string]any) (JSONYieldedMetric, error) {
	ret := JSONYieldedMetric{
		Labels: map[string]string{},
	}
	var convertErrors []error
	keys := slices.Sorted(maps.Keys(item))

	if iName, ok := item["name"]; ok {
		if strName, ok := iName.(string); ok {
			ret.Name = strName
		} else {
			convertErrors = append(convertErrors, fmt.Errorf("item contained a non-string name"))
		}
	} else {
		convertErrors = append(convertErrors, fmt.Errorf("item missing name, provided keys: %s", keys))
	}

	if iVal, ok := item["value"]; ok {
		switch val := iVal.(type) {
		case float64:
			ret.Value = val
		case int:
			ret.Value = float64(val)
		default:
			convertErrors = append(convertErrors, fmt.Errorf("item contained a non-numeric value"))
		}
	} else {
		convertErrors = append(convertErrors, fmt.Errorf("item missing value, provided keys: %s", keys))
	}

	if iHelp, ok := item["help"]; ok {
		if strHelp, ok := iHelp.(string); ok {
			ret.Help = strHelp
		} else {
			convertErrors = append(convertErrors, fmt.Errorf("item contained a non-string help"))
		}
	}

	if iLabels, ok := item["labels"]; ok {
		if mapLabels, ok := iLabels.(map[string]any); ok {
			for lName, lVal := range mapLabels {
				if valStr, ok := lVal.(string); ok {
					ret.Labels[lName] = valStr
				}
			}
		}
	}

	return ret, errors.Join(convertErrors...)
}
