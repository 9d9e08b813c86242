package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gofishcommon "github.com/stmcginnis/gofish/common"
	"github.com/tidwall/gjson"
)

// redfishCategory describes how one sensor category of a Redfish payload is exposed.
type redfishCategory struct {
	// Key is the category name in the payload, e.g. "Temperature".
	Key string
	// StatusMetric carries the health of each sensor.
	StatusMetric string
	// Reading optionally derives a value metric from a sensor.
	Reading func(sensorID string, sensor gjson.Result) (redfishReading, error)
}

type redfishReading struct {
	Name   string
	Value  float64
	Labels map[string]string
}

var redfishCategories = []redfishCategory{
	{Key: "Temperature", StatusMetric: "baremetal_temperature_status", Reading: temperatureReading},
	{Key: "Power", StatusMetric: "baremetal_power_status"},
	{Key: "Fan", StatusMetric: "baremetal_fan_status", Reading: fanReading},
	{Key: "Drive", StatusMetric: "baremetal_drive_status"},
}

// redfishLabelIgnoreList holds fields never copied from a sensor into its labels, so the
// node identity and sensor_id cannot be overwritten by payload fields.
var redfishLabelIgnoreList = map[string]struct{}{
	"node_name":     {},
	"node_uuid":     {},
	"instance_uuid": {},
	"sensor_id":     {},
}

// parseCommonStatusHealth maps a Redfish health to 0 (OK), 1 (Warning) or 2 (Critical).
func parseCommonStatusHealth(status gofishcommon.Health) (float64, bool) {
	switch {
	case strings.EqualFold(string(status), string(gofishcommon.OKHealth)):
		return 0, true
	case strings.EqualFold(string(status), string(gofishcommon.WarningHealth)):
		return 1, true
	case strings.EqualFold(string(status), string(gofishcommon.CriticalHealth)):
		return 2, true
	}
	return 0, false
}

// sensorEnabled reports whether a sensor is in use. Sensors without a state are kept.
func sensorEnabled(sensor gjson.Result) bool {
	state := sensor.Get("state")
	if !state.Exists() || state.Type == gjson.Null {
		return true
	}
	return strings.EqualFold(state.String(), string(gofishcommon.EnabledState))
}

// RedfishLabels builds the label set of a Redfish sensor: the node identity, the sensor
// key as sensor_id, and every scalar field of the sensor.
func RedfishLabels(sensorID string, sensor gjson.Result, node NodeIdentity) map[string]string {
	labels := node.Labels()
	sensor.ForEach(func(field, value gjson.Result) bool {
		name := sanitizeLabelName(field.String())
		if _, ignored := redfishLabelIgnoreList[name]; ignored {
			return true
		}
		if v, ok := scalarLabelValue(value); ok {
			labels[name] = v
		}
		return true
	})
	labels["sensor_id"] = sensorID
	return labels
}

// scalarLabelValue renders strings as is and numbers and booleans in their JSON form.
func scalarLabelValue(value gjson.Result) (string, bool) {
	switch value.Type {
	case gjson.String:
		return value.String(), true
	case gjson.Number, gjson.True, gjson.False:
		return value.Raw, true
	}
	return "", false
}

func sanitizeLabelName(field string) string {
	name := underscoresRe.ReplaceAllString(nonWordRe.ReplaceAllString(field, "_"), "_")
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

func temperatureReading(sensorID string, sensor gjson.Result) (redfishReading, error) {
	physicalContext := sensor.Get("physical_context")
	if physicalContext.Type != gjson.String || physicalContext.String() == "" {
		return redfishReading{}, fmt.Errorf("physical_context: %w", ErrMissingField)
	}
	reading := sensor.Get("reading_celsius")
	if reading.Type != gjson.Number {
		return redfishReading{}, fmt.Errorf("reading_celsius: %w", ErrMissingField)
	}
	labels := map[string]string{
		"entity_id": physicalContext.String(),
		"sensor_id": sensorID,
	}
	if number, ok := scalarLabelValue(sensor.Get("sensor_number")); ok {
		labels["sensor_id"] = number
	}
	name := "baremetal_temp_" + strings.ToLower(physicalContext.String()) + "_celsius"
	return redfishReading{
		Name:   underscoresRe.ReplaceAllString(nonWordRe.ReplaceAllString(name, "_"), "_"),
		Value:  reading.Float(),
		Labels: labels,
	}, nil
}

// fanReading exposes the reading of a fan as baremetal_fan_<units>, or baremetal_fan_reading
// when the sensor reports no units.
func fanReading(sensorID string, sensor gjson.Result) (redfishReading, error) {
	reading := sensor.Get("reading")
	if reading.Type != gjson.Number {
		return redfishReading{}, fmt.Errorf("reading: %w", ErrMissingField)
	}
	labels := map[string]string{"sensor_id": sensorID}
	if physicalContext := sensor.Get("physical_context"); physicalContext.Type == gjson.String && physicalContext.String() != "" {
		labels["entity_id"] = physicalContext.String()
	}
	name := "baremetal_fan_reading"
	if units := sensor.Get("reading_units"); units.Type == gjson.String && units.String() != "" {
		name = "baremetal_fan_" + strings.ToLower(units.String())
	}
	return redfishReading{
		Name:   underscoresRe.ReplaceAllString(nonWordRe.ReplaceAllString(name, "_"), "_"),
		Value:  reading.Float(),
		Labels: labels,
	}, nil
}

// RedfishCategoryRegistry emits the health and readings of the Temperature, Power, Fan and
// Drive sensors of a Redfish payload. Sensors which are not enabled are left out.
func RedfishCategoryRegistry(payload gjson.Result, node NodeIdentity, reg *Registry, descriptions *Descriptions, logger *slog.Logger) error {
	sensors := payload.Get("payload")
	var emitErrors []error

	for _, category := range redfishCategories {
		catLogger := logger.With(slog.String("category", category.Key))
		sensors.Get(category.Key).ForEach(func(key, sensor gjson.Result) bool {
			sensorID := key.String()
			if !sensor.IsObject() {
				catLogger.Warn("sensor is not an object", slog.String("sensor", sensorID))
				return true
			}
			if !sensorEnabled(sensor) {
				catLogger.Debug("skipping sensor which is not enabled", slog.String("sensor", sensorID))
				return true
			}

			if value, ok := parseCommonStatusHealth(gofishcommon.Health(sensor.Get("health").String())); ok {
				help := descriptions.Lookup(SourceRedfish, category.StatusMetric)
				if err := reg.Set(category.StatusMetric, help, RedfishLabels(sensorID, sensor, node), value); err != nil {
					emitErrors = append(emitErrors, err)
				}
			}

			if category.Reading == nil {
				return true
			}
			reading, err := category.Reading(sensorID, sensor)
			if err != nil {
				catLogger.Warn("skipping sensor reading", slog.String("sensor", sensorID), slog.Any("error", err))
				return true
			}
			labels := node.Labels()
			for k, v := range reading.Labels {
				labels[k] = v
			}
			help := descriptions.Lookup(SourceRedfish, reading.Name)
			if err := reg.Set(reading.Name, help, labels, reading.Value); err != nil {
				emitErrors = append(emitErrors, err)
			}
			return true
		})
	}
	return errors.Join(emitErrors...)
}
