package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	noReading = "No Reading"
	disabled  = "Disabled"
)

// Category is an IPMI sensor category known to the exporter.
type Category int

const (
	CategoryManagement Category = iota
	CategoryTemperature
	CategorySystem
	CategoryCurrent
	CategoryVersion
	CategoryMemory
	CategoryPower
	CategoryWatchdog2
	CategoryFan
	CategoryVoltage
)

var categoryNames = [...]string{
	CategoryManagement:  "management",
	CategoryTemperature: "temperature",
	CategorySystem:      "system",
	CategoryCurrent:     "current",
	CategoryVersion:     "version",
	CategoryMemory:      "memory",
	CategoryPower:       "power",
	CategoryWatchdog2:   "watchdog2",
	CategoryFan:         "fan",
	CategoryVoltage:     "voltage",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

var categoryParams = [...]CategoryParams{
	CategoryManagement:  {Prefix: "baremetal_", UseIPMIFormat: true},
	CategoryTemperature: {Prefix: "baremetal_", Suffix: "_celsius"},
	CategorySystem:      {Prefix: "baremetal_system_", UseIPMIFormat: true},
	CategoryCurrent:     {Prefix: "baremetal_"},
	CategoryVersion:     {Prefix: "baremetal_", UseIPMIFormat: true},
	CategoryMemory:      {Prefix: "baremetal_", SpecialLabel: SpecialMemory, UseIPMIFormat: true},
	CategoryPower:       {Prefix: "baremetal_power_", UseIPMIFormat: true},
	CategoryWatchdog2:   {Prefix: "baremetal_", UseIPMIFormat: true},
	CategoryFan:         {Prefix: "baremetal_", ExtractUnit: true, SpecialLabel: SpecialFan, UseIPMIFormat: true},
	CategoryVoltage:     {Prefix: "baremetal_voltage_", ExtractUnit: true, SpecialLabel: SpecialVoltage, UseIPMIFormat: true},
}

// Params returns the naming parameters of the category.
func (c Category) Params() CategoryParams {
	return categoryParams[c]
}

// LookupCategory resolves a payload category name case-insensitively.
func LookupCategory(name string) (Category, bool) {
	lower := strings.ToLower(name)
	if lower == "watchdog" {
		return CategoryWatchdog2, true
	}
	for c, n := range categoryNames {
		if n == lower {
			return Category(c), true
		}
	}
	return 0, false
}

// SensorEntry is one IPMI sensor of a category. Nil fields were absent from the payload.
type SensorEntry struct {
	Key      string
	Reading  *string
	EntityID *string
	SensorID *string
	Status   *string
}

// CategoryContext is everything needed to turn one IPMI category into metrics.
type CategoryContext struct {
	Name    string
	Params  CategoryParams
	Entries []SensorEntry
	Node    NodeIdentity
}

// Entry returns the sensor stored under key.
func (c CategoryContext) Entry(key string) (SensorEntry, bool) {
	for _, e := range c.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return SensorEntry{}, false
}

func sensorEntriesFrom(category gjson.Result) []SensorEntry {
	var entries []SensorEntry
	category.ForEach(func(key, value gjson.Result) bool {
		entries = append(entries, SensorEntry{
			Key:      key.String(),
			Reading:  optionalString(value.Get("Sensor Reading")),
			EntityID: optionalString(value.Get("Entity ID")),
			SensorID: optionalString(value.Get("Sensor ID")),
			Status:   optionalString(value.Get("Status")),
		})
		return true
	})
	return entries
}

// ExtractLabels builds the label set of every key of a metric group. Entries lacking an
// Entity ID or Sensor ID are logged and left out of the result.
func ExtractLabels(keys []string, ctx CategoryContext, logger *slog.Logger) map[string]map[string]string {
	labels := make(map[string]map[string]string, len(keys))
	for _, key := range keys {
		entry, ok := ctx.Entry(key)
		if !ok {
			continue
		}
		if entry.EntityID == nil || entry.SensorID == nil {
			logger.Warn("sensor entry is missing identification fields",
				slog.String("category", ctx.Name), slog.String("sensor", key))
			continue
		}
		set := ctx.Node.Labels()
		set["entity_id"] = *entry.EntityID
		set["sensor_id"] = *entry.SensorID
		if entry.Status != nil && *entry.Status != "" {
			set["status"] = *entry.Status
		}
		labels[key] = set
	}
	return labels
}

var decimalRe = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)$`)

// ExtractValue decodes a sensor reading. ok is false for unreadable or disabled sensors.
func ExtractValue(entry SensorEntry, params CategoryParams) (value float64, ok bool, err error) {
	if entry.Reading == nil {
		return 0, false, fmt.Errorf("sensor reading: %w", ErrMissingField)
	}
	reading := *entry.Reading
	if reading == noReading || reading == disabled {
		return 0, false, nil
	}
	tokens := strings.Fields(reading)
	if len(tokens) == 0 {
		return 0, false, fmt.Errorf("empty sensor reading")
	}

	if !params.UseIPMIFormat || len(tokens) > 1 {
		if !decimalRe.MatchString(tokens[0]) {
			return 0, false, fmt.Errorf("no valid value in sensor reading %q", reading)
		}
		value, err = strconv.ParseFloat(tokens[0], 64)
		if err != nil {
			return 0, false, fmt.Errorf("no valid value in sensor reading %q: %w", reading, err)
		}
		return value, true, nil
	}
	if tokens[0] == "0h" {
		return 0, true, nil
	}
	return 1, true, nil
}

// ProcessCategory emits every readable sensor of one IPMI category into reg. Metrics whose
// entries are all unreadable are not declared.
func ProcessCategory(ctx CategoryContext, reg *Registry, descriptions *Descriptions, logger *slog.Logger) error {
	logger = logger.With(slog.String("category", ctx.Name))
	var emitErrors []error

	for _, group := range MetricNamesFor(ctx) {
		labels := ExtractLabels(group.Keys, ctx, logger)
		values := map[string]float64{}
		for _, key := range group.Keys {
			entry, _ := ctx.Entry(key)
			value, ok, err := ExtractValue(entry, ctx.Params)
			if err != nil {
				logger.Warn("skipping sensor", slog.String("sensor", key), slog.Any("error", err))
				continue
			}
			if ok {
				values[key] = value
			}
		}
		if len(values) == 0 {
			logger.Debug("no readable sensor for metric", slog.String("metric", group.Name))
			continue
		}

		help := descriptions.Lookup(SourceIPMI, group.Name)
		for _, key := range group.Keys {
			value, ok := values[key]
			if !ok {
				continue
			}
			set, ok := labels[key]
			if !ok {
				continue
			}
			if err := reg.Set(group.Name, help, set, value); err != nil {
				emitErrors = append(emitErrors, err)
			}
		}
	}
	return errors.Join(emitErrors...)
}

// IPMICategoryRegistry walks the categories of an IPMI payload in document order and emits
// the known ones. Unknown categories are skipped.
func IPMICategoryRegistry(payload gjson.Result, node NodeIdentity, reg *Registry, descriptions *Descriptions, logger *slog.Logger) error {
	var emitErrors []error
	payload.Get("payload").ForEach(func(name, sensors gjson.Result) bool {
		category, ok := LookupCategory(name.String())
		if !ok {
			logger.Debug("ignoring unknown ipmi category", slog.String("category", name.String()))
			return true
		}
		ctx := CategoryContext{
			Name:    category.String(),
			Params:  category.Params(),
			Entries: sensorEntriesFrom(sensors),
			Node:    node,
		}
		if err := ProcessCategory(ctx, reg, descriptions, logger); err != nil {
			emitErrors = append(emitErrors, fmt.Errorf("category %s: %w", name.String(), err))
		}
		return true
	})
	return errors.Join(emitErrors...)
}
