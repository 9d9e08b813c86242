package collector

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
)

const ironicService = "ironic"

// Help texts of the service metrics.
const (
	timerTimeHelp  = "Total time (ms) spent."
	timerCountHelp = "Sum of calls recorded."
	gaugeHelp      = "Point in time count of data point."
	counterHelp    = "Counter representing the method or data point."
)

// Ordered lookup tables for slugging driver metric keys. The first match wins for
// directories and filenames, the last match wins for driver names.
var (
	ironicDriverNames = []string{
		"ipmi", "redfish", "agent", "pxe", "ilo", "drac", "irmc", "inspector", "ansible", "ibmc", "xclarity",
	}
	ironicDriverDirs = []string{
		"redfish", "ipmi", "network", "storage", "drac", "ilo", "irmc", "intel_ipmi", "ansible", "ibmc", "xclarity",
	}
	ironicDriverFiles = []string{
		"boot", "raid", "power", "bios", "inspect", "management", "agent_base", "agent_client", "agent",
		"deploy_utils", "deploy", "ipmitool", "pxe_base", "pxe", "ramdisk", "vendor_passthru", "vendor",
	}
	ironicConductorFiles = []string{"manager", "deployments", "allocations"}
)

// unknownDriver labels driver metrics whose key names none of ironicDriverNames.
const unknownDriver = "unknown"

// ServiceMetricKey is a slugged service metric key with the labels derived from it.
type ServiceMetricKey struct {
	Name      string
	Component string
	Driver    string
}

// SlugServiceMetric rewrites a dotted ironic metric identifier such as
// "ironic.drivers.modules.ipmitool.IPMIPower.get_power_state" into a metric name and
// works out which component and driver reported it.
func SlugServiceMetric(key string) ServiceMetricKey {
	out := ServiceMetricKey{Name: key}

	switch {
	case strings.HasPrefix(key, "ironic.api"):
		out.Name = strings.ReplaceAll(key, "ironic.api.controllers.", "ironic_rest_api_")
		out.Component = "api"
	case strings.HasPrefix(key, "ironic.drivers.modules"):
		formatted := strings.ReplaceAll(key, "ironic.drivers.modules.", "ironic.")
		for _, d := range ironicDriverNames {
			if strings.Contains(key, d) {
				out.Driver = d
			}
		}
		for _, dir := range ironicDriverDirs {
			if strings.Contains(formatted, dir) {
				formatted = strings.ReplaceAll(formatted, "."+dir+".", ".")
				break
			}
		}
		for _, file := range ironicDriverFiles {
			if strings.Contains(formatted, file) {
				formatted = strings.ReplaceAll(formatted, "."+file+".", ".")
				break
			}
		}
		out.Name = formatted
		out.Component = "driver"
	case strings.HasPrefix(key, "ironic.conductor"):
		out.Name = strings.ReplaceAll(key, "ironic.conductor.manager.", "ironic_")
		for _, file := range ironicConductorFiles {
			if strings.Contains(key, file) {
				out.Name = strings.ReplaceAll(key, "conductor."+file, "")
				break
			}
		}
		out.Component = "conductor"
	}

	out.Name = strings.ReplaceAll(out.Name, ".", "_")
	out.Name = strings.ReplaceAll(out.Name, "__", "_")
	out.Name = strings.ToLower(out.Name)
	return out
}

// labels builds the series labels of a service metric. Driver metrics always carry a driver
// label, set to unknownDriver when the key names no known driver, so every series of one
// driver metric has the same label names.
func (k ServiceMetricKey) labels(hostname string) map[string]string {
	labels := map[string]string{
		"hostname": hostname,
		"service":  ironicService,
	}
	if k.Component != "" {
		labels["component"] = k.Component
	}
	if k.Component == "driver" {
		labels["driver"] = k.Driver
		if k.Driver == "" {
			labels["driver"] = unknownDriver
		}
	}
	return labels
}

// IronicCategoryRegistry emits the service metrics of an ironic.metrics payload. Timers
// become a _time and a _call_count gauge, counters are exposed as gauges.
func IronicCategoryRegistry(payload gjson.Result, reg *Registry, logger *slog.Logger) error {
	hostname := payload.Get("hostname").String()
	var emitErrors []error

	payload.Get("payload").ForEach(func(k, v gjson.Result) bool {
		key := SlugServiceMetric(k.String())
		labels := key.labels(hostname)
		metricType := v.Get("type").String()
		logger.Debug("creating service metric", slog.String("key", k.String()), slog.String("metric", key.Name))

		var err error
		switch metricType {
		case "timer":
			err = errors.Join(
				setNumeric(reg, key.Name+"_time", timerTimeHelp, labels, v.Get("sum")),
				setNumeric(reg, key.Name+"_call_count", timerCountHelp, labels, v.Get("count")),
			)
		case "gauge":
			err = setNumeric(reg, key.Name, gaugeHelp, labels, v.Get("value"))
		case "counter":
			err = setNumeric(reg, key.Name, counterHelp, labels, v.Get("count"))
		default:
			logger.Warn("unknown service metric type", slog.String("key", k.String()), slog.String("type", metricType))
			return true
		}
		if err != nil {
			emitErrors = append(emitErrors, fmt.Errorf("service metric %s: %w", k.String(), err))
		}
		return true
	})
	return errors.Join(emitErrors...)
}

func setNumeric(reg *Registry, name, help string, labels map[string]string, v gjson.Result) error {
	if v.Type != gjson.Number {
		return fmt.Errorf("%s: %w", name, ErrMissingField)
	}
	return reg.Set(name, help, labels, v.Float())
}
