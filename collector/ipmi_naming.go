package collector

import (
	"regexp"
	"strings"
	"unicode"
)

// SpecialLabel selects a category-specific naming rule.
type SpecialLabel int

const (
	SpecialNone SpecialLabel = iota
	SpecialMemory
	SpecialFan
	SpecialVoltage
)

// CategoryParams holds the naming and decoding parameters of an IPMI sensor category.
type CategoryParams struct {
	Prefix        string
	Suffix        string
	ExtractUnit   bool
	SpecialLabel  SpecialLabel
	UseIPMIFormat bool
}

// MetricGroup is a derived metric name and the sensor keys that produced it, in payload order.
type MetricGroup struct {
	Name string
	Keys []string
}

// MetricNames is an ordered name -> keys grouping. Every key appears in exactly one group.
type MetricNames []MetricGroup

// Lookup returns the keys grouped under name.
func (m MetricNames) Lookup(name string) ([]string, bool) {
	for _, g := range m {
		if g.Name == name {
			return g.Keys, true
		}
	}
	return nil, false
}

// Names returns the metric names in first-appearance order.
func (m MetricNames) Names() []string {
	names := make([]string, 0, len(m))
	for _, g := range m {
		names = append(names, g.Name)
	}
	return names
}

var (
	digitsRe       = regexp.MustCompile(`[\d]+`)
	fanFamilyRe    = regexp.MustCompile(`fan\d*[a-z]*`)
	parenthesesRe  = regexp.MustCompile(`\(.*\)`)
	voltageValueRe = regexp.MustCompile(`([\d+]v)|([\d+].[\d*]v)`)
	nonWordRe      = regexp.MustCompile(`[\W]`)
	underscoresRe  = regexp.MustCompile(`[_]+`)
)

// DeriveMetricName turns a raw IPMI sensor key such as "Fan4A (0x3b)" and its reading into
// a metric name such as "baremetal_fan_rpm".
func DeriveMetricName(key, reading string, params CategoryParams) string {
	var label string
	switch params.SpecialLabel {
	case SpecialFan:
		e := fanFamilyRe.ReplaceAllString(strings.ToLower(key), "fan")
		e = parenthesesRe.ReplaceAllString(e, "")
		label = strings.Join(strings.Fields(e), "_")
	case SpecialVoltage:
		e := voltageValueRe.ReplaceAllString(strings.ToLower(key), "")
		label = joinDroppingLast(digitsRe.ReplaceAllString(e, ""))
		if strings.Contains(params.Prefix, label) {
			label = ""
		}
	default:
		label = joinDroppingLast(strings.ToLower(digitsRe.ReplaceAllString(key, "")))
	}

	unit := ""
	if params.ExtractUnit && reading != noReading {
		if tokens := strings.Fields(reading); len(tokens) > 1 {
			unit = "_" + strings.ToLower(tokens[len(tokens)-1])
		}
	}

	if params.SpecialLabel == SpecialMemory {
		if !strings.Contains(label, "mem") && !strings.Contains(label, "memory") {
			label = "memory_" + label
		}
	}

	name := nonWordRe.ReplaceAllString(params.Prefix+label+params.Suffix+unit, "_")
	name = underscoresRe.ReplaceAllString(name, "_")
	return strings.TrimLeftFunc(name, unicode.IsDigit)
}

// joinDroppingLast drops the trailing token (normally the hex sensor number) and joins the
// rest with underscores.
func joinDroppingLast(s string) string {
	tokens := strings.Fields(s)
	if len(tokens) > 0 {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.ReplaceAll(strings.Join(tokens, "_"), "-", "_")
}

// MetricNamesFor derives the metric name of every entry of a category and groups the keys
// sharing a name.
func MetricNamesFor(ctx CategoryContext) MetricNames {
	var names MetricNames
	index := map[string]int{}
	for _, entry := range ctx.Entries {
		reading := ""
		if entry.Reading != nil {
			reading = *entry.Reading
		}
		name := DeriveMetricName(entry.Key, reading, ctx.Params)
		if i, ok := index[name]; ok {
			names[i].Keys = append(names[i].Keys, entry.Key)
			continue
		}
		index[name] = len(names)
		names = append(names, MetricGroup{Name: name, Keys: []string{entry.Key}})
	}
	return names
}
