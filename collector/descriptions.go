package collector

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Description sources, one JSON file each under metrics_information/.
const (
	SourceIPMI    = "ipmi"
	SourceRedfish = "redfish"
	SourceHeader  = "header"
)

//go:embed metrics_information/*.json
var metricsInformation embed.FS

// Descriptions is the read-only help text table, keyed by source then metric name.
type Descriptions struct {
	sources map[string]map[string]string
}

// LoadDescriptions reads every embedded metrics_information file.
func LoadDescriptions() (*Descriptions, error) {
	return loadDescriptionsFrom(metricsInformation, "metrics_information")
}

func loadDescriptionsFrom(fsys fs.FS, dir string) (*Descriptions, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("unable to list metric descriptions: %w", err)
	}
	d := &Descriptions{sources: map[string]map[string]string{}}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".json" {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("unable to read %s: %w", entry.Name(), err)
		}
		table := map[string]string{}
		if err := json.Unmarshal(raw, &table); err != nil {
			return nil, fmt.Errorf("unable to parse %s: %w", entry.Name(), err)
		}
		d.sources[strings.TrimSuffix(entry.Name(), ".json")] = table
	}
	return d, nil
}

// Lookup returns the help text of a metric, or "" when the source or metric is unknown.
// A nil table answers "" for everything.
func (d *Descriptions) Lookup(source, metric string) string {
	if d == nil {
		return ""
	}
	return d.sources[source][metric]
}
