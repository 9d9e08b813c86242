package collector

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/tidwall/gjson"
)

const (
	lastPayloadTimestampMetric = "baremetal_last_payload_timestamp_seconds"
	// payloadTimestampLayout matches timestamps like 2019-03-29T20:12:22.989020.
	payloadTimestampLayout = "2006-01-02T15:04:05.999999999"
)

// ParsePayloadTimestamp parses the payload timestamp as UTC. Timestamps which do not follow
// the usual layout are handed to dateparse.
func ParsePayloadTimestamp(raw string) (time.Time, error) {
	if ts, err := time.ParseInLocation(payloadTimestampLayout, raw, time.UTC); err == nil {
		return ts, nil
	}
	ts, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse payload timestamp %q: %w", raw, err)
	}
	return ts, nil
}

// TimestampRegistry emits the time the node payload was generated as whole seconds since
// the epoch.
func TimestampRegistry(payload gjson.Result, node NodeIdentity, reg *Registry, descriptions *Descriptions) error {
	raw := payload.Get("timestamp")
	if raw.Type != gjson.String {
		return fmt.Errorf("timestamp: %w", ErrMissingField)
	}
	ts, err := ParsePayloadTimestamp(raw.String())
	if err != nil {
		return err
	}
	return reg.Set(
		lastPayloadTimestampMetric,
		descriptions.Lookup(SourceHeader, lastPayloadTimestampMetric),
		node.Labels(),
		float64(ts.Unix()),
	)
}
