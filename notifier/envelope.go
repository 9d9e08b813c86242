package notifier

import (
	"encoding/json"
	"fmt"

	"github.com/openstack/ironic-prometheus-exporter/collector"
	"github.com/tidwall/gjson"
)

// Fields of the envelope oslo.messaging wraps notifications in.
const (
	osloVersionKey = "oslo.version"
	osloMessageKey = "oslo.message"
	osloVersion    = "2.0"
)

// DecodeMessage decodes a notification body which may be wrapped in an oslo.messaging
// envelope.
func DecodeMessage(body []byte) (collector.Notification, error) {
	if !gjson.ValidBytes(body) {
		return collector.Notification{}, fmt.Errorf("message body is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	// gjson paths treat dots as separators, so the envelope fields are looked up by key.
	var version, message gjson.Result
	doc.ForEach(func(key, value gjson.Result) bool {
		switch key.String() {
		case osloVersionKey:
			version = value
		case osloMessageKey:
			message = value
		}
		return true
	})
	if !message.Exists() {
		return collector.ParseNotification(body)
	}
	if version.String() != osloVersion {
		return collector.Notification{}, fmt.Errorf("unsupported oslo.messaging envelope version %q", version.String())
	}
	if message.Type != gjson.String {
		return collector.Notification{}, fmt.Errorf("oslo.message is not a string")
	}
	return collector.ParseNotification([]byte(message.String()))
}

// EncodeMessage wraps a notification body in an oslo.messaging envelope.
func EncodeMessage(notification []byte) ([]byte, error) {
	return json.Marshal(map[string]string{
		osloVersionKey: osloVersion,
		osloMessageKey: string(notification),
	})
}
