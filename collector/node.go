package collector

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Event types understood by the Processor.
const (
	EventIPMIMetrics    = "hardware.ipmi.metrics"
	EventRedfishMetrics = "hardware.redfish.metrics"
	EventIronicMetrics  = "ironic.metrics"
)

var (
	// ErrUnsupportedEvent is returned for notifications with an event type nothing handles.
	ErrUnsupportedEvent = errors.New("unsupported event type")
	// ErrMissingField marks a payload lacking a required field.
	ErrMissingField = errors.New("missing required field")
)

// Notification is one decoded notification. Payload keeps the raw JSON so category and
// sensor iteration follows document order.
type Notification struct {
	EventType   string
	PublisherID string
	Priority    string
	MessageID   string
	Timestamp   string
	Payload     gjson.Result
}

// ParseNotification decodes a bare notification body.
func ParseNotification(body []byte) (Notification, error) {
	if !gjson.ValidBytes(body) {
		return Notification{}, fmt.Errorf("notification is not valid JSON")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return Notification{}, fmt.Errorf("notification is not a JSON object")
	}
	eventType := doc.Get("event_type")
	if eventType.Type != gjson.String {
		return Notification{}, fmt.Errorf("event_type: %w", ErrMissingField)
	}
	return Notification{
		EventType:   eventType.String(),
		PublisherID: doc.Get("publisher_id").String(),
		Priority:    doc.Get("priority").String(),
		MessageID:   doc.Get("message_id").String(),
		Timestamp:   doc.Get("timestamp").String(),
		Payload:     doc.Get("payload"),
	}, nil
}

// NodeIdentity identifies the bare metal node a hardware payload belongs to.
type NodeIdentity struct {
	NodeName     *string
	NodeUUID     string
	InstanceUUID *string
}

// NodeIdentityFrom reads node_name, node_uuid and instance_uuid from a hardware payload.
func NodeIdentityFrom(payload gjson.Result) (NodeIdentity, error) {
	nodeUUID := payload.Get("node_uuid")
	if nodeUUID.Type != gjson.String || nodeUUID.String() == "" {
		return NodeIdentity{}, fmt.Errorf("node_uuid: %w", ErrMissingField)
	}
	node := NodeIdentity{
		NodeName:     optionalString(payload.Get("node_name")),
		NodeUUID:     canonicalUUID(nodeUUID.String()),
		InstanceUUID: optionalString(payload.Get("instance_uuid")),
	}
	if node.InstanceUUID != nil {
		node.InstanceUUID = stringPtr(canonicalUUID(*node.InstanceUUID))
	}
	return node, nil
}

// canonicalUUID rewrites the upper-case, braced and urn:uuid: spellings of a UUID to the
// lower-case hyphenated form, so one node always maps to the same labels and file.
// Anything which does not parse is returned unchanged.
func canonicalUUID(s string) string {
	id, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	return id.String()
}

// ValidUUID reports whether the node_uuid is a well-formed UUID.
func (n NodeIdentity) ValidUUID() bool {
	return uuid.Validate(n.NodeUUID) == nil
}

// Name is the node name if known, the node UUID otherwise.
func (n NodeIdentity) Name() string {
	if n.NodeName != nil && *n.NodeName != "" {
		return *n.NodeName
	}
	return n.NodeUUID
}

// Labels returns the identity labels shared by every series of a node. instance_uuid
// falls back to node_uuid when unset and node_name is left out when unknown.
func (n NodeIdentity) Labels() map[string]string {
	labels := map[string]string{
		"node_uuid":     n.NodeUUID,
		"instance_uuid": n.NodeUUID,
	}
	if n.InstanceUUID != nil && *n.InstanceUUID != "" {
		labels["instance_uuid"] = *n.InstanceUUID
	}
	if n.NodeName != nil {
		labels["node_name"] = *n.NodeName
	}
	return labels
}

func optionalString(r gjson.Result) *string {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	s := r.String()
	return &s
}

func stringPtr(s string) *string {
	return &s
}
