package collector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openstack/ironic-prometheus-exporter/config"
	"github.com/tidwall/gjson"
)

// Result is the outcome of processing one notification.
type Result struct {
	// FileKey names the output file of the notification: "<node>-<event type>".
	FileKey  string
	Registry *Registry
}

type eventHandler func(p *Processor, payload gjson.Result, reg *Registry) (fileOwner string, err error)

var eventHandlers = map[string]eventHandler{
	EventIPMIMetrics:    handleHardwareEvent(IPMICategoryRegistry),
	EventRedfishMetrics: handleHardwareEvent(RedfishCategoryRegistry),
	EventIronicMetrics:  handleIronicEvent,
}

// Processor turns notifications into per-node registries.
type Processor struct {
	logger         *slog.Logger
	descriptions   *Descriptions
	jsonCollectors map[string][]*JSONCollector
}

// NewProcessor builds a Processor. JSON collectors are built from the json_metrics section
// of the configuration.
func NewProcessor(logger *slog.Logger, descriptions *Descriptions, jsonMetrics []config.JSONMetricsConfig) (*Processor, error) {
	p := &Processor{
		logger:         logger,
		descriptions:   descriptions,
		jsonCollectors: map[string][]*JSONCollector{},
	}
	for _, cfg := range jsonMetrics {
		jc, err := NewJSONCollector(cfg)
		if err != nil {
			return nil, err
		}
		p.jsonCollectors[jc.EventType()] = append(p.jsonCollectors[jc.EventType()], jc)
	}
	return p, nil
}

// Supports reports whether notifications of eventType produce metrics.
func (p *Processor) Supports(eventType string) bool {
	_, ok := eventHandlers[eventType]
	return ok || len(p.jsonCollectors[eventType]) > 0
}

// Process renders one notification. Any failure, including a panic raised while walking the
// payload, is returned as an error and no partial result is produced.
func (p *Processor) Process(ctx context.Context, n Notification) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = fmt.Errorf("panic while processing %s notification: %v", n.EventType, r)
		}
	}()

	if !p.Supports(n.EventType) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, n.EventType)
	}
	if !n.Payload.IsObject() {
		return Result{}, fmt.Errorf("payload: %w", ErrMissingField)
	}

	logger := p.logger.With(slog.String("event_type", n.EventType))
	reg := NewRegistry()
	var owner string
	var node *NodeIdentity

	if handler, ok := eventHandlers[n.EventType]; ok {
		owner, err = handler(p, n.Payload, reg)
		if err != nil {
			return Result{}, err
		}
	}
	if id, idErr := NodeIdentityFrom(n.Payload); idErr == nil {
		node = &id
		if owner == "" {
			owner = id.Name()
		}
	}
	if owner == "" {
		return Result{}, fmt.Errorf("unable to name output for %s notification: %w", n.EventType, ErrMissingField)
	}

	for _, jc := range p.jsonCollectors[n.EventType] {
		if err := jc.Collect(ctx, []byte(n.Payload.Raw), node, reg); err != nil {
			logger.Warn("json metrics filter reported errors", slog.Any("error", err))
		}
	}

	logger.Debug("notification processed", slog.String("owner", owner), slog.Int("metrics", reg.Len()))
	return Result{FileKey: owner + "-" + n.EventType, Registry: reg}, nil
}

type hardwareRegistry func(payload gjson.Result, node NodeIdentity, reg *Registry, descriptions *Descriptions, logger *slog.Logger) error

// handleHardwareEvent wraps a sensor dispatcher with the node identity and the last payload
// timestamp shared by all hardware events.
func handleHardwareEvent(categories hardwareRegistry) eventHandler {
	return func(p *Processor, payload gjson.Result, reg *Registry) (string, error) {
		node, err := NodeIdentityFrom(payload)
		if err != nil {
			return "", err
		}
		logger := p.logger.With(slog.String("node_uuid", node.NodeUUID))
		if !node.ValidUUID() {
			logger.Warn("node_uuid is not a well-formed UUID, metrics are keyed on it verbatim")
		}
		if err := TimestampRegistry(payload, node, reg, p.descriptions); err != nil {
			return "", err
		}
		if err := categories(payload, node, reg, p.descriptions, logger); err != nil {
			return "", err
		}
		return node.Name(), nil
	}
}

func handleIronicEvent(p *Processor, payload gjson.Result, reg *Registry) (string, error) {
	hostname := payload.Get("hostname").String()
	if hostname == "" {
		return "", fmt.Errorf("hostname: %w", ErrMissingField)
	}
	if err := IronicCategoryRegistry(payload, reg, p.logger); err != nil {
		return "", err
	}
	return hostname, nil
}
