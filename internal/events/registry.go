package events

import "fmt"

var allowedEvents = map[string]struct{}{
	// block
	"block.placed":         {},
	"block.moved":          {},
	"block.removed":        {},
	"block.processing":     {},
	"block.processed":      {},
	"block.failed":         {},
	"block.config_changed": {},

	// connection
	"connection.created": {},
	"connection.removed": {},

	// pipeline
	"pipeline.validation_failed": {},
	"pipeline.run_started":       {},
	"pipeline.run_completed":     {},
	"pipeline.run_failed":        {},

	// template
	"template.saved":       {},
	"template.loaded":      {},
	"template.load_failed": {},

	// custom blocks
	"custom.class_registered": {},
	"introspection.error":     {},

	// mqtt bridge
	"mqtt.connected":        {},
	"mqtt.disconnected":     {},
	"mqtt.command_received": {},
	"mqtt.command_failed":   {},

	// system
	"system.startup":  {},
	"system.shutdown": {},
	"system.error":    {},
}

func Validate(event string) error {
	if _, ok := allowedEvents[event]; !ok {
		return fmt.Errorf("unknown event: %s", event)
	}
	return nil
}
