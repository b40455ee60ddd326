package mqtt

import (
	"strings"
)

// Topics builds the topic tree under one prefix:
//
//	<prefix>/events/<event name>     editor events, published
//	<prefix>/commands/<command>      commands, subscribed
//	<prefix>/results/<command>       command results, published
type Topics struct {
	Prefix string
}

func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "ragflow"
	}
	return Topics{Prefix: prefix}
}

func (t Topics) Event(name string) string {
	return t.Prefix + "/events/" + name
}

// Commands is the wildcard subscription for every command.
func (t Topics) Commands() string {
	return t.Prefix + "/commands/+"
}

func (t Topics) Result(command string) string {
	return t.Prefix + "/results/" + command
}

// CommandName extracts the command from a command topic.
func (t Topics) CommandName(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/commands/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
