package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Ekorz-boop/ragflow/internal/editor"
	"github.com/Ekorz-boop/ragflow/internal/events"
	"github.com/Ekorz-boop/ragflow/internal/template"
)

// Bridge connects one editor session to an MQTT broker: editor events are
// published and commands are executed against the session. Subscriptions
// are idempotent across reconnects.
type Bridge struct {
	mu         sync.RWMutex
	broker     Broker
	topics     Topics
	session    *editor.Session
	loadOpts   template.LoadOptions
	subscribed map[string]bool

	ctx context.Context
	wg  sync.WaitGroup
}

// NewBridge creates a bridge. loadOpts are used by load_template commands.
func NewBridge(broker Broker, topics Topics, session *editor.Session, loadOpts template.LoadOptions) *Bridge {
	return &Bridge{
		broker:     broker,
		topics:     topics,
		session:    session,
		loadOpts:   loadOpts,
		subscribed: make(map[string]bool),
		ctx:        context.Background(),
	}
}

// Start forwards events until ctx is done and subscribes to the command
// topics. Forwarding keeps running when the subscription fails; Resubscribe
// retries it after the next connect.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	sub := events.Subscribe()
	go func() {
		defer events.Unsubscribe(sub)
		b.forward(ctx, sub)
	}()
	return b.SubscribeCommands()
}

// Resubscribe restores subscriptions after a reconnect.
func (b *Bridge) Resubscribe() {
	b.ClearSubscriptions()
	if err := b.SubscribeCommands(); err != nil {
		slog.Warn("mqtt: resubscribe failed", "error", err)
	}
}

// SubscribeCommands subscribes to the command wildcard if not already
// subscribed.
func (b *Bridge) SubscribeCommands() error {
	topic := b.topics.Commands()

	b.mu.Lock()
	if b.subscribed[topic] {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := b.broker.Subscribe(topic, b.commandHandler()); err != nil {
		return err
	}

	b.mu.Lock()
	b.subscribed[topic] = true
	b.mu.Unlock()
	return nil
}

// IsSubscribed returns true if the topic is already subscribed.
func (b *Bridge) IsSubscribed(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subscribed[topic]
}

// ClearSubscriptions clears the subscription tracking.
// Call this on disconnect to allow re-subscription on reconnect.
func (b *Bridge) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed = make(map[string]bool)
}

// Wait blocks until in-flight commands have finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) forward(ctx context.Context, sub events.Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			b.publishEvent(e)
		}
	}
}

// publishEvent publishes one event for this session. Failures are logged,
// never emitted, so a broken broker cannot feed the event stream.
func (b *Bridge) publishEvent(e events.Event) {
	if id, ok := e.Fields["session_id"].(string); ok && id != b.session.ID() {
		return
	}
	if !b.broker.IsConnected() {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := b.broker.Publish(b.topics.Event(e.Name), data); err != nil {
		slog.Warn("mqtt: publish event failed", "event", e.Name, "error", err)
	}
}

// commandHandler runs commands off the paho callback goroutine, since a
// run can take as long as the backend does.
func (b *Bridge) commandHandler() paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		name, ok := b.topics.CommandName(msg.Topic())
		if !ok {
			return
		}
		payload := append([]byte(nil), msg.Payload()...)

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.handle(name, payload)
		}()
	}
}

func (b *Bridge) handle(name string, data []byte) {
	b.mu.RLock()
	ctx := b.ctx
	b.mu.RUnlock()

	cmd, err := ParseCommand(name, data)
	if err != nil {
		b.commandFailed(name, "", err)
		b.publishResult(CommandResult{Command: name, Error: err.Error()})
		return
	}

	events.Emit("info", "mqtt.command_received", "", map[string]interface{}{
		"session_id": b.session.ID(),
		"command":    cmd.Command,
		"request_id": cmd.RequestID,
	})

	res := b.Execute(ctx, cmd)
	if !res.OK {
		b.commandFailed(name, cmd.RequestID, errString(res.Error))
	}
	b.publishResult(res)
}

type errString string

func (e errString) Error() string { return string(e) }

func (b *Bridge) commandFailed(name, requestID string, err error) {
	events.Emit("error", "mqtt.command_failed", err.Error(), map[string]interface{}{
		"session_id": b.session.ID(),
		"command":    name,
		"request_id": requestID,
	})
}

// Execute runs a parsed command against the session.
func (b *Bridge) Execute(ctx context.Context, cmd *CommandPayload) CommandResult {
	res := CommandResult{RequestID: cmd.RequestID, Command: cmd.Command}
	var err error

	switch cmd.Command {
	case CmdRun:
		var report *editor.RunReport
		report, err = b.session.Engine().RunAll(ctx)
		res.Data = report
	case CmdValidate:
		res.Data = b.session.Validate(b.session.Debug())
	case CmdProcess:
		err = b.session.Engine().ProcessBlock(ctx, cmd.BlockID)
		if err == nil {
			blk, _ := b.session.Block(cmd.BlockID)
			res.Data = blk
		}
	case CmdDebug:
		b.session.SetDebug(*cmd.Enabled)
		res.Data = map[string]bool{"enabled": *cmd.Enabled}
	case CmdLoadTemplate:
		var report *template.LoadReport
		report, err = template.Load(ctx, b.session, cmd.Template, b.loadOpts)
		res.Data = report
	}

	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}

func (b *Bridge) publishResult(res CommandResult) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := b.broker.Publish(b.topics.Result(res.Command), data); err != nil {
		slog.Warn("mqtt: publish result failed", "command", res.Command, "error", err)
	}
}
