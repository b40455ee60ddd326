package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessRequest is the body of a block process call.
type ProcessRequest struct {
	BlockID   string         `json:"block_id"`
	Type      string         `json:"type"`
	Config    map[string]any `json:"config"`
	DebugMode bool           `json:"debug_mode"`
}

// ProcessResult is the processor's answer. Fields keeps the type-specific
// keys next to status and output.
type ProcessResult struct {
	Status  string         `json:"status"`
	Output  any            `json:"output"`
	Message string         `json:"message,omitempty"`
	Fields  map[string]any `json:"-"`
}

// Processor executes blocks and hears about new edges.
type Processor interface {
	Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error)
	NotifyConnect(ctx context.Context, source, target string) error
}

// ErrNoProcessor is returned when a non-local block is processed without a
// processor.
var ErrNoProcessor = errors.New("no processor configured")

// Stats counts engine activity since the session was created.
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Runs      int64 `json:"runs"`
	RunsOK    int64 `json:"runs_ok"`
	Pending   int64 `json:"pending"`
}

// Engine processes blocks and pushes results downstream.
type Engine struct {
	s         *Session
	processor Processor
	delay     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	runs      atomic.Int64
	runsOK    atomic.Int64
	pending   atomic.Int64
}

func newEngine(s *Session, p Processor, delay time.Duration) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{s: s, processor: p, delay: delay, ctx: ctx, cancel: cancel}
}

// chain is the visited set of one propagation run. A block is processed at
// most once per chain, so cycles and diamonds terminate.
type chain struct {
	mu      sync.Mutex
	visited map[string]bool
}

func newChain(start string) *chain {
	return &chain{visited: map[string]bool{start: true}}
}

func (c *chain) visit(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visited[id] {
		return false
	}
	c.visited[id] = true
	return true
}

// ProcessBlock processes one block and, on success, schedules its
// downstream blocks. Downstream failures are emitted and logged but never
// returned here.
func (e *Engine) ProcessBlock(ctx context.Context, id string) error {
	return e.process(ctx, id, newChain(id))
}

// Trigger processes a block in the background with a fresh chain.
func (e *Engine) Trigger(id string) {
	e.detach(func() {
		if err := e.process(e.ctx, id, newChain(id)); err != nil {
			slog.Warn("triggered processing failed", "session", e.s.id, "block", id, "error", err)
		}
	})
}

// Wait blocks until all background processing has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Stats returns activity counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Processed: e.processed.Load(),
		Failed:    e.failed.Load(),
		Runs:      e.runs.Load(),
		RunsOK:    e.runsOK.Load(),
		Pending:   e.pending.Load(),
	}
}

func (e *Engine) stop() {
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) detach(fn func()) {
	e.wg.Add(1)
	e.pending.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.pending.Add(-1)
		fn()
	}()
}

func (e *Engine) notifyConnect(source, target string) {
	if e.processor == nil {
		return
	}
	e.detach(func() {
		if err := e.processor.NotifyConnect(e.ctx, source, target); err != nil {
			slog.Warn("connect notification failed", "source", source, "target", target, "error", err)
		}
	})
}

func (e *Engine) process(ctx context.Context, id string, ch *chain) error {
	req, kind, in, err := e.s.beginProcessing(id)
	if err != nil {
		return err
	}
	e.s.emit("info", "block.processing", "", map[string]interface{}{
		"block_id": id,
		"type":     req.Type,
	})

	var output any
	if kind.Local {
		output = in["Input"]
	} else {
		output, err = e.call(ctx, req)
		if err != nil {
			return e.fail(id, req.Type, err)
		}
	}

	targets, ok := e.s.finishProcessing(id, output, kind.Local)
	if !ok {
		// removed while the call was in flight
		return nil
	}
	e.processed.Add(1)
	e.s.emit("info", "block.processed", "", map[string]interface{}{
		"block_id": id,
		"type":     req.Type,
		"targets":  len(targets),
	})

	for _, t := range targets {
		if !ch.visit(t) {
			continue
		}
		e.propagate(t, ch)
	}
	return nil
}

// propagate processes target after the settle delay in a detached
// goroutine.
func (e *Engine) propagate(target string, ch *chain) {
	e.detach(func() {
		if e.delay > 0 {
			timer := time.NewTimer(e.delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-e.ctx.Done():
				return
			}
		}
		if err := e.process(e.ctx, target, ch); err != nil {
			slog.Warn("propagation failed", "session", e.s.id, "block", target, "error", err)
		}
	})
}

func (e *Engine) call(ctx context.Context, req ProcessRequest) (any, error) {
	if e.processor == nil {
		return nil, ErrNoProcessor
	}
	res, err := e.processor.Process(ctx, req)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("empty response")
	}
	if res.Status == "error" {
		msg := res.Message
		if msg == "" {
			msg = "processor returned an error"
		}
		return nil, errors.New(msg)
	}
	if res.Output == nil && len(res.Fields) > 0 {
		return res.Fields, nil
	}
	return res.Output, nil
}

func (e *Engine) fail(id, typ string, cause error) error {
	e.failed.Add(1)
	e.s.failProcessing(id, cause)
	perr := &ProcessingError{BlockID: id, Type: typ, Err: cause}
	e.s.emit("error", "block.failed", fmt.Sprintf("Error processing %s block: %v", typ, cause), map[string]interface{}{
		"block_id": id,
		"type":     typ,
		"error":    cause.Error(),
	})
	return perr
}

// RunReport summarises a RunAll.
type RunReport struct {
	Processed []string      `json:"processed"`
	Duration  time.Duration `json:"duration"`
}

// RunAll validates the graph and processes every block in registration
// order, stopping at the first failure. Validation is relaxed in debug mode.
func (e *Engine) RunAll(ctx context.Context) (*RunReport, error) {
	e.runs.Add(1)
	debug := e.s.Debug()
	if res := e.s.Validate(debug); !res.Valid {
		e.s.emit("error", "pipeline.validation_failed", res.Error, nil)
		return nil, &ValidationError{Reason: res.Error}
	}

	start := time.Now()
	ids := e.s.blockIDs()
	e.s.emit("info", "pipeline.run_started", "", map[string]interface{}{
		"blocks": len(ids),
		"debug":  debug,
	})

	report := &RunReport{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			e.s.emit("error", "pipeline.run_failed", "Pipeline run cancelled", map[string]interface{}{
				"error": err.Error(),
			})
			return report, err
		}
		if err := e.ProcessBlock(ctx, id); err != nil {
			if errors.Is(err, ErrBlockNotFound) {
				continue
			}
			fields := map[string]interface{}{"error": err.Error()}
			var perr *ProcessingError
			if errors.As(err, &perr) {
				fields["block_id"] = perr.BlockID
				fields["type"] = perr.Type
			}
			e.s.emit("error", "pipeline.run_failed", err.Error(), fields)
			report.Duration = time.Since(start)
			return report, err
		}
		report.Processed = append(report.Processed, id)
	}

	report.Duration = time.Since(start)
	e.runsOK.Add(1)
	e.s.emit("info", "pipeline.run_completed", "", map[string]interface{}{
		"blocks":      len(report.Processed),
		"duration_ms": report.Duration.Milliseconds(),
	})
	return report, nil
}

// --- session side of processing ---

func (s *Session) blockIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reg.order...)
}

// beginProcessing marks the block as processing and builds its request from
// config plus the resolved inputs.
func (s *Session) beginProcessing(id string) (ProcessRequest, Kind, Inputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.reg.get(id)
	if !ok {
		return ProcessRequest{}, Kind{}, nil, fmt.Errorf("%w: %s", ErrBlockNotFound, id)
	}
	kind, err := s.kindOfLocked(b)
	if err != nil {
		return ProcessRequest{}, Kind{}, nil, err
	}

	in := Inputs{}
	for _, name := range b.InputNodes {
		c, ok := s.conns.byInput(id, name)
		if !ok {
			continue
		}
		src, ok := s.reg.get(c.Source)
		if !ok || !src.HasOutput {
			continue
		}
		in[name] = Coerce(src.Output)
	}

	cfg := cloneMap(b.Config)
	if b.Custom != nil {
		cfg["className"] = b.Custom.ClassName
		cfg["moduleInfo"] = b.Custom.ModuleInfo
		cfg["methods"] = append([]string(nil), b.Custom.Methods...)
		cfg["selectedMethod"] = b.Custom.SelectedMethod
		cfg["parameters"] = cloneParams(b.Custom.Parameters)
	}
	if kind.Prepare != nil {
		kind.Prepare(cfg, in)
	}

	b.Status = StatusProcessing
	b.Error = ""
	return ProcessRequest{BlockID: id, Type: b.Type, Config: cfg, DebugMode: s.debug}, kind, in, nil
}

func (s *Session) kindOfLocked(b *Block) (Kind, error) {
	if b.Type != TypeCustom {
		return LookupKind(b.Type)
	}
	if b.Custom == nil {
		return Kind{}, fmt.Errorf("custom block %s has no class", b.ID)
	}
	class, ok := s.palette.Get(b.Custom.ClassName)
	if !ok {
		class = CustomClass{ClassName: b.Custom.ClassName, Inputs: b.InputNodes, Outputs: b.OutputNodes}
	}
	return customKind(class), nil
}

// finishProcessing stores the output and returns the downstream block ids.
// ok is false when the block no longer exists.
func (s *Session) finishProcessing(id string, output any, local bool) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.reg.get(id)
	if !ok {
		return nil, false
	}
	b.Output = output
	b.HasOutput = output != nil || !local
	b.Status = StatusSuccess
	b.Error = ""
	if b.Type == TypeDisplay {
		b.Content = displayText(output)
	}

	var targets []string
	for _, c := range s.conns.from(id) {
		targets = append(targets, c.Target)
	}
	return targets, true
}

func (s *Session) failProcessing(id string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.reg.get(id); ok {
		b.Status = StatusError
		b.Error = cause.Error()
	}
}

// displayText renders a value for a display block.
func displayText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
