package scripting

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/playgrid/server/internal/command"
	"github.com/playgrid/server/internal/queue"
	"github.com/playgrid/server/internal/world"
)

// Producer is the learner code's one path into the queue. Every issued
// command goes through the overflow controller's admission wait, so a
// runaway loop suspends here instead of exhausting memory.
type Producer struct {
	world *world.World
	ctrl  *queue.Controller // nil disables backpressure (tests, tools)
}

func NewProducer(w *world.World, ctrl *queue.Controller) *Producer {
	return &Producer{world: w, ctrl: ctrl}
}

// Issue applies the command to the model, appends it to the log, and blocks
// while the consumer is not ready. Returns ErrConsumerStalled when the
// ready signal never arrives.
func (p *Producer) Issue(cmd command.Command) error {
	p.world.Issue(cmd)
	if p.ctrl != nil {
		return p.ctrl.AwaitReady()
	}
	return nil
}

// Engine wraps a single gopher-lua VM scoped to one playback session and
// exposes the learner API as globals. Single-goroutine access only: the
// producer goroutine owns the VM for the duration of the run.
type Engine struct {
	vm       *lua.LState
	producer *Producer
	world    *world.World
	log      *zap.Logger
}

func NewEngine(w *world.World, producer *Producer, log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, producer: producer, world: w, log: log}
	e.registerAPI()
	return e
}

// RunFile executes a learner script from disk.
func (e *Engine) RunFile(path string) error {
	if err := e.vm.DoFile(path); err != nil {
		return fmt.Errorf("script %s: %w", path, err)
	}
	return nil
}

// RunSource executes a learner script from a string.
func (e *Engine) RunSource(src string) error {
	if err := e.vm.DoString(src); err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return nil
}

func (e *Engine) Close() {
	e.vm.Close()
}
