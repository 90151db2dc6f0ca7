package tracing

import (
	"fmt"

	"github.com/sarchlab/axifuzz/sim"
)

// A Tracer receives the tasks of the components it is attached to.
type Tracer interface {
	StartTask(task Task)
	StepTask(task Task)
	EndTask(task Task)
}

// CollectTrace attaches t to every component. Attaching the same tracer to a
// component twice panics.
func CollectTrace(t Tracer, components ...NamedHookable) {
	for _, c := range components {
		if attached(c, t) {
			panic(fmt.Sprintf("%s is already traced by %T", c.Name(), t))
		}

		c.AcceptHook(&traceHook{t: t})
	}
}

func attached(c NamedHookable, t Tracer) bool {
	for _, h := range c.Hooks() {
		if th, ok := h.(*traceHook); ok && th.t == t {
			return true
		}
	}

	return false
}

type traceHook struct {
	t Tracer
}

// Func forwards task hooks. Components also fire hooks that carry other
// items, such as queue pushes; those are not tasks and are skipped.
func (h *traceHook) Func(ctx sim.HookCtx) {
	task, ok := ctx.Item.(Task)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosTaskStart:
		h.t.StartTask(task)
	case HookPosTaskStep:
		h.t.StepTask(task)
	case HookPosTaskEnd:
		h.t.EndTask(task)
	}
}
