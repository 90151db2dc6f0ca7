// Package tracing records the tasks that components work on.
package tracing

import (
	"github.com/sarchlab/axifuzz/sim"
)

// NamedHookable represent something both have a name and can be hooked
type NamedHookable interface {
	sim.Named
	sim.Hookable
	InvokeHook(sim.HookCtx)
}

// A list of hook poses for the hooks to apply to
var (
	HookPosTaskStart = &sim.HookPos{Name: "HookPosTaskStart"}
	HookPosTaskStep  = &sim.HookPos{Name: "HookPosTaskStep"}
	HookPosTaskEnd   = &sim.HookPos{Name: "HookPosTaskEnd"}
)

// Task kinds used by bus components.
const (
	KindReqOut = "req_out"
	KindReqIn  = "req_in"
)

// StartTask notifies the hooks that hook to the domain about the start of a
// task.
func StartTask(
	id string,
	parentID string,
	domain NamedHookable,
	kind string,
	what string,
	detail interface{},
) {
	if domain == nil {
		panic("domain must not be nil")
	}

	if domain.NumHooks() == 0 {
		return
	}

	allRequiredFieldsMustBeNotEmpty(id, kind, what)
	domainMustHaveName(domain)

	task := Task{
		ID:       id,
		ParentID: parentID,
		Kind:     kind,
		What:     what,
		Location: domain.Name(),
		Detail:   detail,
	}
	ctx := sim.HookCtx{
		Domain: domain,
		Item:   task,
		Pos:    HookPosTaskStart,
	}
	domain.InvokeHook(ctx)
}

func allRequiredFieldsMustBeNotEmpty(
	id string,
	kind string,
	what string,
) {
	if id == "" {
		panic("id must not be empty")
	}

	if kind == "" {
		panic("kind must not be empty")
	}

	if what == "" {
		panic("what must not be empty")
	}
}

func domainMustHaveName(domain NamedHookable) {
	if domain.Name() == "" {
		panic("domain must have a name")
	}
}

// AddTaskStep marks that a milestone has been reached when processing a task.
func AddTaskStep(
	id string,
	domain NamedHookable,
	what string,
) {
	if domain.NumHooks() == 0 {
		return
	}

	step := TaskStep{
		What: what,
	}
	task := Task{
		ID:    id,
		Steps: []TaskStep{step},
	}
	ctx := sim.HookCtx{
		Domain: domain,
		Item:   task,
		Pos:    HookPosTaskStep,
	}
	domain.InvokeHook(ctx)
}

// EndTask notifies the hooks about the end of a task.
func EndTask(
	id string,
	domain NamedHookable,
) {
	if domain.NumHooks() == 0 {
		return
	}

	task := Task{
		ID: id,
	}
	ctx := sim.HookCtx{
		Domain: domain,
		Item:   task,
		Pos:    HookPosTaskEnd,
	}
	domain.InvokeHook(ctx)
}

// TraceReqInitiate starts a "req_out" task on the side that issues a bus
// transaction and returns the task ID.
func TraceReqInitiate(
	txnID string,
	domain NamedHookable,
	what string,
	detail interface{},
) string {
	taskID := txnID + "_req_out"
	StartTask(taskID, "", domain, KindReqOut, what, detail)

	return taskID
}

// TraceReqFinalize ends the "req_out" task once the response arrives.
func TraceReqFinalize(txnID string, domain NamedHookable) {
	EndTask(txnID+"_req_out", domain)
}

// TraceReqReceive starts a "req_in" task on the side that serves a bus
// transaction and returns the task ID.
func TraceReqReceive(
	txnID string,
	domain NamedHookable,
	what string,
	detail interface{},
) string {
	taskID := txnID + "@" + domain.Name()
	StartTask(taskID, "", domain, KindReqIn, what, detail)

	return taskID
}

// TraceReqComplete ends the "req_in" task.
func TraceReqComplete(txnID string, domain NamedHookable) {
	EndTask(txnID+"@"+domain.Name(), domain)
}
