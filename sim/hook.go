package sim

import "log"

// HookPos names a point in the life of a hookable object where its hooks are
// invoked.
type HookPos struct {
	Name string
}

// HookCtx is passed to the hooks. Item is the object the position is about,
// for example the *Cycle at HookPosAfterCycle.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   interface{}
}

// Hookable is implemented by the objects that hooks can be attached to: the
// bridge and the engine.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
}

// HookPosBeforeCycle triggers before the devices are evaluated.
var HookPosBeforeCycle = &HookPos{Name: "BeforeCycle"}

// HookPosAfterCycle triggers after the devices are evaluated, whether the
// cycle succeeded or not.
var HookPosAfterCycle = &HookPos{Name: "AfterCycle"}

// A Hook observes a hookable object. Func runs on the goroutine that invokes
// the hooks, so it must not block.
type Hook interface {
	Func(ctx HookCtx)
}

// HookableBase implements Hookable. Hooks must be attached before the object
// starts invoking them.
type HookableBase struct {
	hooks []Hook
}

// NumHooks returns the number of attached hooks.
func (h *HookableBase) NumHooks() int {
	return len(h.hooks)
}

// Hooks returns the attached hooks in the order they are invoked.
func (h *HookableBase) Hooks() []Hook {
	return h.hooks
}

// AcceptHook attaches a hook. Attaching the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	for _, existing := range h.hooks {
		if existing == hook {
			log.Panicf("hook %T attached twice", hook)
		}
	}

	h.hooks = append(h.hooks, hook)
}

// InvokeHook calls every attached hook with ctx.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hooks {
		hook.Func(ctx)
	}
}
