package grimoire

import "context"

// HookEvent names one lifecycle event. Every mutating path has a
// paired before/after event.
type HookEvent string

// The fixed hook event table.
const (
	BeforeCreate      HookEvent = "beforeCreate"
	AfterCreate       HookEvent = "afterCreate"
	BeforeUpdate      HookEvent = "beforeUpdate"
	AfterUpdate       HookEvent = "afterUpdate"
	BeforeSave        HookEvent = "beforeSave"
	AfterSave         HookEvent = "afterSave"
	BeforeRemove      HookEvent = "beforeRemove"
	AfterRemove       HookEvent = "afterRemove"
	BeforeDestroy     HookEvent = "beforeDestroy"
	AfterDestroy      HookEvent = "afterDestroy"
	BeforeUpsert      HookEvent = "beforeUpsert"
	AfterUpsert       HookEvent = "afterUpsert"
	BeforeBulkCreate  HookEvent = "beforeBulkCreate"
	AfterBulkCreate   HookEvent = "afterBulkCreate"
	BeforeBulkUpdate  HookEvent = "beforeBulkUpdate"
	AfterBulkUpdate   HookEvent = "afterBulkUpdate"
	BeforeBulkDestroy HookEvent = "beforeBulkDestroy"
	AfterBulkDestroy  HookEvent = "afterBulkDestroy"
)

// HookContext is handed to every hook. Instance events populate Bone;
// bulk events populate Spell. Values is shared with the pending
// mutation, so hooks can adjust it in place. After events additionally
// see AffectedRows.
type HookContext struct {
	Model        *Model
	Bone         *Bone
	Spell        *Spell
	Values       Values
	AffectedRows int64
}

// HookFunc is a lifecycle callback. Returning an error aborts the
// mutation and propagates.
type HookFunc func(ctx context.Context, hc *HookContext) error

type hook struct {
	name string
	fn   HookFunc
}

// hookRegistry keeps handlers per event in registration order.
type hookRegistry struct {
	hooks map[HookEvent][]hook
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{hooks: make(map[HookEvent][]hook)}
}

func (r *hookRegistry) add(event HookEvent, name string, fn HookFunc) {
	r.hooks[event] = append(r.hooks[event], hook{name: name, fn: fn})
}

func (r *hookRegistry) remove(event HookEvent, name string) {
	kept := r.hooks[event][:0]
	for _, h := range r.hooks[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	r.hooks[event] = kept
}

// dispatch runs the event's handlers sequentially in registration
// order; the first error aborts.
func (r *hookRegistry) dispatch(ctx context.Context, event HookEvent, hc *HookContext) error {
	for _, h := range r.hooks[event] {
		if err := h.fn(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}
