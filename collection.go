package grimoire

import "context"

// Collection is an array-like result container of entity instances.
type Collection []*Bone

// Save persists changed members sequentially.
func (c Collection) Save(ctx context.Context) error {
	for _, b := range c {
		if len(b.ChangedAttributes()) == 0 && b.Persisted() {
			continue
		}
		if err := b.Save(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ToJSON serializes every member, omitting null attributes.
func (c Collection) ToJSON() []map[string]any {
	out := make([]map[string]any, len(c))
	for i, b := range c {
		out[i] = b.ToJSON()
	}
	return out
}

// ToObject serializes every member, including null attributes.
func (c Collection) ToObject() []map[string]any {
	out := make([]map[string]any, len(c))
	for i, b := range c {
		out[i] = b.ToObject()
	}
	return out
}
