package orm

import "github.com/jmapstore/core/pkg/types"

// InsertValidate applies a new document's defaults, lets its Schema derive
// computed properties (Normalize), validates the resulting document, and
// returns the UpdateField list pkg/pipeline writes. Mirrors the
// fields.insert_validate(document) call in the push_subscription/mailbox
// set.rs sources this package is grounded on.
func (r *Registry) InsertValidate(env ValidationEnv, collection types.Collection, id types.DocumentID, diff *Diff) ([]UpdateField, error) {
	schema, err := r.For(collection)
	if err != nil {
		return nil, err
	}
	for prop, v := range schema.DefaultProperties() {
		if !diff.WasSet(prop) {
			diff.Set(prop, v)
		}
	}
	if err := schema.Normalize(env, true, diff); err != nil {
		return nil, err
	}
	resolved := diff.Resulting()
	if err := schema.Validate(env, id, resolved); err != nil {
		return nil, err
	}
	return schema.IndexAs(resolved), nil
}

// MergeValidate derives computed properties for an update, validates the
// resulting document, and returns the UpdateField list pkg/pipeline
// writes. Mirrors current_fields.merge_validate(document, fields).
func (r *Registry) MergeValidate(env ValidationEnv, collection types.Collection, id types.DocumentID, diff *Diff) ([]UpdateField, error) {
	schema, err := r.For(collection)
	if err != nil {
		return nil, err
	}
	if err := schema.Normalize(env, false, diff); err != nil {
		return nil, err
	}
	resolved := diff.Resulting()
	if err := schema.Validate(env, id, resolved); err != nil {
		return nil, err
	}
	return schema.IndexAs(resolved), nil
}
