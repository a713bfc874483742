package hydration

import "context"

// hydrateRoot places the root entity of alias into the result, once per identity.
func (r *Run) hydrateRoot(ctx context.Context, alias string, data *rowData, current map[string]resolved) error {
	if !data.nonEmpty[alias] {
		if r.result.kind == MixedResult {
			row := &MixedRow{}
			r.result.appendRow(row)
			r.lastProduced = row
		}
		return nil
	}

	token := data.ids.token(alias)
	if entry, ok := r.rootIndex[alias][token]; ok {
		current[alias] = entry.ref
		if entry.row != nil {
			r.lastProduced = entry.row
		}
		return nil
	}

	ref, err := r.resolveEntity(ctx, alias, data)
	if err != nil {
		return err
	}
	entry := &rootEntry{ref: ref}

	indexBy := r.rsm.IndexBy(alias)
	switch r.result.kind {
	case ListResult:
		r.result.appendEntity(ref.entity)
	case IndexedResult:
		var key any = len(r.result.keys)
		if indexBy != "" {
			key = data.bucket(alias).fields[indexBy]
		}
		r.result.setIndexed(key, ref.entity)
	case MixedResult:
		row := &MixedRow{Entity: ref.entity}
		if indexBy != "" {
			row.Key = data.bucket(alias).fields[indexBy]
		}
		r.result.appendRow(row)
		entry.row = row
		r.lastProduced = row
	}

	r.rootIndex[alias][token] = entry
	current[alias] = ref
	return nil
}

// attachScalars adds the scalar values of a row to the mixed tuple produced
// by the row, or to a new scalar-only tuple. Non-mixed results drop them.
func (r *Run) attachScalars(scalars []scalarValue) {
	if r.result.kind != MixedResult {
		return
	}
	row := r.lastProduced
	if len(r.rootAliases) == 0 || row == nil {
		row = &MixedRow{}
		r.result.appendRow(row)
	}
	for _, s := range scalars {
		row.setScalar(s.name, s.value)
	}
}
