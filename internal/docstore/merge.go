package docstore

// DeepMerge recursively merges override into base and returns base.
// Where both sides hold a mapping under the same key the mappings merge
// recursively; any other pairing lets the override value win outright.
// base is mutated in place; a nil base is replaced by a fresh map.
func DeepMerge(base, override map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range override {
		if existing, ok := base[k].(map[string]any); ok {
			if incoming, ok := v.(map[string]any); ok {
				DeepMerge(existing, incoming)
				continue
			}
		}
		base[k] = v
	}
	return base
}
