package dedup

import (
	"sort"
	"time"

	"store-migrator/core/docstore"
	"store-migrator/core/utils"
)

// BuildGroups partitions docs by the string value of naturalKey. Documents
// without a key are ignored, as are keys held by a single document. Groups
// are returned in key order.
func BuildGroups(docs []docstore.Document, naturalKey string) []Group {
	byKey := map[string][]Candidate{}
	for _, doc := range docs {
		key := utils.ToString(doc.Fields[naturalKey])
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], Candidate{ID: doc.ID, Fields: doc.Fields})
	}

	keys := make([]string, 0, len(byKey))
	for k, members := range byKey {
		if len(members) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, Group{Key: k, Candidates: byKey[k]})
	}
	return groups
}

// Recency returns the first parseable activity timestamp, else the created
// timestamp, else the zero epoch.
func Recency(fields map[string]any, activityFields []string, createdField string) time.Time {
	for _, name := range activityFields {
		if t, ok := utils.ToTime(fields[name]); ok {
			return t
		}
	}
	if createdField != "" {
		if t, ok := utils.ToTime(fields[createdField]); ok {
			return t
		}
	}
	return time.Unix(0, 0).UTC()
}

// SelectSurvivor orders candidates by descending recency and returns the
// first one plus the rest. Ties keep their listing order.
func SelectSurvivor(candidates []Candidate, activityFields []string, createdField string) (Candidate, []Candidate) {
	ordered := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Recency = Recency(c.Fields, activityFields, createdField)
		ordered[i] = c
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Recency.After(ordered[j].Recency)
	})
	return ordered[0], ordered[1:]
}

// MergeFields copies loser fields onto a copy of survivor wherever the
// survivor value is missing, nil or "". Losers are applied in order, so an
// earlier loser wins over a later one. It returns the merged fields and the
// sorted names of the fields it filled.
func MergeFields(survivor map[string]any, losers ...map[string]any) (map[string]any, []string) {
	merged := docstore.CloneFields(survivor)
	if merged == nil {
		merged = map[string]any{}
	}

	var filled []string
	for _, loser := range losers {
		keys := make([]string, 0, len(loser))
		for k := range loser {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			v := loser[k]
			if !utils.IsEmpty(merged[k]) || utils.IsEmpty(v) {
				continue
			}
			merged[k] = docstore.CloneFields(map[string]any{k: v})[k]
			filled = append(filled, k)
		}
	}
	sort.Strings(filled)
	return merged, filled
}

// RewriteReference replaces loser ids in the field named by rule. It
// returns the new value and whether anything changed.
func RewriteReference(value any, kind ReferenceKind, losers map[string]bool, survivor string) (any, bool) {
	switch kind {
	case KindArray:
		list, ok := value.([]any)
		if !ok {
			return value, false
		}
		changed := false
		hasSurvivor := false
		out := make([]any, 0, len(list))
		for _, item := range list {
			id, _ := item.(string)
			if losers[id] {
				id, item, changed = survivor, survivor, true
			}
			if id == survivor {
				if hasSurvivor {
					changed = true
					continue
				}
				hasSurvivor = true
			}
			out = append(out, item)
		}
		if !changed {
			return value, false
		}
		return out, true
	case KindScalar:
		if id, ok := value.(string); ok && losers[id] {
			return survivor, true
		}
	}
	return value, false
}
