package migrate

import (
	"iter"
	"sort"
	"strconv"
	"strings"

	"store-migrator/core/docstore"
	"store-migrator/core/treestore"
)

// DisabledField turns off the created-timestamp stamp for a collection.
const DisabledField = "-"

// Rule shapes the documents of one target collection.
type Rule struct {
	// Source is the tree path read for the collection, "/" separated.
	// Defaults to the collection name.
	Source string `mapstructure:"source" yaml:"source"`
	// Collection is the target collection.
	Collection string `mapstructure:"collection" yaml:"collection"`
	// IDField receives a copy of the document id.
	IDField string `mapstructure:"id_field" yaml:"id_field"`
	// KeySetFields are maps turned into the sorted list of their keys.
	KeySetFields []string `mapstructure:"key_set_fields" yaml:"key_set_fields"`
	// KeyedListFields maps a field holding a map of maps to the field
	// name its keys are stored under when it becomes a list.
	KeyedListFields map[string]string `mapstructure:"keyed_list_fields" yaml:"keyed_list_fields"`
	// Stamp fields are always set to the server timestamp.
	Stamp []string `mapstructure:"stamp" yaml:"stamp"`
	// ScalarField holds a scalar child value. Defaults to "value".
	ScalarField string `mapstructure:"scalar_field" yaml:"scalar_field"`
	// CreatedField is stamped when missing. Empty uses the transformer
	// default; DisabledField turns it off.
	CreatedField string `mapstructure:"created_field" yaml:"created_field"`
}

// SourcePath returns the tree path of the rule.
func (r Rule) SourcePath() []string {
	src := r.Source
	if src == "" {
		src = r.Collection
	}
	return splitPath(src)
}

// Transformer turns tree children into documents.
type Transformer struct {
	rules        map[string]Rule
	createdField string
}

// NewTransformer builds a transformer. createdField is the default
// timestamp field stamped when missing; empty disables it.
func NewTransformer(createdField string, rules ...Rule) *Transformer {
	t := &Transformer{rules: make(map[string]Rule, len(rules)), createdField: createdField}
	for _, r := range rules {
		t.rules[r.Collection] = r
	}
	return t
}

// Rule returns the rule of a collection, or an empty rule.
func (t *Transformer) Rule(collection string) Rule {
	r, ok := t.rules[collection]
	if !ok {
		r = Rule{Collection: collection}
	}
	return r
}

// Transform yields one document per non-null child of root, in key order.
// The sequence can be ranged over any number of times.
func (t *Transformer) Transform(root treestore.Node, collection string) iter.Seq[docstore.Document] {
	rule := t.Rule(collection)
	return func(yield func(docstore.Document) bool) {
		for _, child := range children(root.Value) {
			if child.value == nil {
				continue
			}
			doc := docstore.Document{
				Collection: collection,
				ID:         child.key,
				Fields:     t.fields(rule, child.key, child.value),
			}
			if !yield(doc) {
				return
			}
		}
	}
}

func (t *Transformer) fields(rule Rule, id string, value any) map[string]any {
	var fields map[string]any

	raw, ok := value.(map[string]any)
	if !ok {
		name := rule.ScalarField
		if name == "" {
			name = "value"
		}
		fields = map[string]any{name: convertValue(value)}
	} else {
		fields = make(map[string]any, len(raw)+2)
		keySets := toSet(rule.KeySetFields)
		for k, v := range raw {
			if v == nil {
				continue
			}
			switch {
			case keySets[k]:
				fields[k] = keySet(v)
			case rule.KeyedListFields[k] != "":
				fields[k] = keyedList(v, rule.KeyedListFields[k])
			default:
				fields[k] = convertValue(v)
			}
		}
	}

	if rule.IDField != "" {
		fields[rule.IDField] = id
	}

	created := rule.CreatedField
	if created == "" {
		created = t.createdField
	}
	if created != "" && created != DisabledField {
		if v, present := fields[created]; !present || v == nil {
			fields[created] = docstore.ServerTimestamp
		}
	}

	for _, name := range rule.Stamp {
		fields[name] = docstore.ServerTimestamp
	}
	return fields
}

type child struct {
	key   string
	value any
}

// children lists the immediate children of a tree value sorted by key.
// Lists come from index-keyed maps and keep their index as key.
func children(value any) []child {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]child, 0, len(keys))
		for _, k := range keys {
			out = append(out, child{key: k, value: v[k]})
		}
		return out
	case []any:
		out := make([]child, 0, len(v))
		for i, item := range v {
			out = append(out, child{key: strconv.Itoa(i), value: item})
		}
		return out
	default:
		return nil
	}
}

// convertValue copies a tree value into document form. Maps whose keys are
// all non-negative integers become lists ordered by key; gaps collapse.
func convertValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if indices, ok := numericKeys(v); ok {
			out := make([]any, 0, len(indices))
			for _, idx := range indices {
				if item := v[idx.key]; item != nil {
					out = append(out, convertValue(item))
				}
			}
			return out
		}
		out := make(map[string]any, len(v))
		for k, item := range v {
			if item == nil {
				continue
			}
			out[k] = convertValue(item)
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if item != nil {
				out = append(out, convertValue(item))
			}
		}
		return out
	default:
		return v
	}
}

type index struct {
	key string
	n   uint64
}

func numericKeys(m map[string]any) ([]index, bool) {
	if len(m) == 0 {
		return nil, false
	}
	out := make([]index, 0, len(m))
	for k := range m {
		if k == "" || (len(k) > 1 && k[0] == '0') {
			return nil, false
		}
		n, err := strconv.ParseUint(k, 10, 64)
		if err != nil {
			return nil, false
		}
		out = append(out, index{key: k, n: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })
	return out, true
}

func keySet(value any) any {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k, item := range v {
			if item != nil {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out
	case []any:
		var out []any
		for i, item := range v {
			if item != nil {
				out = append(out, strconv.Itoa(i))
			}
		}
		return out
	default:
		return convertValue(value)
	}
}

func keyedList(value any, keyField string) any {
	var entries []child
	switch v := value.(type) {
	case map[string]any, []any:
		entries = children(v)
	default:
		return convertValue(value)
	}

	out := make([]any, 0, len(entries))
	for _, e := range entries {
		item, ok := e.value.(map[string]any)
		if !ok {
			continue
		}
		converted, ok := convertValue(item).(map[string]any)
		if !ok {
			continue
		}
		if _, present := converted[keyField]; !present {
			converted[keyField] = e.key
		}
		out = append(out, converted)
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

func splitPath(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
}
