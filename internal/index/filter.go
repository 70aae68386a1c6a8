package index

import (
	"fmt"
	"regexp"
	"strings"
)

// Metadata keys are generated internally, never from user input, but the
// compiler still refuses anything that could break out of the quoted key.
var validKeyRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// CompileFilters renders a filter tree as a SQL boolean expression over the
// meta_data jsonb column, appending bind values to args. A nil or empty set
// compiles to "TRUE".
func CompileFilters(fs *FilterSet, args *[]any) (string, error) {
	if fs == nil {
		return "TRUE", nil
	}
	return compileSet(*fs, args)
}

func compileSet(fs FilterSet, args *[]any) (string, error) {
	if len(fs.Filters) == 0 && len(fs.Groups) == 0 {
		return "TRUE", nil
	}

	joiner := " AND "
	if fs.Condition == ConditionOr {
		joiner = " OR "
	}

	parts := make([]string, 0, len(fs.Filters)+len(fs.Groups))
	for _, f := range fs.Filters {
		clause, err := compileFilter(f, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	for _, group := range fs.Groups {
		clause, err := compileSet(group, args)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+clause+")")
	}
	return strings.Join(parts, joiner), nil
}

func compileFilter(f Filter, args *[]any) (string, error) {
	if !validKeyRe.MatchString(f.Key) {
		return "", fmt.Errorf("invalid filter key %q", f.Key)
	}
	field := fmt.Sprintf("meta_data->>'%s'", f.Key)

	switch f.Op {
	case OpEQ:
		*args = append(*args, fmt.Sprintf("%v", f.Value))
		return fmt.Sprintf("%s = $%d", field, len(*args)), nil

	case OpLTE:
		*args = append(*args, f.Value)
		return fmt.Sprintf("(%s)::numeric <= $%d", field, len(*args)), nil

	case OpIn:
		values, err := stringSlice(f.Value)
		if err != nil {
			return "", fmt.Errorf("filter %s: %w", f.Key, err)
		}
		*args = append(*args, values)
		return fmt.Sprintf("%s = ANY($%d)", field, len(*args)), nil

	case OpIsEmpty:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", field, field), nil
	}
	return "", fmt.Errorf("unknown filter operator %q", f.Op)
}

func stringSlice(v any) ([]string, error) {
	switch vals := v.(type) {
	case []string:
		return vals, nil
	case []any:
		out := make([]string, len(vals))
		for i, item := range vals {
			out[i] = fmt.Sprintf("%v", item)
		}
		return out, nil
	}
	return nil, fmt.Errorf("membership filter needs a list, got %T", v)
}
