package outputadapt

import (
	"fmt"
	"strconv"
)

// catalogue is the fixed transformer dispatch table. Every adaptation the
// adapter can perform is one of these named functions, selected by rule
// match; there is no runtime code synthesis.
var catalogue = map[TransformerName]transformerFunc{
	TransformIdentity:     identity,
	TransformListToArray:  listToArray,
	TransformArrayToList:  arrayToList,
	TransformStringToNum:  stringToNumber,
	TransformNumToString:  numberToString,
	TransformDictToList:   dictToList,
	TransformListToDict:   listToDict,
	TransformFlattenList:  flattenList,
	TransformWrapSingle:   wrapSingle,
	TransformUnwrapSingle: unwrapSingle,
	// TransformImagesToPaths is handled specially by Adapter.applyRule,
	// which needs access to the adapter's tempDir; the catalogue entry here
	// passes the raw list through so applyRule can post-process it.
	TransformImagesToPaths: identity,
}

func identity(v any) (any, error) { return v, nil }

// listToArray is identity in Go: both Go slices already serialize as JSON
// arrays. Kept as a named entry because the catalogue is config-addressable
// (a rule can name it explicitly) even though its behavior collapses to
// identity on this runtime.
func listToArray(v any) (any, error) { return v, nil }

func arrayToList(v any) (any, error) { return v, nil }

func stringToNumber(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("string_to_number: not a string: %T", v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("string_to_number: %w", err)
	}
	return f, nil
}

func numberToString(v any) (any, error) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return nil, fmt.Errorf("number_to_string: not a number: %T", v)
	}
}

func dictToList(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("dict_to_list: not a map: %T", v)
	}
	out := make([]any, 0, len(m))
	for _, val := range m {
		out = append(out, val)
	}
	return out, nil
}

func listToDict(v any) (any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("list_to_dict: not a list: %T", v)
	}
	out := make(map[string]any, len(list))
	for i, e := range list {
		out[strconv.Itoa(i)] = e
	}
	return out, nil
}

func flattenList(v any) (any, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("flatten_list: not a list: %T", v)
	}
	var out []any
	for _, e := range list {
		if nested, ok := e.([]any); ok {
			out = append(out, nested...)
		} else {
			out = append(out, e)
		}
	}
	return out, nil
}

func wrapSingle(v any) (any, error) {
	if list, ok := v.([]any); ok {
		return list, nil
	}
	return []any{v}, nil
}

func unwrapSingle(v any) (any, error) {
	list, ok := v.([]any)
	if !ok {
		return v, nil
	}
	if len(list) == 1 {
		return list[0], nil
	}
	return list, nil
}
