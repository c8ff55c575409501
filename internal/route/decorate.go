package route

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// AppendNewline wraps a handler so scalar results carry a single trailing
// newline byte, which keeps `cat` output tidy. Directory-shaped results
// pass through untouched.
func AppendNewline(h Handler) Handler {
	return Wrapped(h, func(args []string) (any, error) {
		v, err := h.Invoke(args)
		if err != nil {
			return nil, err
		}
		switch v.(type) {
		case []string, []any:
			return v, nil
		}
		if n, ok := v.(*Node); ok && n.Kind == Dir {
			return n, nil
		}
		data := EnsureNode(v).Data
		return NewFile(append(append([]byte(nil), data...), '\n')), nil
	})
}

// FormatPence wraps a handler returning an integer pence amount so the
// rendered file reads as pounds with two decimal places (1000 -> "10.00").
func FormatPence(h Handler) Handler {
	return Wrapped(h, func(args []string) (any, error) {
		v, err := h.Invoke(args)
		if err != nil {
			return nil, err
		}
		return PenceString(v)
	})
}

// PenceString renders a numeric pence value as a two-decimal-place string.
func PenceString(v any) (string, error) {
	var pence float64
	switch x := v.(type) {
	case int:
		pence = float64(x)
	case int64:
		pence = float64(x)
	case float64:
		pence = x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return "", fmt.Errorf("render %q as pence: %w", x.String(), err)
		}
		pence = f
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return "", fmt.Errorf("render %q as pence: %w", x, err)
		}
		pence = f
	default:
		return "", fmt.Errorf("cannot render %T as pence", v)
	}
	return fmt.Sprintf("%.2f", pence/100), nil
}
