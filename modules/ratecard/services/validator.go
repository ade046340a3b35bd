package services

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/avigne/Rates-And-Roles/modules/assignment/domain/ports"
	assignmenttypes "github.com/avigne/Rates-And-Roles/modules/assignment/domain/types"
	"github.com/google/cel-go/cel"
)

// DefaultRateExpr is the shipped validation rule for rate card payloads:
// both amounts must be present and positive.
const DefaultRateExpr = `"hourly_rate" in ctx && double(ctx["hourly_rate"]) > 0.0 && "base_salary" in ctx && double(ctx["base_salary"]) > 0.0`

var newRateCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("ctx", cel.MapType(cel.StringType, cel.StringType)))
}

// NewCELValueValidator compiles a CEL expression over `ctx` (the payload
// object flattened to a string map) into a ValueValidator. The host owns the
// expression; the store stays payload-agnostic.
func NewCELValueValidator(expr string) (ports.ValueValidator, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	env, err := newRateCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.New("expression output type mismatch")
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, err
	}

	return func(value json.RawMessage) error {
		ctxMap, err := payloadContextMap(value)
		if err != nil {
			return assignmenttypes.NewValidationErrorWithPayload("value is not a json object", value)
		}
		out, _, err := program.Eval(map[string]any{"ctx": ctxMap})
		if err != nil {
			return assignmenttypes.NewValidationErrorWithPayload("value rejected: "+err.Error(), value)
		}
		ok, isBool := out.Value().(bool)
		if !isBool || !ok {
			return assignmenttypes.NewValidationErrorWithPayload("value rejected by validation rule", value)
		}
		return nil
	}, nil
}

// payloadContextMap flattens a JSON object to map[string]string the way the
// CEL env expects: strings pass through, numbers and bools are stringified,
// nested structures are rejected.
func payloadContextMap(raw json.RawMessage) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("json object required")
	}

	out := make(map[string]string, len(obj))
	for k, val := range obj {
		switch t := val.(type) {
		case string:
			out[k] = t
		case json.Number:
			out[k] = t.String()
		case bool:
			if t {
				out[k] = "true"
			} else {
				out[k] = "false"
			}
		default:
			return nil, errors.New("nested values not supported")
		}
	}
	return out, nil
}
