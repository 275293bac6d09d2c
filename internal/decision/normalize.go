package decision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"arena/internal/pkg/convert"
	"arena/internal/pkg/jsonutil"
	"arena/internal/pkg/symbol"
)

var (
	symbolKeys   = []string{"symbol", "coin", "ticker"}
	actionKeys   = []string{"action", "signal"}
	quantityKeys = []string{"quantity", "qty", "size"}
)

// NormalizeText extracts the JSON payload from raw model text and normalizes it.
// It fails with ErrInferenceMalformed only when no JSON value can be found or the
// root shape is unrecognizable.
func NormalizeText(raw string) (ParseResult, error) {
	_, answer := jsonutil.SplitReasoning(raw)
	block, ok := jsonutil.ExtractJSON(answer)
	if !ok || !gjson.Valid(block) {
		return ParseResult{}, fmt.Errorf("%w: no JSON value found", ErrInferenceMalformed)
	}
	root, err := decodeJSON([]byte(block))
	if err != nil {
		return ParseResult{}, fmt.Errorf("%w: %v", ErrInferenceMalformed, err)
	}
	return normalizeRoot(root)
}

// Normalize accepts any JSON-like value: {"decisions":[...]}, a bare array, a
// symbol-keyed object or a single decision object. Strings are treated as raw
// model text.
func Normalize(v any) (ParseResult, error) {
	if s, ok := v.(string); ok {
		return NormalizeText(s)
	}
	root, err := canonical(v)
	if err != nil {
		return ParseResult{}, fmt.Errorf("%w: %v", ErrInferenceMalformed, err)
	}
	return normalizeRoot(root)
}

func normalizeRoot(root any) (ParseResult, error) {
	elements, err := flatten(root)
	if err != nil {
		return ParseResult{}, err
	}
	var (
		out    []TradeDecision
		issues []string
	)
	for i, el := range elements {
		d, err := coerceElement(el)
		if err != nil {
			issues = append(issues, fmt.Sprintf("decision #%d: %v", i+1, err))
			continue
		}
		out = append(out, d)
	}
	switch {
	case len(out) == 0:
		return emptyResult(issues), nil
	case len(issues) > 0:
		return partialResult(out, issues), nil
	default:
		return okResult(out), nil
	}
}

// flatten resolves the root shape into an ordered list of candidate elements.
func flatten(root any) ([]any, error) {
	switch node := root.(type) {
	case []any:
		return node, nil
	case map[string]any:
		if inner, ok := node["decisions"]; ok {
			switch list := inner.(type) {
			case []any:
				return list, nil
			case map[string]any:
				return flatten(list)
			case nil:
				return nil, nil
			default:
				return nil, fmt.Errorf("%w: decisions is %T", ErrInferenceMalformed, inner)
			}
		}
		if hasAny(node, actionKeys) {
			return []any{node}, nil
		}
		return symbolKeyed(node)
	default:
		return nil, fmt.Errorf("%w: root is %T", ErrInferenceMalformed, root)
	}
}

// symbolKeyed handles {"BTC": {...}, "ETH": {...}}, injecting the key as symbol.
func symbolKeyed(node map[string]any) ([]any, error) {
	if len(node) == 0 {
		return nil, fmt.Errorf("%w: empty object", ErrInferenceMalformed)
	}
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		obj, ok := node[k].(map[string]any)
		if !ok {
			out = append(out, keyedValue{key: k, value: node[k]})
			continue
		}
		el := make(map[string]any, len(obj)+1)
		for field, v := range obj {
			el[field] = v
		}
		if !hasAny(el, symbolKeys) {
			el["symbol"] = k
		}
		out = append(out, el)
	}
	return out, nil
}

// keyedValue is a non-object entry of a symbol-keyed map; it is dropped per element.
type keyedValue struct {
	key   string
	value any
}

func coerceElement(el any) (TradeDecision, error) {
	if kv, ok := el.(keyedValue); ok {
		return TradeDecision{}, fmt.Errorf("%w: value for %q is %T, not an object", ErrInferenceMalformed, kv.key, kv.value)
	}
	obj, ok := el.(map[string]any)
	if !ok {
		return TradeDecision{}, fmt.Errorf("%w: element is %T", ErrInferenceMalformed, el)
	}
	if err := elementSchema.Validate(obj); err != nil {
		return TradeDecision{}, fmt.Errorf("%w: %s", ErrInferenceMalformed, schemaMessage(err))
	}
	action, err := ParseAction(firstString(obj, actionKeys))
	if err != nil {
		return TradeDecision{}, err
	}
	d := TradeDecision{
		Symbol:                symbol.Normalize(firstString(obj, symbolKeys)),
		Action:                action,
		InvalidationCondition: stringField(obj, "invalidation_condition"),
		Justification:         stringField(obj, "justification"),
		Reasoning:             stringField(obj, "reasoning"),
	}
	numbers := []struct {
		keys []string
		dst  *float64
	}{
		{quantityKeys, &d.Quantity},
		{[]string{"leverage"}, &d.Leverage},
		{[]string{"risk_usd"}, &d.RiskUSD},
		{[]string{"profit_target"}, &d.ProfitTarget},
		{[]string{"stop_loss"}, &d.StopLoss},
		{[]string{"confidence"}, &d.Confidence},
	}
	for _, n := range numbers {
		v, err := numberField(obj, n.keys)
		if err != nil {
			return TradeDecision{}, err
		}
		*n.dst = v
	}
	if plan, ok := obj["exit_plan"].(map[string]any); ok {
		if err := mergeExitPlan(&d, plan); err != nil {
			return TradeDecision{}, err
		}
	}
	if !d.Action.IsOpen() {
		d.Quantity, d.Leverage = 0, 0
	} else if d.Leverage == 0 {
		d.Leverage = 1
	}
	if err := d.Validate(); err != nil {
		return TradeDecision{}, err
	}
	return d, nil
}

// mergeExitPlan lifts a nested exit_plan object onto the flat fields when they are unset.
func mergeExitPlan(d *TradeDecision, plan map[string]any) error {
	target, err := numberField(plan, []string{"profit_target", "take_profit"})
	if err != nil {
		return err
	}
	stop, err := numberField(plan, []string{"stop_loss"})
	if err != nil {
		return err
	}
	if d.ProfitTarget == 0 {
		d.ProfitTarget = target
	}
	if d.StopLoss == 0 {
		d.StopLoss = stop
	}
	if d.InvalidationCondition == "" {
		d.InvalidationCondition = stringField(plan, "invalidation_condition")
	}
	return nil
}

func numberField(obj map[string]any, keys []string) (float64, error) {
	for _, k := range keys {
		raw, ok := obj[k]
		if !ok || raw == nil {
			continue
		}
		if s, isStr := raw.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		f, ok := convert.Float64(raw)
		if !ok {
			return 0, fmt.Errorf("%w: %s is not numeric (%v)", ErrInferenceMalformed, k, raw)
		}
		return f, nil
	}
	return 0, nil
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if s := stringField(obj, k); s != "" {
			return s
		}
	}
	return ""
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}

func hasAny(obj map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; ok {
			return true
		}
	}
	return false
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// canonical round-trips v through encoding/json so only JSON-native types remain.
func canonical(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return decodeJSON(raw)
}

func schemaMessage(err error) string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		return strings.TrimSpace(leaf.InstanceLocation + " " + leaf.Message)
	}
	return err.Error()
}
