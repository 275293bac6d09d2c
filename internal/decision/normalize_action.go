package decision

import "strings"

// NormalizeAction folds the vocabulary models actually emit onto the four
// canonical tokens. Unknown tokens are returned cleaned but unmapped.
func NormalizeAction(a string) string {
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	a = strings.ToLower(strings.TrimSpace(a))
	a = replacer.Replace(a)
	switch a {
	case "hold", "wait", "stay", "neutral", "none", "no_action", "do_nothing", "keep":
		return "hold"
	case "buy", "long", "open", "enter_long", "go_long", "open_long", "buy_long", "buy_to_enter", "buy_to_open":
		return "open_long"
	case "sell", "short", "enter_short", "go_short", "open_short", "sell_short", "sell_to_enter", "sell_to_open":
		return "open_short"
	case "close", "exit", "flat", "close_position", "close_long", "close_short", "exit_long", "exit_short",
		"flat_long", "flat_short", "take_profit", "stop_out", "sell_to_close", "buy_to_close":
		return "close"
	default:
		return a
	}
}
