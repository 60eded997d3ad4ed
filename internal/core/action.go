package core

import "strings"

// BrowserActionPrefix marks action types routed to the browser executor.
const BrowserActionPrefix = "browser_"

// ActionTypeObserve is the neutral no-op action used as a deterministic
// fallback when a step cannot produce a usable action.
const ActionTypeObserve = "observe"

// Common desktop action types.
const (
	ActionTypeClick          = "click"
	ActionTypeClickTemplate  = "click_template"
	ActionTypeClickUIElement = "click_ui_element"
	ActionTypeType           = "type"
	ActionTypeScroll         = "scroll"
	ActionTypeHover          = "hover"
	ActionTypeDragAndDrop    = "drag_and_drop"
	ActionTypeTerminal       = "terminal"
	ActionTypeCode           = "code"
)

// Action is a tagged action request. The type tag alone decides routing;
// parameters are interpreted by the executor that receives the action.
type Action struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// NewAction creates an action of the given type.
func NewAction(actionType string) *Action {
	return &Action{Type: actionType, Params: make(map[string]interface{})}
}

// DefaultAction returns the neutral fallback action.
func DefaultAction() *Action {
	return &Action{Type: ActionTypeObserve}
}

// IsBrowser reports whether the action routes to the browser executor.
func (a *Action) IsBrowser() bool {
	return strings.HasPrefix(a.Type, BrowserActionPrefix)
}

// IsTerminal reports whether the action runs a shell command.
func (a *Action) IsTerminal() bool {
	return a.Type == ActionTypeTerminal
}

// With sets a parameter and returns the action for chaining.
func (a *Action) With(key string, value interface{}) *Action {
	if a.Params == nil {
		a.Params = make(map[string]interface{})
	}
	a.Params[key] = value
	return a
}

// ParamString returns a string parameter, if present.
func (a *Action) ParamString(key string) (string, bool) {
	if a.Params == nil {
		return "", false
	}
	v, ok := a.Params[key].(string)
	return v, ok
}

// ParamFloat returns a numeric parameter, if present.
func (a *Action) ParamFloat(key string) (float64, bool) {
	if a.Params == nil {
		return 0, false
	}
	switch v := a.Params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
