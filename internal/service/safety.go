package service

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/pilot/internal/core"
	"github.com/hugo-lorenzo-mato/pilot/internal/logging"
)

// Safety enforcement levels.
const (
	SafetyLevelOff   = 0
	SafetyLevelWarn  = 1
	SafetyLevelBlock = 2
)

// Content kinds accepted by HandleUnsafeAction.
const (
	SafetyKindCommand = "command"
	SafetyKindCode    = "code"
)

// safetyPattern is one compiled rule with an optional human-readable reason.
type safetyPattern struct {
	raw    string
	re     *regexp.Regexp
	reason string
}

// CustomPattern is a runtime-registered rule, typically loaded from the
// safety patterns config file.
type CustomPattern struct {
	Pattern     string    `yaml:"pattern" json:"pattern"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	AddedAt     time.Time `yaml:"-" json:"added_at,omitzero"`
}

// builtinCommandPatterns cover destructive shell commands. Matching is
// case-insensitive.
var builtinCommandPatterns = []string{
	// Filesystem destruction
	`rm\s+(-[rf]+\s+)*(/|~/|\$\{?HOME\}?)`,
	`chmod\s+-R\S*\s+\S+\s+(/|~/|\$\{?HOME\}?)`,
	`chown\s+-R\S*\s+\S+\s+(/|~/|\$\{?HOME\}?)`,

	// System modification
	`mkfs`,
	`dd\s+.*of=/dev/([sh]d[a-z]|disk\d+)`,
	`(shutdown|reboot|halt)`,

	// Network probing
	`nmap\s+-p\s+.*`,

	// Known destructive shell idioms
	`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`,
	`echo.+\|\s*ssh`,
	`>\s*/etc/passwd`,
	`>\s*/etc/shadow`,

	// Piping fetched scripts straight into a shell
	`(wget|curl)\s+.*\.sh\s*\|\s*(bash|sh)`,

	// Destructive calls hidden inside scripts
	`os\.system\(\s*['"]rm\s+-[rf]`,
	`shutil\.rmtree\(\s*['"]?/`,
	`__import__\(['"]os['"].*system`,
}

// builtinCodePatterns cover injection-prone code snippets.
var builtinCodePatterns = []string{
	// Remote code execution
	`eval\s*\(.*(?:request|input)`,
	`exec\s*\(.*(?:request|input)`,

	// Command injection
	`subprocess\.(?:call|Popen|run)\s*\(.*\+.*(?:request|input)`,
	`os\.(?:system|popen)\s*\(.*\+.*(?:request|input)`,

	// SQL injection
	`(?:execute|executemany)\s*\(.*\+.*(?:request|input)`,
	`(?:execute|executemany)\s*\(f['"].*\{.*(?:request|input)`,

	// Unsafe deserialization
	`(?:pickle|yaml|marshal)\.loads\s*\(.*(?:request|input)`,

	// File and network operations fed by user input
	`open\s*\(.*\+.*(?:request|input)`,
	`(?:urlopen|Request)\s*\(.*\+.*(?:request|input)`,
}

// SafetyGate classifies proposed commands and code snippets before execution.
// Shared across concurrent runs; all configuration is guarded by an RWMutex
// so each check observes a consistent snapshot.
type SafetyGate struct {
	mu       sync.RWMutex
	level    int
	commands []safetyPattern
	code     []safetyPattern
	custom   []safetyPattern
	allowed  map[string]struct{}

	logger *logging.Logger
}

// SafetyOption configures a SafetyGate.
type SafetyOption func(*SafetyGate)

// WithSafetyLevel sets the initial enforcement level.
func WithSafetyLevel(level int) SafetyOption {
	return func(g *SafetyGate) {
		if level >= SafetyLevelOff && level <= SafetyLevelBlock {
			g.level = level
		}
	}
}

// WithSafetyLogger sets the logger.
func WithSafetyLogger(logger *logging.Logger) SafetyOption {
	return func(g *SafetyGate) {
		g.logger = logger
	}
}

// NewSafetyGate creates a gate with the built-in protection rules and
// enforcement set to block.
func NewSafetyGate(opts ...SafetyOption) *SafetyGate {
	g := &SafetyGate{
		level:   SafetyLevelBlock,
		allowed: make(map[string]struct{}),
		logger:  logging.NewNop(),
	}
	for _, raw := range builtinCommandPatterns {
		g.commands = append(g.commands, safetyPattern{raw: raw, re: regexp.MustCompile(`(?i)` + raw)})
	}
	for _, raw := range builtinCodePatterns {
		g.code = append(g.code, safetyPattern{raw: raw, re: regexp.MustCompile(`(?i)` + raw)})
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Level returns the current enforcement level.
func (g *SafetyGate) Level() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.level
}

// SetLevel changes the enforcement level. Values outside {0,1,2} are
// rejected.
func (g *SafetyGate) SetLevel(level int) error {
	if level < SafetyLevelOff || level > SafetyLevelBlock {
		return core.ErrValidation("SAFETY_LEVEL_RANGE", fmt.Sprintf("invalid safety level %d, must be 0, 1 or 2", level))
	}
	g.mu.Lock()
	old := g.level
	g.level = level
	g.mu.Unlock()
	g.logger.Info("safety level changed", "old", old, "new", level)
	return nil
}

// AddUnsafePattern registers a custom rule. Custom rules are evaluated
// after the built-ins.
func (g *SafetyGate) AddUnsafePattern(pattern, description string) error {
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return core.ErrValidation("SAFETY_PATTERN_INVALID", "invalid safety pattern").WithCause(err)
	}
	g.mu.Lock()
	g.custom = append(g.custom, safetyPattern{raw: pattern, re: re, reason: description})
	g.mu.Unlock()
	g.logger.Info("added custom unsafe pattern", "pattern", pattern)
	return nil
}

// SetCustomPatterns replaces the whole custom rule set, used by config
// hot-reload. Invalid entries abort the swap so a bad file never drops
// protections mid-flight.
func (g *SafetyGate) SetCustomPatterns(patterns []CustomPattern) error {
	compiled := make([]safetyPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)` + p.Pattern)
		if err != nil {
			return core.ErrValidation("SAFETY_PATTERN_INVALID", fmt.Sprintf("invalid safety pattern %q", p.Pattern)).WithCause(err)
		}
		compiled = append(compiled, safetyPattern{raw: p.Pattern, re: re, reason: p.Description})
	}
	g.mu.Lock()
	g.custom = compiled
	g.mu.Unlock()
	g.logger.Info("custom unsafe patterns replaced", "count", len(compiled))
	return nil
}

// AllowPattern whitelists one pattern string for the lifetime of a safety
// override; whitelisted patterns are skipped during checks.
func (g *SafetyGate) AllowPattern(pattern string) {
	g.mu.Lock()
	g.allowed[pattern] = struct{}{}
	g.mu.Unlock()
	g.logger.Warn("safety pattern whitelisted", "pattern", pattern)
}

// DisallowPattern removes a whitelist entry, restoring the rule.
func (g *SafetyGate) DisallowPattern(pattern string) {
	g.mu.Lock()
	delete(g.allowed, pattern)
	g.mu.Unlock()
}

// IsCommandSafe checks a terminal command against the rule sets. At level 0
// patterns are not evaluated at all.
func (g *SafetyGate) IsCommandSafe(command string) (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.level == SafetyLevelOff {
		return true, ""
	}
	if reason, matched := g.match(g.commands, command, "Command matches unsafe pattern"); matched {
		g.logger.Warn("unsafe command detected", "command", command, "reason", reason)
		return false, reason
	}
	if reason, matched := g.match(g.custom, command, "Command matches custom unsafe pattern"); matched {
		g.logger.Warn("unsafe command detected", "command", command, "reason", reason)
		return false, reason
	}
	return true, ""
}

// IsCodeSafe checks an executable code snippet against the code rules.
func (g *SafetyGate) IsCodeSafe(code string) (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.level == SafetyLevelOff {
		return true, ""
	}
	if reason, matched := g.match(g.code, code, "Code matches unsafe pattern"); matched {
		g.logger.Warn("unsafe code detected", "reason", reason)
		return false, reason
	}
	if reason, matched := g.match(g.custom, code, "Code matches custom unsafe pattern"); matched {
		g.logger.Warn("unsafe code detected", "reason", reason)
		return false, reason
	}
	return true, ""
}

// match scans a rule set in order; first hit wins. Caller holds at least a
// read lock.
func (g *SafetyGate) match(rules []safetyPattern, content, prefix string) (string, bool) {
	for _, rule := range rules {
		if _, whitelisted := g.allowed[rule.raw]; whitelisted {
			continue
		}
		if rule.re.MatchString(content) {
			if rule.reason != "" {
				return rule.reason, true
			}
			return fmt.Sprintf("%s: %s", prefix, rule.raw), true
		}
	}
	return "", false
}

// HandleUnsafeAction classifies content and maps the outcome onto the
// current enforcement level. A blocked decision is fatal for the action,
// never for the run.
func (g *SafetyGate) HandleUnsafeAction(kind, content string) core.SafetyDecision {
	var safe bool
	var reason string

	switch kind {
	case SafetyKindCommand:
		safe, reason = g.IsCommandSafe(content)
	case SafetyKindCode:
		safe, reason = g.IsCodeSafe(content)
	default:
		safe, reason = false, fmt.Sprintf("Unknown action type: %s", kind)
	}

	if safe {
		return core.SafetyDecision{
			Status:  core.SafetyAllowed,
			Message: "Action is safe",
		}
	}

	switch g.Level() {
	case SafetyLevelWarn:
		g.logger.Warn("unsafe action allowed in warn mode", "kind", kind, "reason", reason)
		return core.SafetyDecision{
			Status:  core.SafetyWarned,
			Message: fmt.Sprintf("Potentially unsafe action detected: %s", reason),
			Reason:  reason,
		}
	case SafetyLevelBlock:
		g.logger.Error("blocked unsafe action", "kind", kind, "reason", reason)
		return core.SafetyDecision{
			Status:  core.SafetyBlocked,
			Message: fmt.Sprintf("Action blocked for safety: %s", reason),
			Reason:  reason,
		}
	}

	// Unreachable while SetLevel validates its input.
	return core.SafetyDecision{
		Status:  core.SafetyCheckFailed,
		Message: fmt.Sprintf("Invalid safety level: %d", g.Level()),
	}
}
