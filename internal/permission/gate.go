package permission

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"rice/internal/eventbus"
	"rice/internal/logging"
)

// EventPermissionDecision is the event type published for every Check
// call: one event per decision, allow or deny.
const EventPermissionDecision = "permission_decision"

// Gate evaluates Rules in descending-priority order, first match wins,
// defaulting to Deny when nothing matches (closed world).
type Gate struct {
	mu    sync.RWMutex
	rules []Rule
	bus   *eventbus.Bus
}

// New creates a Gate with no rules (every check denies) optionally
// publishing decisions to bus. bus may be nil to disable event
// publication; decisions are still written to the audit log.
func New(bus *eventbus.Bus) *Gate {
	return &Gate{bus: bus}
}

// SetRules replaces the active rule set, stably re-sorted by descending
// priority so that equal-priority rules keep their given relative order.
func (g *Gate) SetRules(rules []Rule) {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	g.mu.Lock()
	g.rules = sorted
	g.mu.Unlock()
}

// Rules returns a copy of the active rule set in evaluation order.
func (g *Gate) Rules() []Rule {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Rule, len(g.rules))
	copy(out, g.rules)
	return out
}

// Check decides whether principal may invoke toolID with parameters,
// evaluating rules in priority order and returning the first match's
// effect. No match defaults to Deny. Every decision is audited.
func (g *Gate) Check(principal, toolID string, parameters map[string]interface{}) Decision {
	g.mu.RLock()
	rules := g.rules
	g.mu.RUnlock()

	decision := Decision{Effect: EffectDeny, Reason: "no matching rule (default deny)"}
	for _, rule := range rules {
		if matches(rule, toolID, parameters) {
			decision = Decision{Effect: rule.Effect, Reason: fmt.Sprintf("matched rule %q (priority %d)", rule.ToolPattern, rule.Priority)}
			break
		}
	}

	g.audit(principal, toolID, parameters, decision)
	return decision
}

func matches(rule Rule, toolID string, parameters map[string]interface{}) bool {
	if !matchPattern(rule.ToolPattern, toolID) {
		return false
	}
	for param, allowed := range rule.ParameterPredicates {
		v, ok := parameters[param]
		if !ok {
			return false
		}
		if !containsString(allowed, stringify(v)) {
			return false
		}
	}
	return true
}

// matchPattern supports an exact match or a path.Match glob, e.g.
// "fs.*" matches "fs.read" and "fs.write" but not "fs"; "*" does not
// match across "/".
func matchPattern(pattern, toolID string) bool {
	if pattern == toolID {
		return true
	}
	if ok, _ := path.Match(pattern, toolID); ok {
		return true
	}
	return false
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (g *Gate) audit(principal, toolID string, parameters map[string]interface{}, decision Decision) {
	rec := logging.AuditRecord{
		Timestamp:  time.Now().Unix(),
		Principal:  principal,
		Action:     "tool_invoke",
		Resource:   toolID,
		Reason:     decision.Reason,
		Parameters: parameters,
	}
	if decision.Allowed() {
		rec.Outcome = logging.OutcomeSuccess
	} else {
		rec.Outcome = logging.OutcomeFailure
	}
	logging.WriteAudit(rec)

	if g.bus != nil {
		g.bus.Publish(eventbus.Event{
			Type:        EventPermissionDecision,
			AggregateID: toolID,
			Payload:     rec,
		})
	}
}
