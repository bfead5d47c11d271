package rules

import (
	"context"

	"github.com/sirupsen/logrus"

	"seo-audit/pkg/models"
)

// Engine runs an ordered, immutable set of rules over a site's
// snapshots. Engines are cheap value-like objects: WithRules returns a
// new engine instead of mutating the receiver, so a shared base engine
// can never be changed out from under concurrent callers.
type Engine struct {
	rules []Rule
	log   *logrus.Entry
}

// NewEngine returns an engine loaded with the base rule catalog.
func NewEngine(log *logrus.Logger) *Engine {
	return &Engine{
		rules: baseCatalog(),
		log:   log.WithField("component", "rules"),
	}
}

// WithRules returns a new engine whose rule set is the receiver's plus
// the given rules, appended in order. The receiver is not modified.
func (e *Engine) WithRules(extra ...Rule) *Engine {
	combined := make([]Rule, 0, len(e.rules)+len(extra))
	combined = append(combined, e.rules...)
	combined = append(combined, extra...)
	return &Engine{rules: combined, log: e.log}
}

// RuleNames returns the names of the engine's rules in execution order.
func (e *Engine) RuleNames() []string {
	names := make([]string, len(e.rules))
	for i, rule := range e.rules {
		names[i] = rule.Name
	}
	return names
}

// Run executes every rule against the context and returns the combined,
// deduplicated issue list. A panicking rule is logged and contributes
// nothing; it never aborts the run. Duplicate (site, type, page) keys
// keep the first occurrence.
func (e *Engine) Run(ctx context.Context, ruleCtx RuleContext) []models.Issue {
	var issues []models.Issue
	seen := make(map[models.IssueKey]bool)

	for _, rule := range e.rules {
		if ctx.Err() != nil {
			e.log.Warn("Context cancelled, stopping rule run early")
			break
		}
		for _, issue := range e.runRule(rule, ruleCtx) {
			key := issue.Key()
			if seen[key] {
				continue
			}
			seen[key] = true
			issues = append(issues, issue)
		}
	}

	e.log.WithFields(logrus.Fields{
		"site_id": ruleCtx.SiteID,
		"pages":   len(ruleCtx.Pages),
		"issues":  len(issues),
	}).Info("Rule run complete")
	return issues
}

func (e *Engine) runRule(rule Rule, ruleCtx RuleContext) (issues []models.Issue) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{
				"rule":    rule.Name,
				"site_id": ruleCtx.SiteID,
			}).Errorf("Rule panicked, skipping: %v", r)
			issues = nil
		}
	}()
	return rule.Check(ruleCtx)
}
