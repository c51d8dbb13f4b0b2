package inbox

import (
	"context"
	"log"
)

// Events passed to rule guard expressions.
const (
	EventConversationCreated = "conversation_created"
	EventMessageReceived     = "message_received"
)

// RuleSource provides the active rules for an inbox, lowest priority first.
type RuleSource interface {
	ActiveRules(ctx context.Context, inboxID string) ([]*Rule, error)
	RecordExecution(ctx context.Context, ruleID string) error
}

// ActionExecutor runs a single rule action against a conversation.
type ActionExecutor interface {
	Execute(ctx context.Context, rule *Rule, action Action, conversation, record map[string]any) error
}

// RunResult summarizes one pass of the rule engine over a conversation.
type RunResult struct {
	MatchedRules []string `json:"matched_rules"`
	ActionsRun   int      `json:"actions_run"`
	Stopped      bool     `json:"stopped"`
}

// Engine scans an inbox's rules in priority order and executes the actions
// of every matching rule until one with stop_processing matches.
type Engine struct {
	rules   RuleSource
	actions ActionExecutor
}

func NewEngine(rules RuleSource, actions ActionExecutor) *Engine {
	return &Engine{rules: rules, actions: actions}
}

// Run evaluates all active rules for the conversation's inbox. A failing
// action is logged and does not abort the rule's remaining actions.
func (e *Engine) Run(ctx context.Context, inboxID string, conversation, message map[string]any, event string) (*RunResult, error) {
	rules, err := e.rules.ActiveRules(ctx, inboxID)
	if err != nil {
		return nil, err
	}

	record := BuildRecord(conversation, message)
	env := map[string]any{
		"record":       record,
		"conversation": conversation,
		"event":        event,
	}

	result := &RunResult{}
	for _, rule := range rules {
		matched, err := rule.Matches(record, env)
		if err != nil {
			log.Printf("ERROR: rule %s evaluation: %v", rule.ID, err)
			continue
		}
		if !matched {
			continue
		}

		result.MatchedRules = append(result.MatchedRules, rule.ID)
		for _, action := range rule.Actions {
			if err := e.actions.Execute(ctx, rule, action, conversation, record); err != nil {
				log.Printf("ERROR: rule %s action %s: %v", rule.ID, action.Type, err)
				continue
			}
			result.ActionsRun++
		}

		if err := e.rules.RecordExecution(ctx, rule.ID); err != nil {
			log.Printf("WARN: rule %s execution bookkeeping: %v", rule.ID, err)
		}

		if rule.StopProcessing {
			result.Stopped = true
			break
		}
	}

	return result, nil
}
