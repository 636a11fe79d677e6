package navigation

import (
	"context"
	"fmt"

	"crowdmarch/server/logging"
)

const (
	// EventGoalUnreachable is emitted when a flowfield build fails because
	// the goal cell is blocked or out of bounds.
	EventGoalUnreachable logging.EventType = "navigation.goal_unreachable"
	// EventAgentSanitized is emitted when a malformed agent record is
	// clamped or excluded at the pipeline ingestion boundary.
	EventAgentSanitized logging.EventType = "navigation.agent_sanitized"
	// EventFlowFieldBuilt is emitted after a flowfield build completes.
	EventFlowFieldBuilt logging.EventType = "navigation.flowfield_built"
	// EventTickBudgetOverrun is emitted when a navigation tick exceeds its
	// wall budget. Overruns are performance bugs, never handled by
	// cutting work short.
	EventTickBudgetOverrun logging.EventType = "navigation.tick_budget_overrun"
)

func goalRef(col, row int) logging.EntityRef {
	return logging.EntityRef{ID: fmt.Sprintf("%d,%d", col, row), Kind: logging.EntityKindGoal}
}

// GoalUnreachablePayload carries the failed goal coordinates.
type GoalUnreachablePayload struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// GoalUnreachable publishes the order-layer diagnostic for a failed goal.
func GoalUnreachable(ctx context.Context, pub logging.Publisher, tick uint64, payload GoalUnreachablePayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventGoalUnreachable,
		Tick:     tick,
		Actor:    goalRef(payload.Col, payload.Row),
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNavigation,
		Payload:  payload,
	})
}

// AgentSanitizedPayload describes what was wrong with an agent record and
// whether the agent was excluded from the tick or merely clamped.
type AgentSanitizedPayload struct {
	Reason   string `json:"reason"`
	Excluded bool   `json:"excluded"`
}

// AgentSanitized publishes a non-fatal diagnostic for a malformed agent.
func AgentSanitized(ctx context.Context, pub logging.Publisher, tick uint64, agentID string, payload AgentSanitizedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAgentSanitized,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: agentID, Kind: logging.EntityKindAgent},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNavigation,
		Payload:  payload,
	})
}

// FlowFieldBuiltPayload captures build cost and outcome.
type FlowFieldBuiltPayload struct {
	Col            int    `json:"col"`
	Row            int    `json:"row"`
	DurationMicros int64  `json:"durationMicros"`
	CacheBuilds    uint64 `json:"cacheBuilds"`
}

// FlowFieldBuilt publishes a debug event after a build completes.
func FlowFieldBuilt(ctx context.Context, pub logging.Publisher, tick uint64, payload FlowFieldBuiltPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFlowFieldBuilt,
		Tick:     tick,
		Actor:    goalRef(payload.Col, payload.Row),
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNavigation,
		Payload:  payload,
	})
}

// TickBudgetOverrunPayload captures timing details for a budget breach.
type TickBudgetOverrunPayload struct {
	DurationMillis int64   `json:"durationMillis"`
	BudgetMillis   int64   `json:"budgetMillis"`
	Ratio          float64 `json:"ratio"`
}

// TickBudgetOverrun publishes a warning when a navigation tick exceeds
// the configured budget.
func TickBudgetOverrun(ctx context.Context, pub logging.Publisher, tick uint64, payload TickBudgetOverrunPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventTickBudgetOverrun,
		Tick:     tick,
		Severity: logging.SeverityWarn,
		Category: logging.CategorySimulation,
		Payload:  payload,
	})
}
