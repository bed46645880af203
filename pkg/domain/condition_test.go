package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitel/journey/pkg/domain"
)

func TestConditionEvaluate(t *testing.T) {
	ctx := map[string]any{
		"plan":     "fiber_1g",
		"score":    75,
		"ratio":    0.5,
		"tags":     []any{"vip", "fiber"},
		"city":     "Porto",
		"nickname": "",
	}

	cases := []struct {
		name string
		cond domain.Condition
		want bool
	}{
		{"equals string", domain.Condition{Field: "plan", Operator: domain.OpEquals, Value: "fiber_1g"}, true},
		{"equals mismatch", domain.Condition{Field: "plan", Operator: domain.OpEquals, Value: "dsl"}, false},
		{"equals numeric coercion", domain.Condition{Field: "score", Operator: domain.OpEquals, Value: 75.0}, true},
		{"not_equals", domain.Condition{Field: "plan", Operator: domain.OpNotEquals, Value: "dsl"}, true},
		{"contains substring", domain.Condition{Field: "plan", Operator: domain.OpContains, Value: "fiber"}, true},
		{"contains list member", domain.Condition{Field: "tags", Operator: domain.OpContains, Value: "vip"}, true},
		{"not_contains", domain.Condition{Field: "tags", Operator: domain.OpNotContains, Value: "churned"}, true},
		{"greater_than", domain.Condition{Field: "score", Operator: domain.OpGreaterThan, Value: 50}, true},
		{"greater_than equal is false", domain.Condition{Field: "score", Operator: domain.OpGreaterThan, Value: 75}, false},
		{"greater_than non-numeric", domain.Condition{Field: "plan", Operator: domain.OpGreaterThan, Value: 10}, false},
		{"less_than", domain.Condition{Field: "ratio", Operator: domain.OpLessThan, Value: 1}, true},
		{"exists", domain.Condition{Field: "city", Operator: domain.OpExists}, true},
		{"exists is about presence not emptiness", domain.Condition{Field: "nickname", Operator: domain.OpExists}, true},
		{"exists missing", domain.Condition{Field: "segment", Operator: domain.OpExists}, false},
		{"not_exists", domain.Condition{Field: "segment", Operator: domain.OpNotExists}, true},
		{"in slice", domain.Condition{Field: "plan", Operator: domain.OpIn, Value: []any{"fiber_1g", "fiber_500m"}}, true},
		{"in comma list", domain.Condition{Field: "plan", Operator: domain.OpIn, Value: "fiber_1g, fiber_500m"}, true},
		{"in miss", domain.Condition{Field: "plan", Operator: domain.OpIn, Value: []any{"dsl"}}, false},
		{"not_in", domain.Condition{Field: "plan", Operator: domain.OpNotIn, Value: []any{"dsl"}}, true},
		{"unknown operator never passes", domain.Condition{Field: "plan", Operator: "like", Value: "fiber"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cond.Evaluate(ctx))
		})
	}
}

func TestConditionEvaluate_MissingFieldFailsComparisons(t *testing.T) {
	ctx := map[string]any{}

	for _, op := range []domain.Operator{
		domain.OpEquals, domain.OpContains, domain.OpGreaterThan, domain.OpLessThan, domain.OpIn,
	} {
		cond := domain.Condition{Field: "absent", Operator: op, Value: 1}
		assert.False(t, cond.Evaluate(ctx), string(op))
	}
}

func TestKnownOperator(t *testing.T) {
	assert.True(t, domain.KnownOperator(domain.OpEquals))
	assert.True(t, domain.KnownOperator(domain.OpNotIn))
	assert.False(t, domain.KnownOperator("like"))
}

func TestEvaluateAll(t *testing.T) {
	ctx := map[string]any{"score": 80, "plan": "fiber_1g"}
	conds := []domain.Condition{
		{Field: "score", Operator: domain.OpGreaterThan, Value: 50},
		{Field: "plan", Operator: domain.OpEquals, Value: "fiber_1g"},
	}

	require.NoError(t, domain.EvaluateAll("qualify", conds, ctx))

	conds = append(conds, domain.Condition{Field: "score", Operator: domain.OpLessThan, Value: 60})
	err := domain.EvaluateAll("qualify", conds, ctx)
	require.Error(t, err)

	var condErr *domain.ConditionError
	require.ErrorAs(t, err, &condErr)
	assert.Equal(t, "qualify", condErr.StepID)
	assert.Equal(t, domain.OpLessThan, condErr.Condition.Operator)
	assert.Contains(t, condErr.Error(), "condition not met")
}
