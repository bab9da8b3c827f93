package policy_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/policy"
	"github.com/viant/exegol/service/diagnostics"
)

func mustAction(t *testing.T, actionType model.ActionType) *model.ActionRequest {
	t.Helper()
	values := map[string]interface{}{"repo_path": "/w/a", "task": "t"}
	action, err := model.NewAction(actionType, "d", values)
	require.NoError(t, err)
	return action
}

func TestEvaluator_Evaluate(t *testing.T) {
	testCases := []struct {
		description      string
		actionType       model.ActionType
		permissions      []string
		policy           *policy.Policy
		requiresApproval bool
		reason           string
	}{
		{description: "commit allowed", actionType: model.ActionCommit, permissions: []string{"git:commit"}, reason: "Commit allowed."},
		{description: "commit with approval", actionType: model.ActionCommit, permissions: []string{"git:commit:requires-approval"}, requiresApproval: true, reason: "Commit allowed with approval."},
		{description: "commit not permitted", actionType: model.ActionCommit, permissions: []string{"tests:run"}, requiresApproval: true, reason: "Commit not permitted outright; approval required."},
		{description: "commit both permissions auto wins", actionType: model.ActionCommit, permissions: []string{"git:commit:requires-approval", "git:commit"}, reason: "Commit allowed."},
		{description: "tests allowed", actionType: model.ActionRunTests, permissions: []string{"tests:run"}, reason: "Test run allowed."},
		{description: "tests with approval", actionType: model.ActionRunTests, permissions: []string{"tests:run:requires-approval"}, requiresApproval: true, reason: "Test run allowed with approval."},
		{description: "tests not permitted", actionType: model.ActionRunTests, requiresApproval: true, reason: "Test run not permitted outright; approval required."},
		{description: "instruction allowed", actionType: model.ActionQueueInstruction, permissions: []string{"instruction:queue"}, reason: "Instruction queueing allowed."},
		{description: "instruction with approval", actionType: model.ActionQueueInstruction, permissions: []string{"instruction:queue:requires-approval"}, requiresApproval: true, reason: "Instruction queueing allowed with approval."},
		{description: "instruction not permitted", actionType: model.ActionQueueInstruction, permissions: []string{"git:commit"}, requiresApproval: true, reason: "Instruction queueing not permitted outright; approval required."},
		{description: "unknown type", actionType: "deploy", permissions: []string{"deploy", "git:commit"}, requiresApproval: true, reason: policy.NoMatchingRule},
		{description: "prefix is not a permission", actionType: model.ActionCommit, permissions: []string{"git:commit:something"}, requiresApproval: true, reason: "Commit not permitted outright; approval required."},
		{description: "overlay ask holds allowed action", actionType: model.ActionCommit, permissions: []string{"git:commit"}, policy: &policy.Policy{Mode: policy.ModeAsk}, requiresApproval: true, reason: "policy mode ask requires approval"},
		{description: "overlay deny queues instead of dropping", actionType: model.ActionRunTests, permissions: []string{"tests:run"}, policy: &policy.Policy{Mode: policy.ModeDeny}, requiresApproval: true, reason: "policy mode deny requires approval"},
		{description: "overlay block list", actionType: model.ActionCommit, permissions: []string{"git:commit"}, policy: &policy.Policy{BlockList: []string{"COMMIT"}}, requiresApproval: true, reason: "action commit is blocked by policy; approval required"},
		{description: "overlay allow list excludes type", actionType: model.ActionRunTests, permissions: []string{"tests:run"}, policy: &policy.Policy{AllowList: []string{"commit"}}, requiresApproval: true, reason: "action run_tests is blocked by policy; approval required"},
		{description: "overlay allow list admits type", actionType: model.ActionCommit, permissions: []string{"git:commit"}, policy: &policy.Policy{Mode: policy.ModeAuto, AllowList: []string{"commit"}}, reason: "Commit allowed."},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			evaluator := policy.New(policy.WithPolicy(testCase.policy))
			agent := &model.AgentProfile{Name: "agent", Role: "role", Permissions: testCase.permissions}
			decision := evaluator.Evaluate(mustAction(t, testCase.actionType), agent)
			assert.Equal(t, testCase.requiresApproval, decision.RequiresApproval)
			assert.Equal(t, testCase.reason, decision.Reason)
		})
	}
}

func TestEvaluator_Deterministic(t *testing.T) {
	evaluator := policy.New()
	agent := &model.AgentProfile{Name: "maul", Permissions: []string{"git:commit:requires-approval"}}
	action := mustAction(t, model.ActionCommit)
	first := evaluator.Evaluate(action, agent)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, evaluator.Evaluate(action, agent))
	}
}

func TestEvaluator_NilInputs(t *testing.T) {
	evaluator := policy.New()
	assert.True(t, evaluator.Evaluate(nil, &model.AgentProfile{}).RequiresApproval)
	assert.True(t, evaluator.Evaluate(mustAction(t, model.ActionCommit), nil).RequiresApproval)
}

func TestEvaluator_EmitsPermissionCheck(t *testing.T) {
	buf := &bytes.Buffer{}
	evaluator := policy.New(policy.WithRecorder(diagnostics.New(buf)))
	agent := &model.AgentProfile{Name: "vader", Permissions: []string{"git:commit"}}
	evaluator.Evaluate(mustAction(t, model.ActionCommit), agent)

	event := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &event))
	assert.Equal(t, "permission_check", event["event_type"])
	assert.Equal(t, "vader", event["agent"])
	assert.Equal(t, "commit", event["action_type"])
	assert.Equal(t, false, event["requires_approval"])
}

func TestConfigRoundTrip(t *testing.T) {
	original := &policy.Policy{Mode: policy.ModeAsk, AllowList: []string{"commit"}, BlockList: []string{"run_tests"}}
	restored := policy.FromConfig(policy.ToConfig(original))
	assert.Equal(t, original, restored)
	assert.Nil(t, policy.ToConfig(nil))
	assert.Nil(t, policy.FromConfig(nil))
	assert.False(t, restored.IsAllowed(model.ActionRunTests))
	assert.True(t, restored.IsAllowed(model.ActionCommit))
}
