package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitel/journey/internal/testutils"
	"github.com/orbitel/journey/pkg/bus"
	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/handoff"
	"github.com/orbitel/journey/pkg/orchestrator"
	"github.com/orbitel/journey/pkg/registry"
)

type fixture struct {
	bus      *bus.Bus
	clock    *testutils.ManualClock
	handoffs *handoff.Manager
	orch     *orchestrator.Orchestrator
}

func newFixture(t *testing.T, cfg orchestrator.Config) *fixture {
	t.Helper()

	f := &fixture{
		bus:   bus.New("tenant-test"),
		clock: testutils.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}

	reg := registry.New()
	reg.Register(registry.Subsystem{
		Name: "provisioning",
		Actions: map[string]registry.ActionSpec{
			"activate_service": {
				RequiredFields: []string{"customer_id"},
				Handler: func(ctx context.Context, data map[string]any) (map[string]any, error) {
					return map[string]any{"circuit_id": "cct-7"}, nil
				},
			},
		},
	})
	reg.Register(registry.Subsystem{
		Name: "approvals",
		Actions: map[string]registry.ActionSpec{
			"review": {
				Handler: func(ctx context.Context, data map[string]any) (map[string]any, error) {
					return map[string]any{"approved": true}, nil
				},
			},
		},
	})

	f.handoffs = handoff.NewManager(f.bus, reg, handoff.WithClock(f.clock))
	f.orch = orchestrator.New(f.bus, f.handoffs, cfg, orchestrator.WithClock(f.clock))
	return f
}

func onboardingTemplate() *domain.JourneyTemplate {
	return &domain.JourneyTemplate{
		ID:   "onboarding",
		Name: "Fiber Onboarding",
		Type: "onboarding",
		Steps: []domain.Step{
			{ID: "welcome", Name: "Welcome call", Stage: domain.StageLead, Order: 1, Type: domain.StepManual},
			{ID: "provision", Name: "Provision service", Stage: domain.StageCustomer, Order: 2, Type: domain.StepIntegration,
				Target: "provisioning", Action: "activate_service"},
			{ID: "notify", Name: "Notify customer", Stage: domain.StageActiveService, Order: 3, Type: domain.StepNotification,
				Message: "Your service is live", Recipient: "customer"},
		},
		Settings: domain.TemplateSettings{AutoProgress: true, AllowSkip: true},
	}
}

func start(t *testing.T, f *fixture, templateID string, jctx map[string]any) *domain.Journey {
	t.Helper()
	j, err := f.orch.StartJourney(context.Background(), templateID, jctx, "cust-1", "lead-1")
	require.NoError(t, err)
	return j
}

func TestStartJourney(t *testing.T) {
	f := newFixture(t, orchestrator.Config{AutoProgress: true})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))

	j := start(t, f, "onboarding", map[string]any{"customer_id": "cust-1"})

	assert.Equal(t, domain.JourneyActive, j.Status)
	assert.Equal(t, "welcome", j.CurrentStep)
	assert.Equal(t, domain.StageLead, j.Stage)
	assert.Equal(t, 0, j.Progress)
	assert.Equal(t, 3, j.TotalSteps)
	assert.Equal(t, "tenant-test", j.TenantID)

	events := f.bus.History(0)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventJourneyStarted, events[0].Type)
	assert.Equal(t, j.ID, events[0].JourneyID)
}

func TestStartJourney_UnknownTemplate(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})

	_, err := f.orch.StartJourney(context.Background(), "missing", nil, "", "")
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
}

func TestStartJourney_ConcurrencyCeiling(t *testing.T) {
	f := newFixture(t, orchestrator.Config{MaxActiveJourneys: 1})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))

	start(t, f, "onboarding", nil)

	_, err := f.orch.StartJourney(context.Background(), "onboarding", nil, "", "")
	assert.ErrorIs(t, err, domain.ErrConcurrencyLimit)
	assert.Len(t, f.orch.Journeys(), 1, "rejected start must not mutate the journey set")
}

func TestJourney_HaltsAtIntegrationUntilHandoffCompletes(t *testing.T) {
	f := newFixture(t, orchestrator.Config{AutoProgress: true})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))
	j := start(t, f, "onboarding", map[string]any{"customer_id": "cust-1"})

	// Step 1 is manual: the engine waits for an external advance.
	require.NoError(t, f.orch.AdvanceStep(context.Background(), j.ID, ""))

	// Engine reached the integration step, spawned a handoff, and halted.
	got, err := f.orch.Journey(j.ID)
	require.NoError(t, err)
	assert.Equal(t, "provision", got.CurrentStep)
	assert.Equal(t, domain.StageCustomer, got.Stage)

	active := f.handoffs.Active()
	require.Len(t, active, 1)
	h := active[0]
	assert.Equal(t, j.ID, h.JourneyID)
	assert.Equal(t, "provisioning", h.To)
	assert.Equal(t, domain.HandoffPending, h.Status)

	// No auto-advance happens while the handoff is outstanding.
	f.clock.Advance(time.Minute)
	got, err = f.orch.Journey(j.ID)
	require.NoError(t, err)
	assert.Equal(t, "provision", got.CurrentStep)

	// Completing the handoff resumes the journey into the notification step.
	_, err = f.handoffs.Process(context.Background(), h.ID)
	require.NoError(t, err)

	got, err = f.orch.Journey(j.ID)
	require.NoError(t, err)
	assert.Equal(t, "notify", got.CurrentStep)

	// The notification was published and a short delay queued the final advance.
	var sawNotification bool
	for _, e := range f.bus.History(0) {
		if e.Type == domain.EventNotificationSend {
			sawNotification = true
			var p domain.NotificationPayload
			require.NoError(t, domain.DecodePayload(e, &p))
			assert.Equal(t, "Your service is live", p.Message)
		}
	}
	assert.True(t, sawNotification)

	f.clock.Advance(orchestrator.DefaultNotificationDelay)

	got, err = f.orch.Journey(j.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JourneyCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.CompletedAt)
}

func TestJourney_HandoffTimeoutLeavesJourneyInPlace(t *testing.T) {
	f := newFixture(t, orchestrator.Config{AutoProgress: true})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))
	j := start(t, f, "onboarding", map[string]any{"customer_id": "cust-1"})
	require.NoError(t, f.orch.AdvanceStep(context.Background(), j.ID, ""))

	f.clock.Advance(handoff.DefaultTimeout + time.Second)

	// The handoff failed by timeout; the journey waits for an operator.
	require.Len(t, f.handoffs.Failed(), 1)
	got, err := f.orch.Journey(j.ID)
	require.NoError(t, err)
	assert.Equal(t, "provision", got.CurrentStep)
	assert.Equal(t, domain.JourneyActive, got.Status)
}

func TestAdvanceStep_ConditionRejection(t *testing.T) {
	f := newFixture(t, orchestrator.Config{AutoProgress: true})
	tpl := &domain.JourneyTemplate{
		ID: "qualification",
		Steps: []domain.Step{
			{ID: "collect", Stage: domain.StageLead, Order: 1, Type: domain.StepManual},
			{ID: "qualify", Stage: domain.StageQualified, Order: 2, Type: domain.StepManual,
				Conditions: []domain.Condition{{Field: "score", Operator: domain.OpGreaterThan, Value: 50}}},
		},
		Settings: domain.TemplateSettings{AutoProgress: true},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl))
	j := start(t, f, "qualification", map[string]any{"score": 10})

	err := f.orch.AdvanceStep(context.Background(), j.ID, "")
	require.Error(t, err)
	var condErr *domain.ConditionError
	require.ErrorAs(t, err, &condErr)
	assert.Equal(t, "qualify", condErr.StepID)
	assert.Equal(t, "score", condErr.Condition.Field)

	// No mutation happened.
	got, _ := f.orch.Journey(j.ID)
	assert.Equal(t, "collect", got.CurrentStep)
	assert.Empty(t, got.CompletedSteps)
	assert.Equal(t, 0, got.Progress)

	// Feeding data back in unblocks the step.
	require.NoError(t, f.orch.UpdateContext(j.ID, map[string]any{"score": 80}))
	require.NoError(t, f.orch.AdvanceStep(context.Background(), j.ID, ""))
	got, _ = f.orch.Journey(j.ID)
	assert.Equal(t, "qualify", got.CurrentStep)
}

func TestAdvanceStep_ProgressInvariant(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	tpl := &domain.JourneyTemplate{
		ID: "steps3",
		Steps: []domain.Step{
			{ID: "a", Stage: domain.StageLead, Order: 1, Type: domain.StepManual},
			{ID: "b", Stage: domain.StageLead, Order: 2, Type: domain.StepManual},
			{ID: "c", Stage: domain.StageLead, Order: 3, Type: domain.StepManual},
		},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl))
	j := start(t, f, "steps3", nil)

	require.NoError(t, f.orch.AdvanceStep(context.Background(), j.ID, ""))
	got, _ := f.orch.Journey(j.ID)
	assert.Equal(t, 33, got.Progress, "round(100*1/3)")

	require.NoError(t, f.orch.AdvanceStep(context.Background(), j.ID, ""))
	got, _ = f.orch.Journey(j.ID)
	assert.Equal(t, 67, got.Progress, "round(100*2/3)")

	require.NoError(t, f.orch.AdvanceStep(context.Background(), j.ID, ""))
	got, _ = f.orch.Journey(j.ID)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, domain.JourneyCompleted, got.Status)
}

func TestAdvanceStep_IdempotentCompletion(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	tpl := &domain.JourneyTemplate{
		ID: "steps2",
		Steps: []domain.Step{
			{ID: "a", Stage: domain.StageLead, Order: 1, Type: domain.StepManual},
			{ID: "b", Stage: domain.StageLead, Order: 2, Type: domain.StepManual},
		},
		Settings: domain.TemplateSettings{AllowSkip: true},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl))
	j := start(t, f, "steps2", nil)

	// Skip marks "a" completed, then advance marks it again: one entry only.
	require.NoError(t, f.orch.SkipStep(context.Background(), j.ID, "a", "already handled offline"))
	got, _ := f.orch.Journey(j.ID)
	assert.Equal(t, []string{"a"}, got.CompletedSteps)
}

func TestSkipStep(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	tpl := &domain.JourneyTemplate{
		ID: "steps2",
		Steps: []domain.Step{
			{ID: "a", Stage: domain.StageLead, Order: 1, Type: domain.StepManual},
			{ID: "b", Stage: domain.StageQualified, Order: 2, Type: domain.StepManual},
		},
		Settings: domain.TemplateSettings{AllowSkip: true},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl))
	j := start(t, f, "steps2", nil)

	require.NoError(t, f.orch.SkipStep(context.Background(), j.ID, "a", "customer opted out"))

	got, _ := f.orch.Journey(j.ID)
	assert.Equal(t, "b", got.CurrentStep)
	skips, ok := got.Metadata["skipped_steps"].([]any)
	require.True(t, ok)
	require.Len(t, skips, 1)
	entry := skips[0].(map[string]any)
	assert.Equal(t, "a", entry["step_id"])
	assert.Equal(t, "customer opted out", entry["reason"])
}

func TestSkipStep_DisallowedByTemplate(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	tpl := &domain.JourneyTemplate{
		ID: "strict",
		Steps: []domain.Step{
			{ID: "a", Stage: domain.StageLead, Order: 1, Type: domain.StepManual},
			{ID: "b", Stage: domain.StageLead, Order: 2, Type: domain.StepManual},
		},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl))
	j := start(t, f, "strict", nil)

	err := f.orch.SkipStep(context.Background(), j.ID, "a", "because")
	assert.ErrorContains(t, err, "does not allow skipping")
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, orchestrator.Config{AutoProgress: true})
	tpl := &domain.JourneyTemplate{
		ID: "timed",
		Steps: []domain.Step{
			{ID: "wait", Stage: domain.StageLead, Order: 1, Type: domain.StepAutomated, EstimatedDuration: 30 * time.Second},
			{ID: "done", Stage: domain.StageLead, Order: 2, Type: domain.StepManual},
		},
		Settings: domain.TemplateSettings{AutoProgress: true},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl))
	j := start(t, f, "timed", nil)

	// Pausing cancels the pending automated advance.
	require.NoError(t, f.orch.PauseJourney(j.ID))
	f.clock.Advance(time.Minute)

	got, _ := f.orch.Journey(j.ID)
	assert.Equal(t, domain.JourneyPaused, got.Status)
	assert.Equal(t, "wait", got.CurrentStep)
	assert.Contains(t, got.Metadata, "paused_at")

	// Resuming re-triggers step processing.
	require.NoError(t, f.orch.ResumeJourney(context.Background(), j.ID))
	f.clock.Advance(30 * time.Second)

	got, _ = f.orch.Journey(j.ID)
	assert.Equal(t, domain.JourneyActive, got.Status)
	assert.Equal(t, "done", got.CurrentStep)
	assert.NotContains(t, got.Metadata, "paused_at")

	assert.ErrorIs(t, f.orch.ResumeJourney(context.Background(), j.ID), domain.ErrJourneyNotPaused)
}

func TestAutomatedStepAdvancesAfterDuration(t *testing.T) {
	f := newFixture(t, orchestrator.Config{AutoProgress: true})
	tpl := &domain.JourneyTemplate{
		ID: "timed",
		Steps: []domain.Step{
			{ID: "wait", Stage: domain.StageLead, Order: 1, Type: domain.StepAutomated, EstimatedDuration: 30 * time.Second},
			{ID: "done", Stage: domain.StageLead, Order: 2, Type: domain.StepManual},
		},
		Settings: domain.TemplateSettings{AutoProgress: true},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl))
	j := start(t, f, "timed", nil)

	got, _ := f.orch.Journey(j.ID)
	assert.Equal(t, "wait", got.CurrentStep)

	f.clock.Advance(29 * time.Second)
	got, _ = f.orch.Journey(j.ID)
	assert.Equal(t, "wait", got.CurrentStep)

	f.clock.Advance(time.Second)
	got, _ = f.orch.Journey(j.ID)
	assert.Equal(t, "done", got.CurrentStep)
}

func TestTerminalJourneysNeverMutate(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))
	j := start(t, f, "onboarding", nil)

	require.NoError(t, f.orch.AbandonJourney(j.ID, "customer cancelled"))

	frozen, _ := f.orch.Journey(j.ID)
	assert.Equal(t, domain.JourneyAbandoned, frozen.Status)
	assert.Equal(t, "customer cancelled", frozen.Metadata["abandon_reason"])

	assert.ErrorIs(t, f.orch.AdvanceStep(context.Background(), j.ID, ""), domain.ErrJourneyTerminal)
	assert.ErrorIs(t, f.orch.PauseJourney(j.ID), domain.ErrJourneyTerminal)
	assert.ErrorIs(t, f.orch.UpdateContext(j.ID, map[string]any{"x": 1}), domain.ErrJourneyTerminal)
	assert.ErrorIs(t, f.orch.CompleteJourney(j.ID), domain.ErrJourneyTerminal)
	_, err := f.orch.AddTouchpoint(j.ID, domain.Touchpoint{Type: "call"})
	assert.ErrorIs(t, err, domain.ErrJourneyTerminal)

	after, _ := f.orch.Journey(j.ID)
	assert.Equal(t, frozen.Stage, after.Stage)
	assert.Equal(t, frozen.CurrentStep, after.CurrentStep)
	assert.Equal(t, frozen.CompletedSteps, after.CompletedSteps)
}

func TestIntegrationValidationFailureFailsJourney(t *testing.T) {
	f := newFixture(t, orchestrator.Config{AutoProgress: true})
	tpl := onboardingTemplate()
	require.NoError(t, f.orch.LoadTemplate(tpl))

	// Context lacks customer_id, which provisioning declares as required.
	j := start(t, f, "onboarding", nil)
	require.NoError(t, f.orch.AdvanceStep(context.Background(), j.ID, ""))

	got, _ := f.orch.Journey(j.ID)
	assert.Equal(t, domain.JourneyFailed, got.Status)
	assert.Contains(t, got.Metadata["error"], "validation failed")
}

func TestTriggerAutoStartsJourney(t *testing.T) {
	f := newFixture(t, orchestrator.Config{AutoProgress: true})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))
	require.NoError(t, f.orch.RegisterTrigger(&domain.Trigger{
		ID:         "trg-convert",
		EventType:  domain.EventLeadConverted,
		TemplateID: "onboarding",
		Active:     true,
		Priority:   10,
	}))

	_, err := f.bus.Publish(&domain.JourneyEvent{
		Type:       domain.EventLeadConverted,
		Source:     "crm",
		CustomerID: "cust-9",
		LeadID:     "lead-9",
		Payload:    map[string]any{"plan": "fiber_1g"},
	})
	require.NoError(t, err)

	journeys := f.orch.Journeys()
	require.Len(t, journeys, 1)
	j := journeys[0]
	assert.Equal(t, "cust-9", j.CustomerID)
	assert.Equal(t, "lead-9", j.LeadID)
	assert.Equal(t, "fiber_1g", j.Context["plan"])
	assert.Equal(t, domain.EventLeadConverted, j.Context["trigger_event"])
}

func TestInactiveTriggerIsIgnored(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))
	require.NoError(t, f.orch.RegisterTrigger(&domain.Trigger{
		ID:         "trg-off",
		EventType:  domain.EventLeadConverted,
		TemplateID: "onboarding",
		Active:     false,
	}))

	_, err := f.bus.Publish(&domain.JourneyEvent{Type: domain.EventLeadConverted, Source: "crm"})
	require.NoError(t, err)
	assert.Empty(t, f.orch.Journeys())
}

func TestAdvanceEventDrivesJourney(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	tpl := &domain.JourneyTemplate{
		ID: "steps2",
		Steps: []domain.Step{
			{ID: "a", Stage: domain.StageLead, Order: 1, Type: domain.StepManual},
			{ID: "b", Stage: domain.StageLead, Order: 2, Type: domain.StepManual},
		},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl))
	j := start(t, f, "steps2", nil)

	_, err := f.bus.Publish(&domain.JourneyEvent{
		Type:      domain.EventJourneyAdvance,
		Source:    "operations_portal",
		JourneyID: j.ID,
	})
	require.NoError(t, err)

	got, _ := f.orch.Journey(j.ID)
	assert.Equal(t, "b", got.CurrentStep)
}

func TestTriggerEventStartsNamedTemplate(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))

	_, err := f.bus.Publish(&domain.JourneyEvent{
		Type:    domain.EventJourneyTrigger,
		Source:  "operations_portal",
		Payload: map[string]any{"template_id": "onboarding"},
	})
	require.NoError(t, err)
	assert.Len(t, f.orch.Journeys(), 1)
}

func TestTouchpointsAndConversions(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))
	j := start(t, f, "onboarding", nil)

	tp, err := f.orch.AddTouchpoint(j.ID, domain.Touchpoint{Type: "call", Channel: "phone"})
	require.NoError(t, err)
	assert.NotEmpty(t, tp.ID)
	assert.False(t, tp.Timestamp.IsZero())

	conv, err := f.orch.RecordConversion(j.ID, domain.Conversion{Type: "upsell", Value: 49.90})
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)

	got, _ := f.orch.Journey(j.ID)
	require.Len(t, got.Touchpoints, 1)
	require.Len(t, got.Conversions, 1)

	var sawTouchpointEvent bool
	for _, e := range f.bus.History(0) {
		if e.Type == domain.EventTouchpointAdded {
			sawTouchpointEvent = true
		}
	}
	assert.True(t, sawTouchpointEvent)
}

func TestSearchAndFilter(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))
	tpl2 := &domain.JourneyTemplate{
		ID:   "winback",
		Name: "Win-Back Campaign",
		Type: "winback",
		Steps: []domain.Step{
			{ID: "offer", Stage: domain.StageWinBack, Order: 1, Type: domain.StepManual},
		},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl2))

	j1 := start(t, f, "onboarding", nil)
	_, err := f.orch.StartJourney(context.Background(), "winback", nil, "cust-2", "")
	require.NoError(t, err)

	found := f.orch.SearchJourneys("fiber")
	require.Len(t, found, 1)
	assert.Equal(t, j1.ID, found[0].ID)

	found = f.orch.SearchJourneys("CUST-2")
	require.Len(t, found, 1)

	require.NoError(t, f.orch.PauseJourney(j1.ID))
	byStatus := f.orch.FilterJourneys(orchestrator.Filter{Status: domain.JourneyPaused})
	require.Len(t, byStatus, 1)
	assert.Equal(t, j1.ID, byStatus[0].ID)

	byBoth := f.orch.FilterJourneys(orchestrator.Filter{Status: domain.JourneyActive, Stage: domain.StageWinBack})
	require.Len(t, byBoth, 1)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	tpl := &domain.JourneyTemplate{
		ID: "mix",
		Steps: []domain.Step{
			{ID: "a", Stage: domain.StageLead, Order: 1, Type: domain.StepManual},
			{ID: "b", Stage: domain.StageLead, Order: 2, Type: domain.StepAutomated},
			{ID: "c", Stage: domain.StageLead, Order: 3, Type: domain.StepIntegration, Target: "provisioning", Action: "activate_service"},
			{ID: "d", Stage: domain.StageLead, Order: 4, Type: domain.StepApproval},
		},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl))

	j := start(t, f, "mix", nil)
	start(t, f, "mix", nil)
	require.NoError(t, f.orch.AbandonJourney(j.ID, ""))

	m := f.orch.Metrics()
	assert.Equal(t, 2, m.Total)
	assert.Equal(t, 1, m.Active)
	assert.Equal(t, 1, m.Abandoned)
	// Automated-capable steps: automated + integration out of four.
	assert.InDelta(t, 0.5, m.AutomationRate, 1e-9)
}

func TestCompleteJourneyForcesTerminalState(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))
	j := start(t, f, "onboarding", nil)

	require.NoError(t, f.orch.CompleteJourney(j.ID))

	got, _ := f.orch.Journey(j.ID)
	assert.Equal(t, domain.JourneyCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.CompletedAt)

	var sawCompleted bool
	for _, e := range f.bus.History(0) {
		if e.Type == domain.EventJourneyCompleted {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)
}

func TestApprovalStepCreatesPendingApproval(t *testing.T) {
	f := newFixture(t, orchestrator.Config{AutoProgress: true})
	tpl := &domain.JourneyTemplate{
		ID: "discount",
		Steps: []domain.Step{
			{ID: "request", Stage: domain.StageCustomer, Order: 1, Type: domain.StepManual},
			{ID: "review", Stage: domain.StageCustomer, Order: 2, Type: domain.StepApproval,
				Target: "approvals", Action: "review", Assignee: "ops-manager"},
			{ID: "apply", Stage: domain.StageCustomer, Order: 3, Type: domain.StepManual},
		},
		Settings: domain.TemplateSettings{AutoProgress: true},
	}
	require.NoError(t, f.orch.LoadTemplate(tpl))
	j := start(t, f, "discount", nil)
	require.NoError(t, f.orch.AdvanceStep(context.Background(), j.ID, ""))

	pending := f.handoffs.PendingApprovals()
	require.Len(t, pending, 1)
	assert.Equal(t, "ops-manager", pending[0].Assignee)
	assert.Equal(t, domain.HandoffApprovalRequired, pending[0].Kind)

	// Approval executes the handoff and the journey moves on.
	_, err := f.handoffs.Approve(context.Background(), pending[0].ID, "within policy")
	require.NoError(t, err)

	got, _ := f.orch.Journey(j.ID)
	assert.Equal(t, "apply", got.CurrentStep)

	// A rejected approval leaves the journey at the step.
	j2 := start(t, f, "discount", nil)
	require.NoError(t, f.orch.AdvanceStep(context.Background(), j2.ID, ""))
	approvals := f.handoffs.PendingApprovals()
	require.Len(t, approvals, 1)
	rejected, err := f.handoffs.Reject(approvals[0].ID, "not authorized")
	require.NoError(t, err)
	assert.Equal(t, "Rejected: not authorized", rejected.ErrorMessage)

	got2, _ := f.orch.Journey(j2.ID)
	assert.Equal(t, "review", got2.CurrentStep)
	assert.Equal(t, domain.JourneyActive, got2.Status)
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t, orchestrator.Config{})
	require.NoError(t, f.orch.LoadTemplate(onboardingTemplate()))
	j := start(t, f, "onboarding", map[string]any{"plan": "fiber_1g"})

	snap := f.orch.ExportSnapshot()
	require.Len(t, snap.Journeys, 1)
	assert.Contains(t, snap.Templates, "onboarding")

	g := newFixture(t, orchestrator.Config{})
	g.orch.ImportSnapshot(snap)

	restored, err := g.orch.Journey(j.ID)
	require.NoError(t, err)
	assert.Equal(t, "welcome", restored.CurrentStep)
	assert.Equal(t, "fiber_1g", restored.Context["plan"])

	// The restored engine can keep driving the journey.
	require.NoError(t, g.orch.AdvanceStep(context.Background(), j.ID, ""))
}
