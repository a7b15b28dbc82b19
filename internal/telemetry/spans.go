package telemetry

// Span attribute keys for pipeline tracing.
const (
	AttrPatchID  = "patch.id"
	AttrBranchID = "branch.id"
	AttrStatus   = "branch.status"
	AttrTaskID   = "task.id"
	AttrStage    = "stage.name"
)

// Span names.
const (
	SpanEngineStep   = "engine.step"
	SpanStageBegin   = "stage.begin"
	SpanStagePoll    = "stage.poll"
	SpanNotifyUpdate = "notifier.branch_updated"
)
