package workflow

import (
	"github.com/garyjia/site-audit/internal/domain/entity"
	domainwf "github.com/garyjia/site-audit/internal/domain/workflow"
)

// Gates holds the forward guard of each working stage, keyed by source stage
type Gates map[entity.Stage]domainwf.GuardFunc

// workingStages are the stages an audit can leave through advance
var workingStages = []entity.Stage{
	entity.StageNotification,
	entity.StageDocumentIntake,
	entity.StageAutomaticValidation,
	entity.StageAuditorEvaluation,
	entity.StageSiteVisit,
	entity.StageConsolidation,
	entity.StageFinalReport,
	entity.StageClosure,
}

// nextStage is the forward target of s; closure leads to completion
func nextStage(s entity.Stage) (entity.Stage, bool) {
	if s == entity.StageClosure {
		return entity.StageCompleted, true
	}
	return s.Next()
}

// BuildStageMachine creates the audit lifecycle machine positioned at stage.
// Terminal stages have no outgoing transitions.
func BuildStageMachine(stage entity.Stage, gates Gates) domainwf.StateMachine[entity.Stage, domainwf.StageTrigger] {
	builder := domainwf.NewBuilder[entity.Stage, domainwf.StageTrigger]()

	for _, s := range workingStages {
		to, _ := nextStage(s)
		builder.Configure(s).
			PermitIf(domainwf.StageAdvance, to, gates[s]).
			Permit(domainwf.StageSuspend, entity.StageSuspended).
			Permit(domainwf.StageCancel, entity.StageCancelled)
	}

	return builder.Build(stage)
}
