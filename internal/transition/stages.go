package transition

import "shopfloor/internal/jobs"

// Workflow selects the gating stages that follow production.
type Workflow struct {
	QCRequired     bool
	VerifyRequired bool
}

// NextStage returns the stage a transaction moves to when the given stage
// completes. Disabled stages are skipped.
func NextStage(current jobs.Stage, wf Workflow) jobs.Stage {
	switch current {
	case jobs.StageProduction:
		if wf.QCRequired {
			return jobs.StageQC
		}
		if wf.VerifyRequired {
			return jobs.StageVerify
		}
		return jobs.StageClosed
	case jobs.StageQC:
		if wf.VerifyRequired {
			return jobs.StageVerify
		}
		return jobs.StageClosed
	}
	return jobs.StageClosed
}

// RejectStage is where a QC rejection sends the transaction for rework.
func RejectStage() jobs.Stage {
	return jobs.StageProduction
}
