package constants

// Stage is one of the four ordered document processing stages.
type Stage string

// Stable values (store these exact strings in DB and queue payloads).
const (
	StageSplitRename       Stage = "SPLIT_RENAME"
	StageCheckCompleteness Stage = "CHECK_COMPLETENESS"
	StageExtractData       Stage = "EXTRACT_DATA"
	StageCrossCheck        Stage = "CROSS_CHECK"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{
	StageSplitRename,
	StageCheckCompleteness,
	StageExtractData,
	StageCrossCheck,
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageSplitRename, StageCheckCompleteness, StageExtractData, StageCrossCheck:
		return true
	}
	return false
}

// StageStatus is the status of a single stage attempt.
type StageStatus string

const (
	StageStatusInProgress StageStatus = "IN_PROGRESS"
	StageStatusSuccess    StageStatus = "SUCCESS"
	StageStatusFailed     StageStatus = "FAILED"
)

// Valid reports whether s is a known attempt status.
func (s StageStatus) Valid() bool {
	switch s {
	case StageStatusInProgress, StageStatusSuccess, StageStatusFailed:
		return true
	}
	return false
}
