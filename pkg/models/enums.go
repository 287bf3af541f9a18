package models

// ProcessingStatus tracks a message through the batch pipeline.
type ProcessingStatus string

const (
	ProcessingStatusPending    ProcessingStatus = "PENDING"
	ProcessingStatusProcessing ProcessingStatus = "PROCESSING"
	ProcessingStatusCompleted  ProcessingStatus = "COMPLETED"
	ProcessingStatusFailed     ProcessingStatus = "FAILED"
)

// IsValid reports whether the status is one of the known values.
func (s ProcessingStatus) IsValid() bool {
	switch s {
	case ProcessingStatusPending, ProcessingStatusProcessing, ProcessingStatusCompleted, ProcessingStatusFailed:
		return true
	}
	return false
}

// ProposalStatus is the review lifecycle of a documentation proposal.
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApproved ProposalStatus = "approved"
	ProposalStatusIgnored  ProposalStatus = "ignored"
)

func (s ProposalStatus) IsValid() bool {
	switch s {
	case ProposalStatusPending, ProposalStatusApproved, ProposalStatusIgnored:
		return true
	}
	return false
}

// UpdateType describes how a proposal changes its target page.
type UpdateType string

const (
	UpdateTypeInsert UpdateType = "INSERT"
	UpdateTypeUpdate UpdateType = "UPDATE"
	UpdateTypeDelete UpdateType = "DELETE"
	UpdateTypeNone   UpdateType = "NONE"
)

func (t UpdateType) IsValid() bool {
	switch t {
	case UpdateTypeInsert, UpdateTypeUpdate, UpdateTypeDelete, UpdateTypeNone:
		return true
	}
	return false
}

// BatchStatus is the lifecycle of a changeset batch.
type BatchStatus string

const (
	BatchStatusDraft     BatchStatus = "draft"
	BatchStatusSubmitted BatchStatus = "submitted"
	BatchStatusMerged    BatchStatus = "merged"
	BatchStatusClosed    BatchStatus = "closed"
)

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusDraft, BatchStatusSubmitted, BatchStatusMerged, BatchStatusClosed:
		return true
	}
	return false
}

// RunStatus is the per-step status in the pipeline run log.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusSkipped   RunStatus = "skipped"
)

// MessageCategory is the classifier's label for a valuable message.
type MessageCategory string

const (
	CategoryInformation        MessageCategory = "information"
	CategoryTroubleshooting    MessageCategory = "troubleshooting"
	CategoryUpdate             MessageCategory = "update"
	CategoryAnnouncement       MessageCategory = "announcement"
	CategoryTutorial           MessageCategory = "tutorial"
	CategoryQuestionWithAnswer MessageCategory = "question_with_answer"
)

func (c MessageCategory) IsValid() bool {
	switch c {
	case CategoryInformation, CategoryTroubleshooting, CategoryUpdate,
		CategoryAnnouncement, CategoryTutorial, CategoryQuestionWithAnswer:
		return true
	}
	return false
}

// CachePurpose labels LLM cache entries by the pipeline concern that produced them.
type CachePurpose string

const (
	PurposeIndex            CachePurpose = "index"
	PurposeEmbeddings       CachePurpose = "embeddings"
	PurposeAnalysis         CachePurpose = "analysis"
	PurposeChangeGeneration CachePurpose = "changegeneration"
	PurposeReview           CachePurpose = "review"
	PurposeGeneral          CachePurpose = "general"
)

func (p CachePurpose) IsValid() bool {
	switch p {
	case PurposeIndex, PurposeEmbeddings, PurposeAnalysis, PurposeChangeGeneration, PurposeReview, PurposeGeneral:
		return true
	}
	return false
}

// AdapterType identifies a stream adapter implementation.
type AdapterType string

const (
	AdapterCSVDrop  AdapterType = "csv-drop"
	AdapterSlack    AdapterType = "slack"
	AdapterTelegram AdapterType = "telegram"
)

func (t AdapterType) IsValid() bool {
	switch t {
	case AdapterCSVDrop, AdapterSlack, AdapterTelegram:
		return true
	}
	return false
}

// PRApplicationStatus records the outcome of applying a proposal to the doc tree.
type PRApplicationStatus string

const (
	PRApplicationApplied PRApplicationStatus = "applied"
	PRApplicationFailed  PRApplicationStatus = "failed"
)
