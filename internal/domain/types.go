package domain

// JobState tracks the lifecycle of a single transcription or summary job.
type JobState string

const (
	JobStatePending      JobState = "pending"
	JobStateLoadingModel JobState = "loading_model"
	JobStateRunning      JobState = "running"
	JobStateSucceeded    JobState = "succeeded"
	JobStateFailed       JobState = "failed"
	JobStateCancelled    JobState = "cancelled"
)

// Terminal reports whether no further transition is allowed from the state.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// JobKind selects the operation a job performs.
type JobKind string

const (
	JobKindTranscribe JobKind = "transcribe"
	JobKindSummarize  JobKind = "summarize"
)

// SummaryOptions carries summarization parameters for summarize jobs.
type SummaryOptions struct {
	MaxLength int    `json:"maxLength"`
	Language  string `json:"language"`
}

// Job is one input→output unit of work. After submission it is owned
// exclusively by the runner executing it; nothing else mutates its state.
type Job struct {
	ID          string         `json:"id"`
	Kind        JobKind        `json:"kind"`
	InputPath   string         `json:"inputPath,omitempty"`
	InputText   string         `json:"inputText,omitempty"`
	OutputPath  string         `json:"outputPath,omitempty"`
	Backend     BackendConfig  `json:"backend"`
	Summary     SummaryOptions `json:"summary,omitempty"`
	State       JobState       `json:"state"`
	ResultText  string         `json:"resultText,omitempty"`
	ErrorDetail string         `json:"errorDetail,omitempty"`
}

// Input returns the job's input reference for reports and logs.
func (j *Job) Input() string {
	if j.InputPath != "" {
		return j.InputPath
	}
	return "<text>"
}

// Settings contains user-selectable runtime configuration for the desktop
// surface, persisted between launches.
type Settings struct {
	WhisperModelPath string `json:"whisperModelPath"`
	WhisperModelSize string `json:"whisperModelSize"`
	OutputDir        string `json:"outputDir"`
	Language         string `json:"language"`
	OllamaURL        string `json:"ollamaUrl"`
	OllamaModel      string `json:"ollamaModel"`
	SummaryMaxLength int    `json:"summaryMaxLength"`
	SummaryLanguage  string `json:"summaryLanguage"`
}
