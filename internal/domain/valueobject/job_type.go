package valueobject

import "fmt"

// JobType identifies the kind of work a processing job tracks.
type JobType string

// Job type constants.
const (
	JobTypeDocumentChunk JobType = "document-chunk"
	JobTypeAIAnalysis    JobType = "ai-analysis"
)

var validJobTypes = map[JobType]bool{
	JobTypeDocumentChunk: true,
	JobTypeAIAnalysis:    true,
}

// NewJobType creates a new JobType with validation.
func NewJobType(jobType string) (JobType, error) {
	t := JobType(jobType)
	if !validJobTypes[t] {
		return "", fmt.Errorf("invalid job type: %s", jobType)
	}
	return t, nil
}

// String returns the string representation of the job type.
func (t JobType) String() string {
	return string(t)
}
