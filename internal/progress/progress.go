package progress

import "github.com/invoiceworks/invoice-converter/constants"

// Event is one progress update for a job. Terminal events carry status
// completed or error; streams end after delivering one.
type Event struct {
	JobID       string                 `json:"job_id"`
	Status      constants.JobStatus    `json:"status"`
	CurrentStep constants.PipelineStep `json:"current_step"`
	Processed   int                    `json:"processed"`
	Total       int                    `json:"total"`
	Percentage  int                    `json:"percentage"`
	Message     string                 `json:"message"`
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Status == constants.JobStatusCompleted || e.Status == constants.JobStatusError
}

// Notifier receives progress events from the pipeline runner. Publish must
// not block the pipeline.
type Notifier interface {
	Publish(Event)
}

// NopNotifier drops events; used by the batch CLI and tests that don't
// observe progress.
type NopNotifier struct{}

func (NopNotifier) Publish(Event) {}
