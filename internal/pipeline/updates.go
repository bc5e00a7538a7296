package pipeline

import "fmt"

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Run phase
	Entity  string // Entity type being worked on, empty for phase changes
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
}

// Run phase enumeration
type Phase int

const (
	Idle Phase = iota
	Extracting
	Transforming
	Loading
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Extracting:
		return "extracting"
	case Transforming:
		return "transforming"
	case Loading:
		return "loading"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return ""
	}
}

func extractingUpdate(entity string, step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Extracting,
		Entity:  entity,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Extracting %s...", entity),
	}
}

func transformingUpdate(entity string, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Transforming,
		Entity:  entity,
		Total:   count,
		Message: fmt.Sprintf("Transforming %d %s records...", count, entity),
	}
}

func loadingUpdate(entity string, step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Loading,
		Entity:  entity,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Loading %s...", entity),
	}
}

func finishedUpdate(status Status) ProgressUpdate {
	phase := Succeeded
	if status == StatusFailed {
		phase = Failed
	}
	return ProgressUpdate{
		Phase:   phase,
		Message: fmt.Sprintf("Run finished: %s", status),
	}
}
