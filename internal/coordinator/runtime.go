package coordinator

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mkade/foreman/pkg/models"
)

// historySize bounds the per-session workflow history log. Sessions can run
// hundreds of workflows; only the recent tail matters for diagnostics.
const historySize = 64

// signalKey identifies the stage of a workflow that an external agent
// process will report back on.
type signalKey struct {
	workflowID string
	stage      string
	taskID     string
}

// sessionRuntime is the in-memory working state the coordinator keeps per
// session. It is created lazily on first workflow dispatch and discarded
// when the session is removed; history is LRU-bounded so long-lived
// sessions do not accumulate unbounded terminal workflows.
type sessionRuntime struct {
	revising bool
	paused   bool

	// active maps workflow id to its live instance. Terminal workflows are
	// moved to history within one evaluation tick.
	active map[string]*models.Workflow
	// pending and completed track workflow ids by lifecycle outcome.
	pending   []string
	completed []string
	// retries holds global task ids awaiting re-dispatch after a retryable
	// failure.
	retries []string
	// waiting holds the stages for which an agent completion signal will be
	// consumed. A signal with no matching entry is dropped.
	waiting map[signalKey]struct{}
	// history is the bounded log of terminal workflows.
	history *lru.Cache[string, *models.Workflow]
}

func newSessionRuntime() *sessionRuntime {
	history, _ := lru.New[string, *models.Workflow](historySize)
	return &sessionRuntime{
		active:  make(map[string]*models.Workflow),
		waiting: make(map[signalKey]struct{}),
		history: history,
	}
}

// retire moves a terminal workflow out of the active map into history and
// records its outcome.
func (rt *sessionRuntime) retire(w *models.Workflow) {
	delete(rt.active, w.ID)
	rt.pending = removeID(rt.pending, w.ID)
	if w.Status == models.WorkflowStatusCompleted {
		rt.completed = append(rt.completed, w.ID)
	}
	rt.history.Add(w.ID, w)
}

// dropWaiters removes every signal registration belonging to a workflow, so
// late results arriving after cancellation are ignored.
func (rt *sessionRuntime) dropWaiters(workflowID string) {
	for k := range rt.waiting {
		if k.workflowID == workflowID {
			delete(rt.waiting, k)
		}
	}
}

func removeID(list []string, id string) []string {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
