// Package vote implements the client-side vote-casting workflow: a small
// state machine driving candidate selection, single-shot vote submission,
// authoritative status reconciliation and receipt derivation.
package vote

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/VoteKeeper/internal/models"
)

// State is the workflow position for one election-detail view instance.
type State int

const (
	// StateLoading means the vote status has not been resolved yet.
	// Interactive controls stay disabled until it is.
	StateLoading State = iota
	// StateBlocked means the user holds no voter id; no further actions
	// are exposed.
	StateBlocked
	// StateEligible means the voter may select a candidate and confirm.
	StateEligible
	// StateVoting means a submission is in flight.
	StateVoting
	// StateVoted means the backend recorded the vote; the receipt is
	// pending the feedback delay.
	StateVoted
	// StateReceiptReady means the derived receipt is available for export.
	StateReceiptReady
)

// String names the state for logs and the shell.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateBlocked:
		return "blocked"
	case StateEligible:
		return "eligible"
	case StateVoting:
		return "voting"
	case StateVoted:
		return "voted"
	case StateReceiptReady:
		return "receipt-ready"
	default:
		return "unknown"
	}
}

var (
	// ErrNotEligible is returned when the user has no voter id.
	ErrNotEligible = errors.New("voter registration required")
	// ErrAlreadyVoted is returned when a vote already exists for this
	// election.
	ErrAlreadyVoted = errors.New("already voted in this election")
	// ErrSubmissionInFlight suppresses concurrent duplicate submissions.
	ErrSubmissionInFlight = errors.New("a vote submission is already in flight")
	// ErrNoSelection is returned by Confirm with no selected candidate.
	ErrNoSelection = errors.New("no candidate selected")
	// ErrNotReady is returned for actions attempted outside their state.
	ErrNotReady = errors.New("action not available in the current state")
	// ErrClosed is returned once the view instance has been torn down.
	ErrClosed = errors.New("workflow closed")
	// ErrUnknownCandidate is returned when a selection does not match the
	// election's candidate list.
	ErrUnknownCandidate = errors.New("candidate does not stand in this election")
)

// Backend is the slice of the API gateway the workflow needs.
type Backend interface {
	// VoteStatus resolves the authoritative vote status for (election, voter).
	VoteStatus(ctx context.Context, electionID int, voterID string) (models.VoteStatus, error)
	// CastVote submits one vote.
	CastVote(ctx context.Context, vote models.Vote) (models.Vote, error)
}

// DefaultReceiptDelay is how long the success feedback stays on screen
// before the receipt renders.
const DefaultReceiptDelay = 600 * time.Millisecond

// Workflow drives one election-detail view for one user. It is safe for
// concurrent use; all transitions happen under the internal mutex.
type Workflow struct {
	mu sync.Mutex

	backend  Backend
	user     models.User
	election models.Election
	cands    []models.Candidate

	state      State
	status     models.VoteStatus
	selected   *models.Candidate
	submitting bool
	closed     bool
	lastErr    string
	receipt    *Receipt

	receiptDelay time.Duration
	now          func() time.Time
	subs         []func(State)
	pending      []State
	log          *zap.Logger
}

// New builds a workflow for the given election and candidate list.
func New(backend Backend, user models.User, election models.Election, candidates []models.Candidate, log *zap.Logger) *Workflow {
	return &Workflow{
		backend:      backend,
		user:         user,
		election:     election,
		cands:        candidates,
		state:        StateLoading,
		receiptDelay: DefaultReceiptDelay,
		now:          time.Now,
		log:          log,
	}
}

// SetReceiptDelay overrides the feedback delay. Zero collapses Voted into
// ReceiptReady immediately.
func (w *Workflow) SetReceiptDelay(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.receiptDelay = d
}

// Subscribe registers fn to run after every state transition. Callbacks
// run outside the lock, in transition order.
func (w *Workflow) Subscribe(fn func(State)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// State returns the current workflow state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// LastError returns the most recent user-visible failure message.
func (w *Workflow) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Status returns the last resolved vote status.
func (w *Workflow) Status() models.VoteStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Selected returns the currently selected candidate, if any.
func (w *Workflow) Selected() (models.Candidate, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selected == nil {
		return models.Candidate{}, false
	}
	return *w.selected, true
}

// Receipt returns the derived receipt once the workflow reached
// ReceiptReady.
func (w *Workflow) Receipt() (Receipt, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.receipt == nil {
		return Receipt{}, false
	}
	return *w.receipt, true
}

// Start resolves the vote status and leaves the workflow in Blocked,
// Eligible, or the voted path. It must complete before any submission
// action becomes available; Confirm refuses to run out of Loading.
func (w *Workflow) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if !w.user.Registered() {
		w.toStateLocked(StateBlocked)
		w.mu.Unlock()
		w.flush()
		return ErrNotEligible
	}
	voterID := w.user.VID
	electionID := w.election.ElectionID
	w.mu.Unlock()

	status, err := w.backend.VoteStatus(ctx, electionID, voterID)

	w.mu.Lock()
	if w.closed {
		// View went away while the fetch was outstanding; drop the result.
		w.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		w.lastErr = err.Error()
		w.mu.Unlock()
		w.flush()
		return err
	}
	w.status = status
	if status.Voted {
		w.buildReceiptLocked()
		w.toStateLocked(StateVoted)
		w.scheduleReceiptLocked()
	} else {
		w.toStateLocked(StateEligible)
	}
	w.mu.Unlock()
	w.flush()
	return nil
}

// Select picks a candidate. It models both the drag start and a direct tap;
// non-pointer environments call it with the same semantics.
func (w *Workflow) Select(candidateID int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.state == StateBlocked {
		return ErrNotEligible
	}
	if w.status.Voted || w.state == StateVoted || w.state == StateReceiptReady {
		return ErrAlreadyVoted
	}
	if w.state != StateEligible || w.submitting {
		return ErrNotReady
	}
	for i := range w.cands {
		if w.cands[i].CID == candidateID {
			c := w.cands[i]
			w.selected = &c
			return nil
		}
	}
	return ErrUnknownCandidate
}

// Cancel drops the current selection. Releasing a drag anywhere but the
// drop target is a no-op cancel.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.submitting {
		return
	}
	w.selected = nil
}

// Confirm models the drop onto the ballot target: it submits the selected
// candidate. Interaction is disabled the instant the first submission
// begins; a second Confirm before resolution gets ErrSubmissionInFlight.
// Confirm returns once the submission resolves.
func (w *Workflow) Confirm(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	switch w.state {
	case StateBlocked:
		w.mu.Unlock()
		return ErrNotEligible
	case StateLoading:
		w.mu.Unlock()
		return ErrNotReady
	case StateVoted, StateReceiptReady:
		w.mu.Unlock()
		return ErrAlreadyVoted
	case StateVoting:
		w.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if w.selected == nil {
		w.mu.Unlock()
		return ErrNoSelection
	}
	cand := *w.selected
	w.submitting = true
	w.lastErr = ""
	w.toStateLocked(StateVoting)
	vote := models.Vote{
		VoterID:     w.user.VID,
		ElectionID:  w.election.ElectionID,
		CandidateID: cand.CID,
	}
	w.mu.Unlock()
	w.flush()

	recorded, err := w.backend.CastVote(ctx, vote)
	if err != nil {
		return w.submissionFailed(ctx, err)
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.submitting = false
	w.status = models.VoteStatus{Voted: true, Vote: &recorded}
	w.buildReceiptLocked()
	w.toStateLocked(StateVoted)
	w.scheduleReceiptLocked()
	w.mu.Unlock()
	w.flush()
	return nil
}

// submissionFailed surfaces the backend message verbatim and reconciles
// against an authoritative status fetch: an "already voted" response means
// the server state wins over whatever the view believed.
func (w *Workflow) submissionFailed(ctx context.Context, submitErr error) error {
	status, statusErr := w.backend.VoteStatus(ctx, w.election.ElectionID, w.user.VID)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.submitting = false
	w.lastErr = submitErr.Error()
	if statusErr == nil && status.Voted {
		w.status = status
		w.buildReceiptLocked()
		w.toStateLocked(StateVoted)
		w.scheduleReceiptLocked()
		w.mu.Unlock()
		w.flush()
		return submitErr
	}
	w.toStateLocked(StateEligible)
	w.log.Warn("vote submission failed",
		zap.Int("electionid", w.election.ElectionID),
		zap.String("error", w.lastErr),
	)
	w.mu.Unlock()
	w.flush()
	return submitErr
}

// Close tears the view instance down. Results of requests still in flight
// are discarded on return instead of mutating dead state.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
}

// scheduleReceiptLocked moves Voted to ReceiptReady after the feedback
// delay. Caller holds the lock.
func (w *Workflow) scheduleReceiptLocked() {
	if w.receiptDelay <= 0 {
		w.toStateLocked(StateReceiptReady)
		return
	}
	time.AfterFunc(w.receiptDelay, func() {
		w.mu.Lock()
		if w.closed || w.state != StateVoted {
			w.mu.Unlock()
			return
		}
		w.toStateLocked(StateReceiptReady)
		w.mu.Unlock()
		w.flush()
	})
}

// buildReceiptLocked derives the receipt from user, election and status.
func (w *Workflow) buildReceiptLocked() {
	var cand models.Candidate
	if w.status.Vote != nil {
		for i := range w.cands {
			if w.cands[i].CID == w.status.Vote.CandidateID {
				cand = w.cands[i]
				break
			}
		}
	}
	r := NewReceipt(w.user, w.election, cand, w.now())
	w.receipt = &r
}

// toStateLocked records a transition; callbacks run later via flush.
func (w *Workflow) toStateLocked(s State) {
	if w.state == s {
		return
	}
	w.state = s
	w.pending = append(w.pending, s)
}

// flush runs subscriber callbacks for transitions recorded under the lock.
func (w *Workflow) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	states := w.pending
	w.pending = nil
	subs := make([]func(State), len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()

	for _, s := range states {
		for _, fn := range subs {
			fn(s)
		}
	}
}
