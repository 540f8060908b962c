package vote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/VoteKeeper/internal/models"
)

// mockBackend implements Backend with function fields.
type mockBackend struct {
	mu         sync.Mutex
	statusFunc func(ctx context.Context, electionID int, voterID string) (models.VoteStatus, error)
	castFunc   func(ctx context.Context, vote models.Vote) (models.Vote, error)
	castCalls  int
}

func (m *mockBackend) VoteStatus(ctx context.Context, electionID int, voterID string) (models.VoteStatus, error) {
	return m.statusFunc(ctx, electionID, voterID)
}

func (m *mockBackend) CastVote(ctx context.Context, vote models.Vote) (models.Vote, error) {
	m.mu.Lock()
	m.castCalls++
	m.mu.Unlock()
	return m.castFunc(ctx, vote)
}

func (m *mockBackend) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.castCalls
}

var (
	testUser     = models.User{ID: 9, Name: "Asha", VID: "V100", Role: models.RoleVoter}
	testElection = models.Election{ElectionID: 7, Title: "Ward 5", Type: models.Nagar, Date: "2025-03-01", LocationRegion: "Pune"}
	testCands    = []models.Candidate{
		{CID: 1, ElectionID: 7, Name: "Raj", PartyName: "Party A"},
		{CID: 2, ElectionID: 7, Name: "Mina", PartyName: "Party B"},
	}
)

func noVote() *mockBackend {
	return &mockBackend{
		statusFunc: func(context.Context, int, string) (models.VoteStatus, error) {
			return models.VoteStatus{Voted: false}, nil
		},
		castFunc: func(_ context.Context, v models.Vote) (models.Vote, error) {
			v.Timestamp = time.Now()
			return v, nil
		},
	}
}

func newWorkflow(backend Backend, user models.User) *Workflow {
	w := New(backend, user, testElection, testCands, zap.NewNop())
	w.SetReceiptDelay(0)
	return w
}

func TestStart_NoVID_Blocked(t *testing.T) {
	backend := noVote()
	backend.statusFunc = func(context.Context, int, string) (models.VoteStatus, error) {
		t.Fatal("vote-status must not be queried without a voter id")
		return models.VoteStatus{}, nil
	}
	w := newWorkflow(backend, models.User{ID: 9, Name: "Asha"})

	if err := w.Start(context.Background()); err != ErrNotEligible {
		t.Fatalf("Start = %v; want ErrNotEligible", err)
	}
	if w.State() != StateBlocked {
		t.Fatalf("state = %v; want blocked", w.State())
	}
	// No entry point may enable submission for an unregistered user.
	if err := w.Select(1); err != ErrNotEligible {
		t.Errorf("Select = %v; want ErrNotEligible", err)
	}
	if err := w.Confirm(context.Background()); err != ErrNotEligible {
		t.Errorf("Confirm = %v; want ErrNotEligible", err)
	}
}

func TestConfirm_BeforeStart_NotReady(t *testing.T) {
	w := newWorkflow(noVote(), testUser)
	if err := w.Confirm(context.Background()); err != ErrNotReady {
		t.Fatalf("Confirm in loading = %v; want ErrNotReady", err)
	}
}

func TestHappyPath_EligibleToReceipt(t *testing.T) {
	backend := noVote()
	w := newWorkflow(backend, testUser)

	var states []State
	w.Subscribe(func(s State) { states = append(states, s) })

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.State() != StateEligible {
		t.Fatalf("state = %v; want eligible", w.State())
	}
	if err := w.Select(1); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := w.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if w.State() != StateReceiptReady {
		t.Fatalf("state = %v; want receipt-ready", w.State())
	}

	status := w.Status()
	if !status.Voted || status.Vote == nil || status.Vote.CandidateID != 1 {
		t.Fatalf("status = %+v; want voted for candidate 1", status)
	}
	r, ok := w.Receipt()
	if !ok {
		t.Fatal("expected a receipt")
	}
	if r.CandidateName != "Raj" {
		t.Errorf("receipt candidate = %q; want Raj", r.CandidateName)
	}
	if r.ID[:8] != "EVC-PUN-" {
		t.Errorf("receipt id = %q", r.ID)
	}

	want := []State{StateEligible, StateVoting, StateVoted, StateReceiptReady}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v; want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("transitions = %v; want %v", states, want)
		}
	}
}

func TestConfirm_RequiresSelection(t *testing.T) {
	w := newWorkflow(noVote(), testUser)
	_ = w.Start(context.Background())
	if err := w.Confirm(context.Background()); err != ErrNoSelection {
		t.Fatalf("Confirm = %v; want ErrNoSelection", err)
	}
}

func TestCancel_DropsSelection(t *testing.T) {
	w := newWorkflow(noVote(), testUser)
	_ = w.Start(context.Background())
	_ = w.Select(2)
	w.Cancel()
	if _, ok := w.Selected(); ok {
		t.Error("selection should be dropped after Cancel")
	}
	if err := w.Confirm(context.Background()); err != ErrNoSelection {
		t.Errorf("Confirm after cancel = %v; want ErrNoSelection", err)
	}
}

func TestSelect_UnknownCandidate(t *testing.T) {
	w := newWorkflow(noVote(), testUser)
	_ = w.Start(context.Background())
	if err := w.Select(99); err != ErrUnknownCandidate {
		t.Fatalf("Select(99) = %v; want ErrUnknownCandidate", err)
	}
}

func TestConfirm_DoubleDropSuppressed(t *testing.T) {
	release := make(chan struct{})
	backend := noVote()
	backend.castFunc = func(_ context.Context, v models.Vote) (models.Vote, error) {
		<-release
		return v, nil
	}
	w := newWorkflow(backend, testUser)
	_ = w.Start(context.Background())
	_ = w.Select(1)

	firstDone := make(chan error, 1)
	go func() { firstDone <- w.Confirm(context.Background()) }()

	// Wait until the first drop switched the workflow to voting.
	deadline := time.After(2 * time.Second)
	for w.State() != StateVoting {
		select {
		case <-deadline:
			t.Fatal("workflow never entered voting")
		case <-time.After(time.Millisecond):
		}
	}

	if err := w.Confirm(context.Background()); err != ErrSubmissionInFlight {
		t.Fatalf("second drop = %v; want ErrSubmissionInFlight", err)
	}
	if err := w.Select(2); err != ErrNotReady {
		t.Fatalf("Select during submission = %v; want ErrNotReady", err)
	}

	close(release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first drop failed: %v", err)
	}
	if got := backend.calls(); got != 1 {
		t.Fatalf("cast calls = %d; want exactly 1", got)
	}
}

func TestConfirm_FailureSurfacedVerbatimNoRetry(t *testing.T) {
	backend := noVote()
	backend.castFunc = func(context.Context, models.Vote) (models.Vote, error) {
		return models.Vote{}, errors.New("ballot box unavailable")
	}
	w := newWorkflow(backend, testUser)
	_ = w.Start(context.Background())
	_ = w.Select(1)

	err := w.Confirm(context.Background())
	if err == nil || err.Error() != "ballot box unavailable" {
		t.Fatalf("Confirm = %v; want the backend message verbatim", err)
	}
	if w.State() != StateEligible {
		t.Fatalf("state = %v; want eligible again", w.State())
	}
	if w.LastError() != "ballot box unavailable" {
		t.Errorf("LastError = %q", w.LastError())
	}
	if got := backend.calls(); got != 1 {
		t.Fatalf("cast calls = %d; no automatic retry allowed", got)
	}

	// The user may try again explicitly.
	backend.castFunc = func(_ context.Context, v models.Vote) (models.Vote, error) { return v, nil }
	_ = w.Select(1)
	if err := w.Confirm(context.Background()); err != nil {
		t.Fatalf("manual retry failed: %v", err)
	}
}

func TestConfirm_AlreadyVotedReconcilesAgainstServer(t *testing.T) {
	// Local state believes no vote exists; the server knows better. The
	// status fetch, not the optimistic state, decides.
	recorded := models.Vote{VoterID: "V100", ElectionID: 7, CandidateID: 2}
	statusCalls := 0
	backend := &mockBackend{
		statusFunc: func(context.Context, int, string) (models.VoteStatus, error) {
			statusCalls++
			if statusCalls == 1 {
				return models.VoteStatus{Voted: false}, nil
			}
			return models.VoteStatus{Voted: true, Vote: &recorded}, nil
		},
		castFunc: func(context.Context, models.Vote) (models.Vote, error) {
			return models.Vote{}, errors.New("already voted in this election")
		},
	}
	w := newWorkflow(backend, testUser)
	_ = w.Start(context.Background())
	_ = w.Select(1)

	err := w.Confirm(context.Background())
	if err == nil || err.Error() != "already voted in this election" {
		t.Fatalf("Confirm = %v", err)
	}
	if w.State() != StateReceiptReady {
		t.Fatalf("state = %v; want receipt-ready from the authoritative status", w.State())
	}
	status := w.Status()
	if !status.Voted || status.Vote.CandidateID != 2 {
		t.Fatalf("status = %+v; the originally recorded candidate must win", status)
	}
	r, _ := w.Receipt()
	if r.CandidateName != "Mina" {
		t.Errorf("receipt candidate = %q; want the recorded one", r.CandidateName)
	}
}

func TestStart_AlreadyVoted(t *testing.T) {
	recorded := models.Vote{VoterID: "V100", ElectionID: 7, CandidateID: 1}
	backend := noVote()
	backend.statusFunc = func(context.Context, int, string) (models.VoteStatus, error) {
		return models.VoteStatus{Voted: true, Vote: &recorded}, nil
	}
	w := newWorkflow(backend, testUser)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.State() != StateReceiptReady {
		t.Fatalf("state = %v; want receipt-ready", w.State())
	}
	if err := w.Select(2); err != ErrAlreadyVoted {
		t.Errorf("Select = %v; want ErrAlreadyVoted", err)
	}
	if err := w.Confirm(context.Background()); err != ErrAlreadyVoted {
		t.Errorf("Confirm = %v; want ErrAlreadyVoted", err)
	}
}

func TestReceiptDelay_VotedBeforeReceiptReady(t *testing.T) {
	backend := noVote()
	w := New(backend, testUser, testElection, testCands, zap.NewNop())
	w.SetReceiptDelay(30 * time.Millisecond)

	ready := make(chan struct{})
	w.Subscribe(func(s State) {
		if s == StateReceiptReady {
			close(ready)
		}
	})

	_ = w.Start(context.Background())
	_ = w.Select(1)
	if err := w.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if w.State() != StateVoted {
		t.Fatalf("state right after Confirm = %v; want voted", w.State())
	}
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("never reached receipt-ready")
	}
}

func TestClose_DiscardsInFlightResult(t *testing.T) {
	release := make(chan struct{})
	backend := noVote()
	backend.castFunc = func(_ context.Context, v models.Vote) (models.Vote, error) {
		<-release
		return v, nil
	}
	w := newWorkflow(backend, testUser)
	_ = w.Start(context.Background())
	_ = w.Select(1)

	done := make(chan error, 1)
	go func() { done <- w.Confirm(context.Background()) }()
	for w.State() != StateVoting {
		time.Sleep(time.Millisecond)
	}

	w.Close()
	close(release)
	if err := <-done; err != ErrClosed {
		t.Fatalf("Confirm after close = %v; want ErrClosed", err)
	}
	// The result returned after teardown must not advance dead state.
	if w.State() != StateVoting {
		t.Fatalf("state mutated after close: %v", w.State())
	}
	if _, ok := w.Receipt(); ok {
		t.Error("no receipt may be derived after close")
	}
}

func TestStart_StatusFetchMustResolveFirst(t *testing.T) {
	backend := noVote()
	backend.statusFunc = func(context.Context, int, string) (models.VoteStatus, error) {
		return models.VoteStatus{}, errors.New("backend unreachable")
	}
	w := newWorkflow(backend, testUser)

	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected status fetch failure")
	}
	if w.State() != StateLoading {
		t.Fatalf("state = %v; want still loading", w.State())
	}
	if err := w.Confirm(context.Background()); err != ErrNotReady {
		t.Fatalf("Confirm = %v; controls must stay gated on loading", err)
	}
}
