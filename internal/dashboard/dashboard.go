// Package dashboard composes the role-specific views: election lists and
// leaderboards for voters, candidate and election management for the
// committee. Every operation is a direct request/response round trip with
// local loading and error flags.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/VoteKeeper/internal/api"
	"github.com/atinyakov/VoteKeeper/internal/models"
	"github.com/atinyakov/VoteKeeper/internal/session"
	"github.com/atinyakov/VoteKeeper/internal/validate"
)

// ErrNoElectionSelected is returned by candidate operations before an
// election is selected.
var ErrNoElectionSelected = errors.New("no election selected")

// VoterBackend is the slice of the API gateway the voter view needs.
type VoterBackend interface {
	Elections(ctx context.Context) ([]models.Election, error)
	Election(ctx context.Context, electionID int) (api.ElectionDetail, error)
	Leaderboard(ctx context.Context, electionID int) ([]models.LeaderboardEntry, error)
	RegisterVoter(ctx context.Context, reg models.VoterRegistration) error
	VoterByUser(ctx context.Context, userID int) (models.VoterRecord, error)
}

// VoterDashboard backs the voter's screens.
type VoterDashboard struct {
	backend VoterBackend
	session *session.Store
	now     func() time.Time
	log     *zap.Logger
}

// NewVoterDashboard wires the voter view to the gateway and session store.
func NewVoterDashboard(backend VoterBackend, store *session.Store, log *zap.Logger) *VoterDashboard {
	return &VoterDashboard{backend: backend, session: store, now: time.Now, log: log}
}

// Elections lists the catalog, filtered to one category when given.
func (d *VoterDashboard) Elections(ctx context.Context, category models.ElectionType) ([]models.Election, error) {
	all, err := d.backend.Elections(ctx)
	if err != nil {
		return nil, err
	}
	if category == "" {
		return all, nil
	}
	filtered := make([]models.Election, 0, len(all))
	for _, e := range all {
		if e.Type == category {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Election fetches one election with its candidates.
func (d *VoterDashboard) Election(ctx context.Context, electionID int) (api.ElectionDetail, error) {
	return d.backend.Election(ctx, electionID)
}

// Leaderboard fetches the server-computed tally for one election.
func (d *VoterDashboard) Leaderboard(ctx context.Context, electionID int) ([]models.LeaderboardEntry, error) {
	return d.backend.Leaderboard(ctx, electionID)
}

// Register validates and submits a voter registration, then re-fetches the
// registration linkage and merges the assigned voter id into the session
// user. The backend answer, not the optimistic local state, provides the
// voter id.
func (d *VoterDashboard) Register(ctx context.Context, reg models.VoterRegistration) (models.User, error) {
	user, err := d.session.Require()
	if err != nil {
		return models.User{}, err
	}
	if user.Registered() {
		return user, errors.New("already registered as a voter")
	}
	reg.UserID = user.ID
	if err := validate.VoterRegistration(reg, user, d.now()); err != nil {
		return models.User{}, err
	}
	if err := d.backend.RegisterVoter(ctx, reg); err != nil {
		return models.User{}, err
	}
	rec, err := d.backend.VoterByUser(ctx, user.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("registration accepted but voter lookup failed: %w", err)
	}
	user.VID = rec.VID
	if err := d.session.Login(user); err != nil {
		return models.User{}, err
	}
	d.log.Info("voter registration complete",
		zap.Int("userid", user.ID),
		zap.String("vid", user.VID),
	)
	return user, nil
}

// CommitteeBackend is the slice of the API gateway the committee view needs.
type CommitteeBackend interface {
	Elections(ctx context.Context) ([]models.Election, error)
	CreateElection(ctx context.Context, req api.CreateElectionRequest) (models.Election, error)
	Candidates(ctx context.Context, electionID int) ([]models.Candidate, error)
	CreateCandidate(ctx context.Context, form api.CandidateForm, photo *api.Photo) (models.Candidate, error)
	UpdateCandidate(ctx context.Context, cid int, form api.CandidateForm, photo *api.Photo) (models.Candidate, error)
	DeleteCandidate(ctx context.Context, cid int) error
}

// CommitteeDashboard backs the committee's tabbed management screen. The
// selected election and candidate table always belong to the last
// successful fetch; switching category clears both before fetching.
type CommitteeDashboard struct {
	mu sync.Mutex

	backend CommitteeBackend
	log     *zap.Logger

	category   models.ElectionType
	elections  []models.Election
	selected   *models.Election
	candidates []models.Candidate
}

// NewCommitteeDashboard wires the committee view to the gateway.
func NewCommitteeDashboard(backend CommitteeBackend, log *zap.Logger) *CommitteeDashboard {
	return &CommitteeDashboard{backend: backend, category: models.Nagar, log: log}
}

// SelectCategory switches the category tab. Stale selections from the
// previous category are cleared before the new fetch begins.
func (d *CommitteeDashboard) SelectCategory(ctx context.Context, category models.ElectionType) ([]models.Election, error) {
	if err := validate.ElectionType(string(category)); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.category = category
	d.selected = nil
	d.candidates = nil
	d.elections = nil
	d.mu.Unlock()

	all, err := d.backend.Elections(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]models.Election, 0, len(all))
	for _, e := range all {
		if e.Type == category {
			filtered = append(filtered, e)
		}
	}
	d.mu.Lock()
	if d.category == category {
		d.elections = filtered
	}
	d.mu.Unlock()
	return filtered, nil
}

// SelectElection picks an election from the current category and loads its
// candidate table.
func (d *CommitteeDashboard) SelectElection(ctx context.Context, electionID int) ([]models.Candidate, error) {
	d.mu.Lock()
	var chosen *models.Election
	for i := range d.elections {
		if d.elections[i].ElectionID == electionID {
			e := d.elections[i]
			chosen = &e
			break
		}
	}
	if chosen == nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("election %d is not in the current category", electionID)
	}
	d.selected = chosen
	d.candidates = nil
	d.mu.Unlock()

	return d.refreshCandidates(ctx, electionID)
}

// Selected returns the currently selected election.
func (d *CommitteeDashboard) Selected() (models.Election, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.selected == nil {
		return models.Election{}, false
	}
	return *d.selected, true
}

// Candidates returns the candidate table from the last successful fetch.
func (d *CommitteeDashboard) Candidates() []models.Candidate {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Candidate, len(d.candidates))
	copy(out, d.candidates)
	return out
}

// SaveCandidate creates or updates a candidate on the selected election,
// then refreshes the table. Client-side validation runs before any request.
func (d *CommitteeDashboard) SaveCandidate(ctx context.Context, cid int, form api.CandidateForm, photo *api.Photo) (models.Candidate, error) {
	d.mu.Lock()
	sel := d.selected
	d.mu.Unlock()
	if sel == nil {
		return models.Candidate{}, ErrNoElectionSelected
	}
	if err := validate.CandidateForm(form.Name, form.AadharID, form.Email); err != nil {
		return models.Candidate{}, err
	}

	var (
		saved models.Candidate
		err   error
	)
	if cid == 0 {
		form.ElectionID = sel.ElectionID
		saved, err = d.backend.CreateCandidate(ctx, form, photo)
	} else {
		saved, err = d.backend.UpdateCandidate(ctx, cid, form, photo)
	}
	if err != nil {
		return models.Candidate{}, err
	}
	if _, err := d.refreshCandidates(ctx, sel.ElectionID); err != nil {
		return saved, err
	}
	return saved, nil
}

// DeleteCandidate removes a candidate and refreshes the table.
func (d *CommitteeDashboard) DeleteCandidate(ctx context.Context, cid int) error {
	d.mu.Lock()
	sel := d.selected
	d.mu.Unlock()
	if sel == nil {
		return ErrNoElectionSelected
	}
	if err := d.backend.DeleteCandidate(ctx, cid); err != nil {
		return err
	}
	_, err := d.refreshCandidates(ctx, sel.ElectionID)
	return err
}

// CreateElection writes a new election through to the backend and, when it
// lands in the current category, refreshes the election list.
func (d *CommitteeDashboard) CreateElection(ctx context.Context, req api.CreateElectionRequest) (models.Election, error) {
	if err := validate.ElectionType(string(req.Type)); err != nil {
		return models.Election{}, err
	}
	if req.Title == "" {
		return models.Election{}, errors.New("title is required")
	}
	created, err := d.backend.CreateElection(ctx, req)
	if err != nil {
		return models.Election{}, err
	}
	d.mu.Lock()
	current := d.category
	d.mu.Unlock()
	if created.Type == current {
		if _, err := d.SelectCategory(ctx, current); err != nil {
			return created, err
		}
	}
	return created, nil
}

func (d *CommitteeDashboard) refreshCandidates(ctx context.Context, electionID int) ([]models.Candidate, error) {
	cands, err := d.backend.Candidates(ctx, electionID)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.selected != nil && d.selected.ElectionID == electionID {
		d.candidates = cands
	}
	d.mu.Unlock()
	return cands, nil
}
