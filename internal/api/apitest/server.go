// Package apitest provides an in-memory election backend for client tests.
// It mirrors the REST surface the real backend exposes, including the
// write-once vote invariant and cookie-based sessions.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atinyakov/VoteKeeper/internal/models"
)

const sessionCookie = "evote_session"

// Server is the fake backend. All state lives in memory behind one mutex.
type Server struct {
	mu sync.Mutex

	users      map[int]models.User
	passwords  map[string]string // email -> password
	sessions   map[string]int    // cookie value -> user id
	elections  map[int]models.Election
	candidates map[int]models.Candidate
	votes      map[string]models.Vote // voterID|electionID -> vote
	voters     map[int]models.VoterRecord

	nextUser      int
	nextElection  int
	nextCandidate int

	httpSrv *httptest.Server
}

// New starts the fake backend and returns it. Callers must Close it.
func New() *Server {
	s := &Server{
		users:         make(map[int]models.User),
		passwords:     make(map[string]string),
		sessions:      make(map[string]int),
		elections:     make(map[int]models.Election),
		candidates:    make(map[int]models.Candidate),
		votes:         make(map[string]models.Vote),
		voters:        make(map[int]models.VoterRecord),
		nextUser:      1,
		nextElection:  1,
		nextCandidate: 1,
	}
	s.httpSrv = httptest.NewServer(s.router())
	return s
}

// URL is the base URL of the running fake backend.
func (s *Server) URL() string { return s.httpSrv.URL }

// Close shuts the backend down.
func (s *Server) Close() { s.httpSrv.Close() }

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Get("/elections", s.handleElections)
		r.Post("/elections", s.handleCreateElection)
		r.Get("/elections/{id}", s.handleElection)
		r.Get("/elections/{id}/vote-status/{voterid}", s.handleVoteStatus)

		r.Get("/candidates", s.handleCandidates)
		r.Post("/candidates", s.handleCreateCandidate)
		r.Put("/candidates/{cid}", s.handleUpdateCandidate)
		r.Delete("/candidates/{cid}", s.handleDeleteCandidate)

		r.Post("/votes", s.handleCastVote)
		r.Get("/votes", s.handleVotes)
		r.Get("/votes/leaderboard/{id}", s.handleLeaderboard)

		r.Get("/voters/by-user/{userid}", s.handleVoterByUser)
		r.Post("/voter-registration", s.handleVoterRegistration)
	})
	return r
}

// SeedElection installs an election and returns its id.
func (s *Server) SeedElection(e models.Election) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ElectionID == 0 {
		e.ElectionID = s.nextElection
		s.nextElection++
	} else if e.ElectionID >= s.nextElection {
		s.nextElection = e.ElectionID + 1
	}
	if e.Status == "" {
		e.Status = "ongoing"
	}
	s.elections[e.ElectionID] = e
	return e.ElectionID
}

// SeedCandidate installs a candidate and returns its id.
func (s *Server) SeedCandidate(c models.Candidate) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CID == 0 {
		c.CID = s.nextCandidate
		s.nextCandidate++
	} else if c.CID >= s.nextCandidate {
		s.nextCandidate = c.CID + 1
	}
	s.candidates[c.CID] = c
	return c.CID
}

// SeedVoter installs a registration linkage for a user.
func (s *Server) SeedVoter(rec models.VoterRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voters[rec.UserID] = rec
}

// VoteFor returns the recorded vote for (voterID, electionID), if any.
func (s *Server) VoteFor(voterID string, electionID int) (models.Vote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.votes[voteKey(voterID, electionID)]
	return v, ok
}

func voteKey(voterID string, electionID int) string {
	return voterID + "|" + strconv.Itoa(electionID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string      `json:"name"`
		Email       string      `json:"email"`
		Password    string      `json:"password"`
		Role        models.Role `json:"role"`
		Gender      string      `json:"gender"`
		DateOfBirth string      `json:"date_of_birth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	s.mu.Lock()
	if _, exists := s.passwords[req.Email]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "email already registered")
		return
	}
	u := models.User{
		ID:          s.nextUser,
		Name:        req.Name,
		Email:       req.Email,
		Role:        req.Role,
		Gender:      req.Gender,
		DateOfBirth: req.DateOfBirth,
	}
	s.nextUser++
	s.users[u.ID] = u
	s.passwords[req.Email] = req.Password
	cookie := uuid.NewString()
	s.sessions[cookie] = u.ID
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: cookie, Path: "/"})
	writeJSON(w, http.StatusCreated, map[string]any{"user": u})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pw, ok := s.passwords[req.Email]
	if !ok || pw != req.Password {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	var user models.User
	for _, u := range s.users {
		if u.Email == req.Email {
			user = u
			break
		}
	}
	if rec, ok := s.voters[user.ID]; ok {
		user.VID = rec.VID
	}
	cookie := uuid.NewString()
	s.sessions[cookie] = user.ID
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: cookie, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleElections(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := make([]models.Election, 0, len(s.elections))
	for _, e := range s.elections {
		list = append(list, e)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ElectionID < list[j].ElectionID })
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateElection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title          string              `json:"title"`
		Type           models.ElectionType `json:"type"`
		Date           string              `json:"date"`
		LocationRegion string              `json:"location_region"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" || req.Type == "" {
		writeError(w, http.StatusBadRequest, "title and type are required")
		return
	}
	s.mu.Lock()
	e := models.Election{
		ElectionID:     s.nextElection,
		Title:          req.Title,
		Type:           req.Type,
		Date:           req.Date,
		LocationRegion: req.LocationRegion,
		Status:         "upcoming",
	}
	s.nextElection++
	s.elections[e.ElectionID] = e
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleElection(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid election id")
		return
	}
	s.mu.Lock()
	e, ok := s.elections[id]
	var cands []models.Candidate
	for _, c := range s.candidates {
		if c.ElectionID == id {
			cands = append(cands, c)
		}
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "election not found")
		return
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].CID < cands[j].CID })
	writeJSON(w, http.StatusOK, map[string]any{
		"electionid":      e.ElectionID,
		"title":           e.Title,
		"type":            e.Type,
		"date":            e.Date,
		"location_region": e.LocationRegion,
		"status":          e.Status,
		"candidates":      cands,
	})
}

func (s *Server) handleVoteStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid election id")
		return
	}
	voterID := chi.URLParam(r, "voterid")
	s.mu.Lock()
	v, ok := s.votes[voteKey(voterID, id)]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, models.VoteStatus{Voted: false})
		return
	}
	writeJSON(w, http.StatusOK, models.VoteStatus{Voted: true, Vote: &v})
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	electionID := 0
	if raw := r.URL.Query().Get("electionid"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid election id")
			return
		}
		electionID = id
	}
	s.mu.Lock()
	list := make([]models.Candidate, 0)
	for _, c := range s.candidates {
		if electionID == 0 || c.ElectionID == electionID {
			list = append(list, c)
		}
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].CID < list[j].CID })
	writeJSON(w, http.StatusOK, list)
}

// candidateFromForm reads the multipart candidate form the client sends.
func (s *Server) candidateFromForm(r *http.Request) (models.Candidate, error) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return models.Candidate{}, fmt.Errorf("invalid form: %w", err)
	}
	c := models.Candidate{
		Name:          r.FormValue("name"),
		Gender:        r.FormValue("gender"),
		DOB:           r.FormValue("dob"),
		AadharID:      r.FormValue("aadharid"),
		Email:         r.FormValue("email"),
		ContactNumber: r.FormValue("contact_number"),
		PartyName:     r.FormValue("partyname"),
	}
	if raw := r.FormValue("electionid"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return models.Candidate{}, fmt.Errorf("invalid election id")
		}
		c.ElectionID = id
	}
	if file, header, err := r.FormFile("profile_photo"); err == nil {
		_ = file.Close()
		c.ProfilePhotoURL = "/uploads/" + header.Filename
	}
	return c, nil
}

func (s *Server) handleCreateCandidate(w http.ResponseWriter, r *http.Request) {
	c, err := s.candidateFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(c.AadharID) != 12 {
		writeError(w, http.StatusBadRequest, "aadhar id must be 12 digits")
		return
	}
	s.mu.Lock()
	c.CID = s.nextCandidate
	s.nextCandidate++
	s.candidates[c.CID] = c
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCandidate(w http.ResponseWriter, r *http.Request) {
	cid, err := strconv.Atoi(chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid candidate id")
		return
	}
	c, err := s.candidateFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	existing, ok := s.candidates[cid]
	if ok {
		c.CID = cid
		if c.ElectionID == 0 {
			c.ElectionID = existing.ElectionID
		}
		if c.ProfilePhotoURL == "" {
			c.ProfilePhotoURL = existing.ProfilePhotoURL
		}
		s.candidates[cid] = c
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCandidate(w http.ResponseWriter, r *http.Request) {
	cid, err := strconv.Atoi(chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid candidate id")
		return
	}
	s.mu.Lock()
	_, ok := s.candidates[cid]
	delete(s.candidates, cid)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "candidate not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var v models.Vote
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil || v.VoterID == "" || v.ElectionID == 0 || v.CandidateID == 0 {
		writeError(w, http.StatusBadRequest, "voterid, electionid and candidateid are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[v.ElectionID]; !ok {
		writeError(w, http.StatusNotFound, "election not found")
		return
	}
	if c, ok := s.candidates[v.CandidateID]; !ok || c.ElectionID != v.ElectionID {
		writeError(w, http.StatusBadRequest, "candidate does not stand in this election")
		return
	}
	key := voteKey(v.VoterID, v.ElectionID)
	if _, ok := s.votes[key]; ok {
		// The original record stays untouched.
		writeError(w, http.StatusConflict, "already voted in this election")
		return
	}
	v.Timestamp = time.Now().UTC()
	s.votes[key] = v
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := make([]models.Vote, 0, len(s.votes))
	for _, v := range s.votes {
		list = append(list, v)
	}
	s.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid election id")
		return
	}
	s.mu.Lock()
	counts := make(map[int]int)
	for _, v := range s.votes {
		if v.ElectionID == id {
			counts[v.CandidateID]++
		}
	}
	entries := make([]models.LeaderboardEntry, 0)
	for _, c := range s.candidates {
		if c.ElectionID != id {
			continue
		}
		entries = append(entries, models.LeaderboardEntry{
			CandidateID: c.CID,
			Name:        c.Name,
			PartyName:   c.PartyName,
			Votes:       counts[c.CID],
		})
	}
	s.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Votes != entries[j].Votes {
			return entries[i].Votes > entries[j].Votes
		}
		return entries[i].CandidateID < entries[j].CandidateID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleVoterByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	s.mu.Lock()
	rec, ok := s.voters[userID]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "voter registration not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleVoterRegistration(w http.ResponseWriter, r *http.Request) {
	var reg models.VoterRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil || reg.UserID == 0 {
		writeError(w, http.StatusBadRequest, "invalid registration")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.voters[reg.UserID]; ok {
		writeError(w, http.StatusConflict, "already registered as a voter")
		return
	}
	if len(reg.AadharID) != 12 {
		writeError(w, http.StatusBadRequest, "aadhar id must be 12 digits")
		return
	}
	rec := models.VoterRecord{
		VID:    "V" + strconv.Itoa(100+len(s.voters)),
		UserID: reg.UserID,
		State:  reg.State,
	}
	s.voters[reg.UserID] = rec
	writeJSON(w, http.StatusCreated, rec)
}
