// Package models defines the core data structures for users, elections,
// candidates and votes as the client understands them.
package models

import "time"

// Role identifies the kind of account a user holds.
type Role string

const (
	// RoleVoter is a regular account that may register as a voter and cast votes.
	RoleVoter Role = "voter"
	// RoleCommittee is an election-committee account that manages elections and candidates.
	RoleCommittee Role = "committee"
)

// ElectionType enumerates the election categories known to the platform.
type ElectionType string

const (
	// Nagar is a municipal election scoped to a city.
	Nagar ElectionType = "Nagar"
	// LokSabha is a national election.
	LokSabha ElectionType = "Lok Sabha"
	// VidhanSabha is a state-level election.
	VidhanSabha ElectionType = "Vidhan Sabha"
)

// ElectionTypes lists every valid election category.
var ElectionTypes = []ElectionType{Nagar, LokSabha, VidhanSabha}

// User represents the authenticated account held by the session store.
// It mirrors the backend record and is cached locally; the backend remains
// the source of truth.
type User struct {
	// ID is the backend account identifier.
	ID int `json:"id"`
	// Name is the user's full name.
	Name string `json:"name"`
	// Email is the login email address.
	Email string `json:"email"`
	// Role is either "voter" or "committee".
	Role Role `json:"role"`
	// Gender is optional profile data.
	Gender string `json:"gender,omitempty"`
	// DateOfBirth is an ISO date string (YYYY-MM-DD, possibly with a time suffix).
	DateOfBirth string `json:"date_of_birth,omitempty"`
	// VID is the voter identifier, present only once voter registration
	// completes. An empty VID blocks every voting surface.
	VID string `json:"vid,omitempty"`
}

// Registered reports whether the user has completed voter registration.
func (u User) Registered() bool { return u.VID != "" }

// Election is a read-only catalog entry fetched from the backend.
type Election struct {
	// ElectionID is the backend election identifier.
	ElectionID int `json:"electionid"`
	// Title is the display title of the election.
	Title string `json:"title"`
	// Type is one of the ElectionType values.
	Type ElectionType `json:"type"`
	// Date is the election date as an ISO string.
	Date string `json:"date"`
	// LocationRegion names the city, state or country the election covers.
	LocationRegion string `json:"location_region"`
	// Status is the backend-reported lifecycle status.
	Status string `json:"status"`
}

// Candidate is a contestant standing in one election.
type Candidate struct {
	// CID is the backend candidate identifier.
	CID int `json:"cid"`
	// ElectionID links the candidate to an election.
	ElectionID int `json:"electionid"`
	// Name is the candidate's full name.
	Name string `json:"name"`
	// Gender is the declared gender.
	Gender string `json:"gender"`
	// DOB is the date of birth as an ISO string.
	DOB string `json:"dob"`
	// AadharID is the 12-digit national identifier.
	AadharID string `json:"aadharid"`
	// Email is the contact email.
	Email string `json:"email"`
	// ContactNumber is the contact phone number.
	ContactNumber string `json:"contact_number"`
	// PartyName is the candidate's party; empty means independent.
	PartyName string `json:"partyname"`
	// SymbolURL optionally points at the party symbol image.
	SymbolURL string `json:"symbol_url,omitempty"`
	// ProfilePhotoURL optionally points at the uploaded profile photo.
	ProfilePhotoURL string `json:"profile_photo_url,omitempty"`
}

// Party returns the party name, or "Independent" when none is set.
func (c Candidate) Party() string {
	if c.PartyName == "" {
		return "Independent"
	}
	return c.PartyName
}

// Vote is a write-once record linking a voter to a candidate in one election.
// The backend enforces uniqueness per (voter, election) pair; the client must
// treat a second attempt as an error, never retry it silently.
type Vote struct {
	// VoterID is the canonical voter identifier (User.VID).
	VoterID string `json:"voterid"`
	// ElectionID is the election voted in.
	ElectionID int `json:"electionid"`
	// CandidateID is the chosen candidate.
	CandidateID int `json:"candidateid"`
	// Timestamp is when the backend recorded the vote.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// VoteStatus is the ephemeral per-(election, voter) answer to "did this
// voter already vote, and for whom". It is recomputed on every view and
// never persisted.
type VoteStatus struct {
	// Voted reports whether a vote exists.
	Voted bool `json:"voted"`
	// Vote holds the recorded vote when Voted is true.
	Vote *Vote `json:"vote,omitempty"`
}

// LeaderboardEntry is one row of the server-computed tally for an election.
type LeaderboardEntry struct {
	// CandidateID identifies the candidate.
	CandidateID int `json:"candidateid"`
	// Name is the candidate's name.
	Name string `json:"name"`
	// PartyName is the candidate's party.
	PartyName string `json:"partyname"`
	// Votes is the aggregate vote count.
	Votes int `json:"votes"`
	// Rank is the 1-indexed position in the tally.
	Rank int `json:"rank"`
}

// VoterRecord is the registration linkage returned by the backend once a
// user completes voter registration.
type VoterRecord struct {
	// VID is the assigned voter identifier.
	VID string `json:"vid"`
	// UserID is the owning account.
	UserID int `json:"userid"`
	// State is the state of residence given at registration.
	State string `json:"state"`
}

// VoterRegistration is the payload submitted to register a user as a voter.
type VoterRegistration struct {
	// UserID is the account being registered.
	UserID int `json:"userid"`
	// AadharID is the 12-digit national identifier.
	AadharID string `json:"aadharid"`
	// Address is the residential address.
	Address string `json:"address"`
	// Nationality is the declared nationality.
	Nationality string `json:"nationality"`
	// VoterCardID is the 10-character voter card identifier.
	VoterCardID string `json:"voter_card_id"`
	// State is the state of residence.
	State string `json:"state"`
}
