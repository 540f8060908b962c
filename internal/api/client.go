// Package api is the typed gateway to the election backend. It translates
// method calls into HTTP requests, attaches session cookies automatically,
// and normalizes failures into *Error values carrying the backend message.
// The gateway never retries; retry policy belongs to callers.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/VoteKeeper/internal/models"
)

// Error is a failure reported by the backend. Message carries the
// backend-supplied text when present, else "unknown error".
type Error struct {
	// Status is the HTTP status code of the response.
	Status int
	// Message is the human-readable failure description.
	Message string
}

func (e *Error) Error() string { return e.Message }

// Client issues requests against the backend REST surface. Credentials are
// cookie-based and attached automatically through the cookie jar.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// New constructs a Client for the given base URL.
func New(baseURL string, log *zap.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Jar: jar, Timeout: 15 * time.Second},
		log:     log,
	}, nil
}

// NewWithHTTPClient constructs a Client over an existing *http.Client.
// Used by tests to inject a mocked transport.
func NewWithHTTPClient(baseURL string, hc *http.Client, log *zap.Logger) *Client {
	return &Client{baseURL: baseURL, http: hc, log: log}
}

// do issues one request and decodes a JSON response into out (when out is
// non-nil). A non-2xx response becomes an *Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send executes req and handles status/decoding uniformly.
func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

// decodeError extracts the backend {"error": "..."} message when present.
func (c *Client) decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Message: "unknown error"}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if body.Error != "" {
			apiErr.Message = body.Error
		} else if body.Message != "" {
			apiErr.Message = body.Message
		}
	}
	c.log.Debug("backend error",
		zap.Int("status", apiErr.Status),
		zap.String("message", apiErr.Message),
	)
	return apiErr
}

// RegisterRequest is the signup payload.
type RegisterRequest struct {
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	Role        models.Role `json:"role"`
	Gender      string      `json:"gender"`
	DateOfBirth string      `json:"date_of_birth"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

// authResponse wraps the user record returned by the auth endpoints.
type authResponse struct {
	User models.User `json:"user"`
}

// Register creates a new account and returns the backend user record.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (models.User, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &resp); err != nil {
		return models.User{}, err
	}
	return resp.User, nil
}

// Login authenticates and returns the backend user record. The session
// cookie set by the backend lands in the jar.
func (c *Client) Login(ctx context.Context, req LoginRequest) (models.User, error) {
	var resp authResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &resp); err != nil {
		return models.User{}, err
	}
	return resp.User, nil
}

// Elections lists the full election catalog.
func (c *Client) Elections(ctx context.Context) ([]models.Election, error) {
	var out []models.Election
	if err := c.do(ctx, http.MethodGet, "/api/elections", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ElectionDetail is one election together with its candidates.
type ElectionDetail struct {
	models.Election
	Candidates []models.Candidate `json:"candidates"`
}

// Election fetches a single election with its candidate list.
func (c *Client) Election(ctx context.Context, electionID int) (ElectionDetail, error) {
	var out ElectionDetail
	path := "/api/elections/" + strconv.Itoa(electionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return ElectionDetail{}, err
	}
	return out, nil
}

// CreateElectionRequest is the committee payload for creating an election.
type CreateElectionRequest struct {
	Title          string              `json:"title"`
	Type           models.ElectionType `json:"type"`
	Date           string              `json:"date"`
	LocationRegion string              `json:"location_region"`
}

// CreateElection writes a new election through to the backend.
func (c *Client) CreateElection(ctx context.Context, req CreateElectionRequest) (models.Election, error) {
	var out models.Election
	if err := c.do(ctx, http.MethodPost, "/api/elections", req, &out); err != nil {
		return models.Election{}, err
	}
	return out, nil
}

// Candidates lists candidates, optionally scoped to one election.
func (c *Client) Candidates(ctx context.Context, electionID int) ([]models.Candidate, error) {
	path := "/api/candidates"
	if electionID != 0 {
		path += "?electionid=" + strconv.Itoa(electionID)
	}
	var out []models.Candidate
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Photo is an optional binary attachment for candidate create/update.
type Photo struct {
	// Filename is the original file name.
	Filename string
	// Data is the raw image content.
	Data []byte
}

// CandidateForm carries the candidate fields sent as multipart form data.
type CandidateForm struct {
	ElectionID    int
	Name          string
	Gender        string
	DOB           string
	AadharID      string
	Email         string
	ContactNumber string
	PartyName     string
}

// values returns the text fields of the form.
func (f CandidateForm) values() url.Values {
	v := url.Values{}
	if f.ElectionID != 0 {
		v.Set("electionid", strconv.Itoa(f.ElectionID))
	}
	v.Set("name", f.Name)
	v.Set("gender", f.Gender)
	v.Set("dob", f.DOB)
	v.Set("aadharid", f.AadharID)
	v.Set("email", f.Email)
	v.Set("contact_number", f.ContactNumber)
	v.Set("partyname", f.PartyName)
	return v
}

// CreateCandidate creates a candidate, attaching the photo when given.
func (c *Client) CreateCandidate(ctx context.Context, form CandidateForm, photo *Photo) (models.Candidate, error) {
	return c.sendCandidate(ctx, http.MethodPost, "/api/candidates", form, photo)
}

// UpdateCandidate updates an existing candidate.
func (c *Client) UpdateCandidate(ctx context.Context, cid int, form CandidateForm, photo *Photo) (models.Candidate, error) {
	return c.sendCandidate(ctx, http.MethodPut, "/api/candidates/"+strconv.Itoa(cid), form, photo)
}

func (c *Client) sendCandidate(ctx context.Context, method, path string, form CandidateForm, photo *Photo) (models.Candidate, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, vals := range form.values() {
		for _, val := range vals {
			if err := mw.WriteField(key, val); err != nil {
				return models.Candidate{}, fmt.Errorf("write form field %s: %w", key, err)
			}
		}
	}
	if photo != nil {
		part, err := mw.CreateFormFile("profile_photo", photo.Filename)
		if err != nil {
			return models.Candidate{}, fmt.Errorf("attach photo: %w", err)
		}
		if _, err := part.Write(photo.Data); err != nil {
			return models.Candidate{}, fmt.Errorf("attach photo: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return models.Candidate{}, fmt.Errorf("finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return models.Candidate{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out models.Candidate
	if err := c.send(req, &out); err != nil {
		return models.Candidate{}, err
	}
	return out, nil
}

// DeleteCandidate removes a candidate.
func (c *Client) DeleteCandidate(ctx context.Context, cid int) error {
	return c.do(ctx, http.MethodDelete, "/api/candidates/"+strconv.Itoa(cid), nil, nil)
}

// VoteStatus resolves whether voterID already voted in electionID. The
// answer is authoritative and overrides any local optimistic state.
func (c *Client) VoteStatus(ctx context.Context, electionID int, voterID string) (models.VoteStatus, error) {
	path := fmt.Sprintf("/api/elections/%d/vote-status/%s", electionID, url.PathEscape(voterID))
	var out models.VoteStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return models.VoteStatus{}, err
	}
	return out, nil
}

// CastVote submits one vote. The backend enforces write-once per
// (voter, election); duplicates come back as an *Error.
func (c *Client) CastVote(ctx context.Context, vote models.Vote) (models.Vote, error) {
	var out models.Vote
	if err := c.do(ctx, http.MethodPost, "/api/votes", vote, &out); err != nil {
		return models.Vote{}, err
	}
	return out, nil
}

// Votes returns the caller's vote history.
func (c *Client) Votes(ctx context.Context) ([]models.Vote, error) {
	var out []models.Vote
	if err := c.do(ctx, http.MethodGet, "/api/votes", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Leaderboard returns the server-computed tally for one election.
func (c *Client) Leaderboard(ctx context.Context, electionID int) ([]models.LeaderboardEntry, error) {
	path := "/api/votes/leaderboard/" + strconv.Itoa(electionID)
	var out []models.LeaderboardEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// VoterByUser fetches the voter registration linkage for an account.
func (c *Client) VoterByUser(ctx context.Context, userID int) (models.VoterRecord, error) {
	path := "/api/voters/by-user/" + strconv.Itoa(userID)
	var out models.VoterRecord
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return models.VoterRecord{}, err
	}
	return out, nil
}

// RegisterVoter submits a voter registration.
func (c *Client) RegisterVoter(ctx context.Context, reg models.VoterRegistration) error {
	return c.do(ctx, http.MethodPost, "/api/voter-registration", reg, nil)
}
