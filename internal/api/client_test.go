package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/VoteKeeper/internal/models"
)

// roundTripperFunc lets tests mock the http.Client transport.
type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(fn roundTripperFunc) *Client {
	hc := &http.Client{Transport: fn, Timeout: time.Second}
	return NewWithHTTPClient("http://example.com", hc, zap.NewNop())
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestVoteStatus_Path(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/api/elections/7/vote-status/V100" {
			t.Errorf("unexpected path: %s", req.URL.Path)
		}
		if req.Method != http.MethodGet {
			t.Errorf("unexpected method: %s", req.Method)
		}
		return jsonResponse(http.StatusOK, `{"voted":false}`), nil
	})

	status, err := client.VoteStatus(context.Background(), 7, "V100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Voted {
		t.Error("expected voted:false")
	}
}

func TestCastVote_Payload(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		for _, want := range []string{`"voterid":"V100"`, `"electionid":7`, `"candidateid":1`} {
			if !strings.Contains(string(body), want) {
				t.Errorf("payload %s missing %s", body, want)
			}
		}
		return jsonResponse(http.StatusCreated, string(body)), nil
	})

	_, err := client.CastVote(context.Background(), models.Vote{VoterID: "V100", ElectionID: 7, CandidateID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBackendError_MessageSurfacedVerbatim(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusConflict, `{"error":"already voted in this election"}`), nil
	})

	_, err := client.CastVote(context.Background(), models.Vote{VoterID: "V100", ElectionID: 7, CandidateID: 1})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusConflict {
		t.Errorf("status = %d; want 409", apiErr.Status)
	}
	if apiErr.Message != "already voted in this election" {
		t.Errorf("message = %q; want the backend message verbatim", apiErr.Message)
	}
}

func TestBackendError_UnknownWhenBodyUnusable(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, "boom"), nil
	})

	_, err := client.Elections(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.Message != "unknown error" {
		t.Errorf("message = %q; want \"unknown error\"", apiErr.Message)
	}
}

func TestNetworkFailure_WrappedNotTyped(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	})

	_, err := client.Elections(context.Background())
	if err == nil || !strings.Contains(err.Error(), "network down") {
		t.Fatalf("expected transport failure, got %v", err)
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		t.Error("transport failures must not masquerade as backend errors")
	}
}

func TestCreateCandidate_MultipartWithPhoto(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Fatalf("content type = %q (%v)", req.Header.Get("Content-Type"), err)
		}
		mr := multipart.NewReader(req.Body, params["boundary"])
		form, err := mr.ReadForm(8 << 20)
		if err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := form.Value["name"]; len(got) != 1 || got[0] != "Raj" {
			t.Errorf("name field = %v", got)
		}
		if got := form.Value["aadharid"]; len(got) != 1 || got[0] != "123456789012" {
			t.Errorf("aadharid field = %v", got)
		}
		if files := form.File["profile_photo"]; len(files) != 1 || files[0].Filename != "raj.png" {
			t.Errorf("photo part = %v", files)
		}
		return jsonResponse(http.StatusCreated, `{"cid":1,"name":"Raj"}`), nil
	})

	form := CandidateForm{ElectionID: 7, Name: "Raj", AadharID: "123456789012", PartyName: "Party A"}
	photo := &Photo{Filename: "raj.png", Data: []byte{0x89, 'P', 'N', 'G'}}
	created, err := client.CreateCandidate(context.Background(), form, photo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.CID != 1 {
		t.Errorf("cid = %d; want 1", created.CID)
	}
}

func TestDeleteCandidate_NoBody(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodDelete || req.URL.Path != "/api/candidates/3" {
			t.Errorf("unexpected request: %s %s", req.Method, req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `{"status":"deleted"}`), nil
	})

	if err := client.DeleteCandidate(context.Background(), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
