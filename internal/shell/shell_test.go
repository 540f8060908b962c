package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/VoteKeeper/internal/api"
	"github.com/atinyakov/VoteKeeper/internal/api/apitest"
	"github.com/atinyakov/VoteKeeper/internal/models"
	"github.com/atinyakov/VoteKeeper/internal/receipt"
	"github.com/atinyakov/VoteKeeper/internal/session"
)

// runScript feeds the shell a scripted command session and returns its
// output. Lines answer prompts in the exact order they are asked.
func runScript(t *testing.T, srv *apitest.Server, receiptDir string, lines ...string) string {
	t.Helper()

	client, err := api.New(srv.URL(), zap.NewNop())
	require.NoError(t, err)

	store := session.New(filepath.Join(t.TempDir(), "session.json"), zap.NewNop())
	require.NoError(t, store.Load())

	exporter := receipt.NewExporter(receiptDir, zap.NewNop())

	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	New(client, store, exporter, zap.NewNop(), in, &out).Run(context.Background())
	return out.String()
}

func TestRun_SignupRegisterVoteExport(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.SeedElection(models.Election{ElectionID: 7, Title: "Ward 5", Type: models.Nagar, Date: "2025-03-01", LocationRegion: "Pune"})
	srv.SeedCandidate(models.Candidate{CID: 1, ElectionID: 7, Name: "Raj", PartyName: "Party A"})
	srv.SeedCandidate(models.Candidate{CID: 2, ElectionID: 7, Name: "Mina"})

	dir := t.TempDir()
	out := runScript(t, srv, dir,
		"signup",
		"Asha", "Rao", "asha@example.com", "secret", "voter", "female", "1990-01-15",
		"register",
		"123456789012", "ABC1234567", "14 MG Road", "Indian", "Maharashtra",
		"vote 7",
		"1", // drop Raj
		"y",
		"receipt png",
		"exit",
	)

	assert.Contains(t, out, "Welcome, Asha Rao (voter)")
	assert.Contains(t, out, "Registration complete. Your voter id is V100")
	assert.Contains(t, out, "Vote cast successfully!")
	assert.Contains(t, out, "Receipt EVC-PUN-")
	assert.Contains(t, out, "Exported")
	assert.Contains(t, out, "Bye")

	v, ok := srv.VoteFor("V100", 7)
	require.True(t, ok)
	assert.Equal(t, 1, v.CandidateID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".png"))
}

func TestRun_VoteRequiresRegistration(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.SeedElection(models.Election{ElectionID: 7, Title: "Ward 5", Type: models.Nagar})
	srv.SeedCandidate(models.Candidate{CID: 1, ElectionID: 7, Name: "Raj"})

	out := runScript(t, srv, t.TempDir(),
		"signup",
		"Asha", "Rao", "asha@example.com", "secret", "voter", "female", "1990-01-15",
		"vote 7",
		"exit",
	)

	assert.Contains(t, out, "you must complete voter registration to vote")
	if _, ok := srv.VoteFor("V100", 7); ok {
		t.Fatal("vote recorded for an unregistered user")
	}
}

func TestRun_CommitteeCreateElection(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()

	out := runScript(t, srv, t.TempDir(),
		"signup",
		"Ravi", "Kumar", "ravi@example.com", "secret", "committee", "male", "1980-05-20",
		"create-election",
		"Ward 5", "Nagar", "2025-03-01", "Pune",
		"elections Nagar",
		"exit",
	)

	assert.Contains(t, out, "Election created successfully!")
	assert.Contains(t, out, "Ward 5")
	assert.Contains(t, out, "Pune")
}

func TestRun_UnknownCommandAndCancel(t *testing.T) {
	srv := apitest.New()
	defer srv.Close()
	srv.SeedElection(models.Election{ElectionID: 7, Title: "Ward 5", Type: models.Nagar})
	srv.SeedCandidate(models.Candidate{CID: 1, ElectionID: 7, Name: "Raj"})
	srv.SeedVoter(models.VoterRecord{VID: "V100", UserID: 1, State: "Maharashtra"})

	// Signup does not carry the voter id; logging back in picks it up.
	out := runScript(t, srv, t.TempDir(),
		"frobnicate",
		"signup",
		"Asha", "Rao", "asha@example.com", "secret", "voter", "female", "1990-01-15",
		"logout",
		"login",
		"asha@example.com", "secret", "voter",
		"vote 7",
		"", // empty choice cancels the drop
		"exit",
	)

	assert.Contains(t, out, "Unknown command")
	assert.Contains(t, out, "Cancelled.")
	if _, ok := srv.VoteFor("V100", 7); ok {
		t.Fatal("cancelled vote was recorded")
	}
}
