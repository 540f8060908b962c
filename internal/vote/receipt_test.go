package vote

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/atinyakov/VoteKeeper/internal/models"
)

func TestReceiptID_Deterministic(t *testing.T) {
	day := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	first := ReceiptID("Pune", day, "V100")
	if first != "EVC-PUN-20250301-V100" {
		t.Errorf("ReceiptID = %q; want EVC-PUN-20250301-V100", first)
	}
	// Same calendar day, different wall-clock time: identical id.
	later := ReceiptID("Pune", day.Add(5*time.Hour), "V100")
	if first != later {
		t.Errorf("ids differ within one day: %q vs %q", first, later)
	}
}

func TestRegionCode(t *testing.T) {
	tests := []struct {
		region string
		want   string
	}{
		{"Pune", "PUN"},
		{"India", "IND"},
		{"Uttar Pradesh", "UTT"},
		{"Jammu and Kashmir", "JAM"},
		{"ab", "GEN"},
		{"", "GEN"},
		{"12 34", "GEN"},
		{"a-b-c-d", "ABC"},
	}
	for _, tt := range tests {
		if got := RegionCode(tt.region); got != tt.want {
			t.Errorf("RegionCode(%q) = %q; want %q", tt.region, got, tt.want)
		}
	}
}

func TestNewReceipt_FieldsAndPayload(t *testing.T) {
	user := models.User{Name: "Asha", VID: "V100"}
	election := models.Election{
		ElectionID:     7,
		Title:          "Ward 5",
		Type:           models.Nagar,
		Date:           "2025-03-01T00:00:00Z",
		LocationRegion: "Pune",
	}
	cand := models.Candidate{CID: 1, Name: "Raj", PartyName: "Party A"}
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	r := NewReceipt(user, election, cand, now)
	if r.ID != "EVC-PUN-20250301-V100" {
		t.Errorf("ID = %q", r.ID)
	}
	if r.CandidateName != "Raj" || r.PartyName != "Party A" {
		t.Errorf("candidate = %q / %q", r.CandidateName, r.PartyName)
	}
	if r.ElectionDate != "2025-03-01" {
		t.Errorf("ElectionDate = %q; want the date part only", r.ElectionDate)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(r.VerificationPayload()), &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	want := map[string]string{
		"voter_name":     "Asha",
		"voter_id":       "V100",
		"election_title": "Ward 5",
		"election_type":  "Nagar",
		"election_date":  "2025-03-01",
		"receipt_id":     "EVC-PUN-20250301-V100",
	}
	for k, v := range want {
		if payload[k] != v {
			t.Errorf("payload[%q] = %q; want %q", k, payload[k], v)
		}
	}
}

func TestNewReceipt_UnknownCandidate(t *testing.T) {
	r := NewReceipt(models.User{Name: "Asha", VID: "V100"}, models.Election{LocationRegion: "Pune"}, models.Candidate{}, time.Now())
	if r.CandidateName != "" {
		t.Errorf("CandidateName = %q; want empty for an unknown candidate", r.CandidateName)
	}
	// Party defaults to Independent only when a candidate is known; the
	// zero candidate still reports it, which the renderer hides.
	if r.PartyName != "Independent" {
		t.Errorf("PartyName = %q", r.PartyName)
	}
}
