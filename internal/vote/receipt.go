package vote

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/atinyakov/VoteKeeper/internal/models"
)

// receiptPrefix opens every receipt identifier.
const receiptPrefix = "EVC"

// Receipt is the exportable confirmation artifact for one cast vote. It is
// derived entirely from client-held data and never sent to the server.
type Receipt struct {
	// ID is the deterministic receipt identifier,
	// EVC-<REGIONCODE>-<YYYYMMDD>-<vid>.
	ID string
	// VoterName is the voter's display name.
	VoterName string
	// VoterID is the voter identifier the vote was cast with.
	VoterID string
	// ElectionTitle is the election's title.
	ElectionTitle string
	// ElectionType is the election category.
	ElectionType string
	// ElectionDate is the election date (YYYY-MM-DD).
	ElectionDate string
	// Region is the election's location region.
	Region string
	// CandidateName is the candidate voted for, when known locally.
	CandidateName string
	// PartyName is the candidate's party.
	PartyName string
	// IssuedAt is when the receipt was derived.
	IssuedAt time.Time
}

// NewReceipt derives a receipt for user's vote in election. The candidate
// may be zero when the local candidate list no longer carries the recorded
// choice.
func NewReceipt(user models.User, election models.Election, candidate models.Candidate, now time.Time) Receipt {
	return Receipt{
		ID:            ReceiptID(election.LocationRegion, now, user.VID),
		VoterName:     user.Name,
		VoterID:       user.VID,
		ElectionTitle: election.Title,
		ElectionType:  string(election.Type),
		ElectionDate:  isoDay(election.Date),
		Region:        election.LocationRegion,
		CandidateName: candidate.Name,
		PartyName:     candidate.Party(),
		IssuedAt:      now,
	}
}

// ReceiptID builds the deterministic identifier for (region, day, voter).
// Repeated derivations within one calendar day are identical.
func ReceiptID(region string, day time.Time, voterID string) string {
	return receiptPrefix + "-" + RegionCode(region) + "-" + day.Format("20060102") + "-" + voterID
}

// RegionCode condenses a location region to three uppercase letters,
// skipping non-letters; regions with fewer than three letters fall back
// to "GEN".
func RegionCode(region string) string {
	var b strings.Builder
	for _, r := range region {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
			if b.Len() >= 3 {
				break
			}
		}
	}
	if b.Len() < 3 {
		return "GEN"
	}
	return b.String()
}

// VerificationPayload is the scannable encoding embedded in the receipt,
// sufficient to verify the artifact against the voter and election.
func (r Receipt) VerificationPayload() string {
	payload := map[string]string{
		"voter_name":     r.VoterName,
		"voter_id":       r.VoterID,
		"election_title": r.ElectionTitle,
		"election_type":  r.ElectionType,
		"election_date":  r.ElectionDate,
		"receipt_id":     r.ID,
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

// isoDay trims an ISO timestamp down to its date part.
func isoDay(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
