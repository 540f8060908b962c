// Package shell is the interactive front of the client. It maps commands
// to views the way the original UI mapped URLs, and its login/signup
// prompt flows stand in for the modal overlay.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/VoteKeeper/internal/api"
	"github.com/atinyakov/VoteKeeper/internal/dashboard"
	"github.com/atinyakov/VoteKeeper/internal/models"
	"github.com/atinyakov/VoteKeeper/internal/receipt"
	"github.com/atinyakov/VoteKeeper/internal/session"
	"github.com/atinyakov/VoteKeeper/internal/vote"
)

// receiptWait bounds how long the vote command waits for the receipt to
// render after a successful submission.
const receiptWait = 5 * time.Second

// Shell runs the command loop over the wired components.
type Shell struct {
	api       *api.Client
	session   *session.Store
	exporter  *receipt.Exporter
	voter     *dashboard.VoterDashboard
	committee *dashboard.CommitteeDashboard
	log       *zap.Logger

	in  *bufio.Scanner
	out io.Writer

	lastReceipt *vote.Receipt
}

// New wires a Shell over the given components, reading commands from in
// and writing to out.
func New(client *api.Client, store *session.Store, exporter *receipt.Exporter, log *zap.Logger, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		api:       client,
		session:   store,
		exporter:  exporter,
		voter:     dashboard.NewVoterDashboard(client, store, log),
		committee: dashboard.NewCommitteeDashboard(client, log),
		log:       log,
		in:        bufio.NewScanner(in),
		out:       out,
	}
}

// Run reads and dispatches commands until exit or EOF.
func (s *Shell) Run(ctx context.Context) {
	fmt.Fprintln(s.out, "VoteKeeper client. Type 'help' for a list of commands.")
	for {
		fmt.Fprint(s.out, "votekeeper> ")
		if !s.in.Scan() {
			return
		}
		line := strings.TrimSpace(s.in.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			fmt.Fprintln(s.out, "Bye")
			return
		}
		s.dispatch(ctx, args)
	}
}

func (s *Shell) dispatch(ctx context.Context, args []string) {
	var err error
	switch args[0] {
	case "help":
		s.printHelp()
	case "signup":
		err = s.cmdSignup(ctx)
	case "login":
		err = s.cmdLogin(ctx)
	case "logout":
		err = s.session.Logout()
		if err == nil {
			fmt.Fprintln(s.out, "Logged out")
		}
	case "whoami":
		err = s.cmdWhoami()
	case "register":
		err = s.cmdRegister(ctx)
	case "elections":
		err = s.cmdElections(ctx, args[1:])
	case "show":
		err = s.cmdShow(ctx, args[1:])
	case "vote":
		err = s.cmdVote(ctx, args[1:])
	case "receipt":
		err = s.cmdReceipt(args[1:])
	case "leaderboard":
		err = s.cmdLeaderboard(ctx, args[1:])
	case "candidates":
		err = s.cmdCandidates(ctx, args[1:])
	case "candidate":
		err = s.cmdCandidate(ctx, args[1:])
	case "create-election":
		err = s.cmdCreateElection(ctx)
	default:
		fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `Commands:
  signup                      create an account
  login                       log in
  logout                      log out
  whoami                      show the current user
  register                    complete voter registration
  elections [type]            list elections, optionally by type
  show <electionid>           show one election with candidates
  vote <electionid>           cast a vote in an election
  receipt <png|pdf|docx>      export the last receipt
  leaderboard <electionid>    show the tally for an election
  candidates <type>           committee: pick a category, then an election
  candidate add               committee: add a candidate to the selection
  candidate edit <cid>        committee: edit a candidate
  candidate delete <cid>      committee: delete a candidate
  create-election             committee: create an election
  exit                        quit`)
}

// prompt reads one line after printing a label.
func (s *Shell) prompt(label string) string {
	fmt.Fprint(s.out, label)
	if !s.in.Scan() {
		return ""
	}
	return strings.TrimSpace(s.in.Text())
}

func (s *Shell) cmdSignup(ctx context.Context) error {
	first := s.prompt("First name: ")
	last := s.prompt("Last name: ")
	email := s.prompt("Email: ")
	password := s.prompt("Password: ")
	role := models.Role(s.prompt("Role (voter/committee): "))
	if role == "" {
		role = models.RoleVoter
	}
	gender := s.prompt("Gender: ")
	dob := s.prompt("Date of birth (YYYY-MM-DD): ")

	user, err := s.api.Register(ctx, api.RegisterRequest{
		Name:        strings.TrimSpace(first + " " + last),
		Email:       email,
		Password:    password,
		Role:        role,
		Gender:      gender,
		DateOfBirth: dob,
	})
	if err != nil {
		return err
	}
	if err := s.session.Login(user); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Welcome, %s (%s)\n", user.Name, user.Role)
	return nil
}

func (s *Shell) cmdLogin(ctx context.Context) error {
	email := s.prompt("Email: ")
	password := s.prompt("Password: ")
	role := models.Role(s.prompt("Role (voter/committee): "))
	if role == "" {
		role = models.RoleVoter
	}
	user, err := s.api.Login(ctx, api.LoginRequest{Email: email, Password: password, Role: role})
	if err != nil {
		return err
	}
	if err := s.session.Login(user); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Welcome back, %s\n", user.Name)
	return nil
}

func (s *Shell) cmdWhoami() error {
	user, err := s.session.Require()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s <%s> role=%s", user.Name, user.Email, user.Role)
	if user.Registered() {
		fmt.Fprintf(s.out, " vid=%s", user.VID)
	} else {
		fmt.Fprint(s.out, " (not registered to vote)")
	}
	fmt.Fprintln(s.out)
	return nil
}

func (s *Shell) cmdRegister(ctx context.Context) error {
	if _, err := s.session.Require(); err != nil {
		return err
	}
	reg := models.VoterRegistration{
		AadharID:    s.prompt("Aadhar ID (12 digits): "),
		VoterCardID: s.prompt("Voter card ID (10 characters): "),
		Address:     s.prompt("Address: "),
		Nationality: s.prompt("Nationality: "),
		State:       s.prompt("State: "),
	}
	user, err := s.voter.Register(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Registration complete. Your voter id is %s\n", user.VID)
	return nil
}

func (s *Shell) cmdElections(ctx context.Context, args []string) error {
	category := models.ElectionType(strings.Join(args, " "))
	elections, err := s.voter.Elections(ctx, category)
	if err != nil {
		return err
	}
	if len(elections) == 0 {
		fmt.Fprintln(s.out, "No elections found.")
		return nil
	}
	for _, e := range elections {
		fmt.Fprintf(s.out, "%4d  %-30s %-12s %-20s %s (%s)\n",
			e.ElectionID, e.Title, e.Type, e.LocationRegion, day(e.Date), e.Status)
	}
	return nil
}

func (s *Shell) cmdShow(ctx context.Context, args []string) error {
	id, err := intArg(args, "show <electionid>")
	if err != nil {
		return err
	}
	detail, err := s.voter.Election(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s | %s | %s | %s\n", detail.Title, detail.Type, detail.LocationRegion, day(detail.Date))
	if len(detail.Candidates) == 0 {
		fmt.Fprintln(s.out, "No candidates found for this election.")
		return nil
	}
	for _, c := range detail.Candidates {
		fmt.Fprintf(s.out, "  %4d  %-24s %s\n", c.CID, c.Name, c.Party())
	}
	return nil
}

// cmdVote runs the casting workflow for one election: select a candidate,
// confirm, wait for the receipt.
func (s *Shell) cmdVote(ctx context.Context, args []string) error {
	id, err := intArg(args, "vote <electionid>")
	if err != nil {
		return err
	}
	user, err := s.session.Require()
	if err != nil {
		return err
	}
	detail, err := s.voter.Election(ctx, id)
	if err != nil {
		return err
	}
	if len(detail.Candidates) == 0 {
		fmt.Fprintln(s.out, "No candidates found for this election.")
		return nil
	}

	w := vote.New(s.api, user, detail.Election, detail.Candidates, s.log)
	defer w.Close()

	ready := make(chan struct{}, 1)
	w.Subscribe(func(st vote.State) {
		if st == vote.StateReceiptReady {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})

	if err := w.Start(ctx); err != nil {
		if err == vote.ErrNotEligible {
			return fmt.Errorf("you must complete voter registration to vote (try 'register')")
		}
		return err
	}

	if w.Status().Voted {
		fmt.Fprintln(s.out, "You have already voted in this election.")
		return s.finishReceipt(w, ready)
	}

	fmt.Fprintln(s.out, "Candidates:")
	for i, c := range detail.Candidates {
		fmt.Fprintf(s.out, "  %d) %s (%s)\n", i+1, c.Name, c.Party())
	}
	choice := s.prompt("Drag a candidate onto the ballot box: pick a number (empty cancels): ")
	if choice == "" {
		w.Cancel()
		fmt.Fprintln(s.out, "Cancelled.")
		return nil
	}
	idx, err := strconv.Atoi(choice)
	if err != nil || idx < 1 || idx > len(detail.Candidates) {
		w.Cancel()
		return fmt.Errorf("invalid choice %q", choice)
	}
	cand := detail.Candidates[idx-1]
	if err := w.Select(cand.CID); err != nil {
		return err
	}
	if confirm := s.prompt(fmt.Sprintf("Drop %s into the ballot box? (y/n): ", cand.Name)); !strings.EqualFold(confirm, "y") {
		w.Cancel()
		fmt.Fprintln(s.out, "Cancelled.")
		return nil
	}
	if err := w.Confirm(ctx); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Vote cast successfully!")
	return s.finishReceipt(w, ready)
}

// finishReceipt waits for the receipt to render, keeps it for export and
// prints the summary.
func (s *Shell) finishReceipt(w *vote.Workflow, ready <-chan struct{}) error {
	if w.State() != vote.StateReceiptReady {
		select {
		case <-ready:
		case <-time.After(receiptWait):
			return fmt.Errorf("receipt did not render in time")
		}
	}
	r, ok := w.Receipt()
	if !ok {
		return fmt.Errorf("no receipt available")
	}
	s.lastReceipt = &r
	fmt.Fprintf(s.out, "Receipt %s\n", r.ID)
	if r.CandidateName != "" {
		fmt.Fprintf(s.out, "Voted For: %s (%s)\n", r.CandidateName, r.PartyName)
	}
	fmt.Fprintln(s.out, "Use 'receipt png|pdf|docx' to export it.")
	return nil
}

func (s *Shell) cmdReceipt(args []string) error {
	if s.lastReceipt == nil {
		return fmt.Errorf("no receipt yet; cast a vote first")
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: receipt <png|pdf|docx>")
	}
	path, err := s.exporter.Export(*s.lastReceipt, receipt.Format(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Exported %s\n", path)
	return nil
}

func (s *Shell) cmdLeaderboard(ctx context.Context, args []string) error {
	id, err := intArg(args, "leaderboard <electionid>")
	if err != nil {
		return err
	}
	entries, err := s.voter.Leaderboard(ctx, id)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "No votes recorded yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(s.out, "  %2d. %-24s %-20s %d votes\n", e.Rank, e.Name, e.PartyName, e.Votes)
	}
	return nil
}

// requireCommittee gates the management commands on the committee role.
func (s *Shell) requireCommittee() error {
	user, err := s.session.Require()
	if err != nil {
		return err
	}
	if user.Role != models.RoleCommittee {
		return fmt.Errorf("committee role required")
	}
	return nil
}

func (s *Shell) cmdCandidates(ctx context.Context, args []string) error {
	if err := s.requireCommittee(); err != nil {
		return err
	}
	category := models.ElectionType(strings.Join(args, " "))
	if category == "" {
		category = models.Nagar
	}
	elections, err := s.committee.SelectCategory(ctx, category)
	if err != nil {
		return err
	}
	if len(elections) == 0 {
		fmt.Fprintln(s.out, "No elections found for this type.")
		return nil
	}
	for _, e := range elections {
		fmt.Fprintf(s.out, "%4d  %s (%s)\n", e.ElectionID, e.Title, day(e.Date))
	}
	choice := s.prompt("Select an election id: ")
	id, err := strconv.Atoi(choice)
	if err != nil {
		return fmt.Errorf("invalid election id %q", choice)
	}
	cands, err := s.committee.SelectElection(ctx, id)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		fmt.Fprintln(s.out, "No candidates found for this election.")
		return nil
	}
	for i, c := range cands {
		fmt.Fprintf(s.out, "  %d. cid=%d %-24s %s\n", i+1, c.CID, c.Name, c.Party())
	}
	return nil
}

// promptCandidateForm collects the candidate fields, optionally attaching
// a photo read from disk.
func (s *Shell) promptCandidateForm() (api.CandidateForm, *api.Photo, error) {
	form := api.CandidateForm{
		Name:          s.prompt("Name: "),
		Gender:        s.prompt("Gender: "),
		DOB:           s.prompt("Date of birth (YYYY-MM-DD): "),
		AadharID:      s.prompt("Aadhar ID (12 digits): "),
		Email:         s.prompt("Email: "),
		ContactNumber: s.prompt("Contact number: "),
		PartyName:     s.prompt("Party (empty for Independent): "),
	}
	photo, err := loadPhoto(s.prompt("Photo file path (empty to skip): "))
	if err != nil {
		return api.CandidateForm{}, nil, err
	}
	return form, photo, nil
}

func (s *Shell) cmdCandidate(ctx context.Context, args []string) error {
	if err := s.requireCommittee(); err != nil {
		return err
	}
	if len(args) < 1 {
		return fmt.Errorf("usage: candidate add | edit <cid> | delete <cid>")
	}
	switch args[0] {
	case "add":
		form, photo, err := s.promptCandidateForm()
		if err != nil {
			return err
		}
		saved, err := s.committee.SaveCandidate(ctx, 0, form, photo)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Candidate %s added (cid=%d)\n", saved.Name, saved.CID)
	case "edit":
		cid, err := intArg(args[1:], "candidate edit <cid>")
		if err != nil {
			return err
		}
		form, photo, err := s.promptCandidateForm()
		if err != nil {
			return err
		}
		saved, err := s.committee.SaveCandidate(ctx, cid, form, photo)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Candidate %s updated\n", saved.Name)
	case "delete":
		cid, err := intArg(args[1:], "candidate delete <cid>")
		if err != nil {
			return err
		}
		if confirm := s.prompt("Are you sure you want to delete this candidate? (y/n): "); !strings.EqualFold(confirm, "y") {
			fmt.Fprintln(s.out, "Cancelled.")
			return nil
		}
		if err := s.committee.DeleteCandidate(ctx, cid); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "Candidate deleted")
	default:
		return fmt.Errorf("usage: candidate add | edit <cid> | delete <cid>")
	}
	return nil
}

func (s *Shell) cmdCreateElection(ctx context.Context) error {
	if err := s.requireCommittee(); err != nil {
		return err
	}
	req := api.CreateElectionRequest{
		Title: s.prompt("Title: "),
		Type:  models.ElectionType(s.prompt("Type (Nagar/Lok Sabha/Vidhan Sabha): ")),
		Date:  s.prompt("Date (YYYY-MM-DD): "),
	}
	// Region depends on the election level, as on the creation form.
	switch req.Type {
	case models.Nagar:
		req.LocationRegion = s.prompt("City: ")
	case models.VidhanSabha:
		req.LocationRegion = s.prompt("State: ")
	case models.LokSabha:
		req.LocationRegion = "India"
	}
	created, err := s.committee.CreateElection(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Election created successfully! (id=%d)\n", created.ElectionID)
	return nil
}

// loadPhoto reads an optional photo attachment from disk.
func loadPhoto(path string) (*api.Photo, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read photo %s: %w", path, err)
	}
	return &api.Photo{Filename: filepath.Base(path), Data: data}, nil
}

func intArg(args []string, usage string) (int, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	return n, nil
}

func day(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
