// Package validate implements the client-side first line of defense for
// form input. Backend rejection remains authoritative; these checks only
// stop obviously malformed payloads before a request is issued.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/atinyakov/VoteKeeper/internal/models"
)

// MinVotingAge is the minimum age for voter registration.
const MinVotingAge = 18

var (
	aadharRe    = regexp.MustCompile(`^\d{12}$`)
	voterCardRe = regexp.MustCompile(`^\w{10}$`)
	emailRe     = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// AadharID checks the 12-digit national identifier format.
func AadharID(s string) error {
	if !aadharRe.MatchString(s) {
		return errors.New("aadhar id must be exactly 12 digits")
	}
	return nil
}

// VoterCardID checks the 10-character voter card identifier format.
func VoterCardID(s string) error {
	if !voterCardRe.MatchString(s) {
		return errors.New("voter card id must be exactly 10 letters or digits")
	}
	return nil
}

// Email checks the basic shape of an email address.
func Email(s string) error {
	if !emailRe.MatchString(s) {
		return errors.New("invalid email address")
	}
	return nil
}

// ElectionType checks membership in the known election categories.
func ElectionType(s string) error {
	for _, t := range models.ElectionTypes {
		if string(t) == s {
			return nil
		}
	}
	return fmt.Errorf("unknown election type %q", s)
}

// Age computes completed years between an ISO date of birth and now.
func Age(dateOfBirth string, now time.Time) (int, error) {
	day := dateOfBirth
	if len(day) > 10 {
		day = day[:10]
	}
	born, err := time.Parse("2006-01-02", day)
	if err != nil {
		return 0, fmt.Errorf("invalid date of birth %q", dateOfBirth)
	}
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age, nil
}

// VoterRegistration validates a full registration form against the user it
// registers. It returns the first failure found.
func VoterRegistration(reg models.VoterRegistration, user models.User, now time.Time) error {
	age, err := Age(user.DateOfBirth, now)
	if err != nil {
		return err
	}
	if age < MinVotingAge {
		return fmt.Errorf("must be at least %d years old to register", MinVotingAge)
	}
	if err := AadharID(reg.AadharID); err != nil {
		return err
	}
	if err := VoterCardID(reg.VoterCardID); err != nil {
		return err
	}
	if strings.TrimSpace(reg.Address) == "" {
		return errors.New("address is required")
	}
	if reg.Nationality == "" {
		return errors.New("nationality is required")
	}
	if reg.State == "" {
		return errors.New("state is required")
	}
	return nil
}

// CandidateForm validates the candidate create/update form fields.
func CandidateForm(name, aadharID, email string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name is required")
	}
	if err := AadharID(aadharID); err != nil {
		return err
	}
	if email != "" {
		return Email(email)
	}
	return nil
}
