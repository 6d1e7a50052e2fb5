// Package session implements the conversational state machine behind listing
// creation and the search wizard. It is pure: callers load a Session, call
// Advance with the user's reply, and persist the Outcome.
package session

import (
	"fmt"
	"time"

	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/utils"
)

// Session is one of ListingDraft or Search. A nil Session means no session is open.
type Session interface {
	CurrentStep() Step
	isSession()
}

// ListingDraft is an open listing-creation session writing into DraftID.
type ListingDraft struct {
	Step    Step
	DraftID utils.SixID
}

func (s ListingDraft) CurrentStep() Step { return s.Step }
func (ListingDraft) isSession()          {}

// Search is an open search wizard. Nil Suburb means all suburbs; nil MaxRent means any rent.
type Search struct {
	Step    Step
	Suburb  *string
	MaxRent *float64
}

func (s Search) CurrentStep() Step { return s.Step }
func (Search) isSession()          {}

// FromRecord decodes a stored session. A nil record, or one older than ttl, decodes to nil.
// ttl <= 0 disables expiry.
func FromRecord(rec *models.SessionRecord, now time.Time, ttl time.Duration) (Session, error) {
	if rec == nil {
		return nil, nil
	}
	if ttl > 0 && !rec.UpdatedAt.IsZero() && now.Sub(rec.UpdatedAt) > ttl {
		return nil, nil
	}
	step := Step(rec.Step)
	def, ok := table[step]
	if !ok {
		return nil, fmt.Errorf("unknown session step %q", rec.Step)
	}
	switch rec.Kind {
	case models.SessionKindListing:
		if def.branch != branchListing {
			return nil, fmt.Errorf("step %q is not a listing step", rec.Step)
		}
		id, err := utils.ParseSixID(rec.DraftID)
		if err != nil {
			return nil, fmt.Errorf("listing session has bad draft id: %w", err)
		}
		return ListingDraft{Step: step, DraftID: id}, nil
	case models.SessionKindSearch:
		if def.branch != branchSearch {
			return nil, fmt.Errorf("step %q is not a search step", rec.Step)
		}
		return Search{Step: step, Suburb: rec.Suburb, MaxRent: rec.MaxRent}, nil
	default:
		return nil, fmt.Errorf("unknown session kind %q", rec.Kind)
	}
}

// ToRecord encodes s for storage. A nil Session encodes to nil.
func ToRecord(s Session, now time.Time) *models.SessionRecord {
	switch v := s.(type) {
	case ListingDraft:
		return &models.SessionRecord{
			Kind:      models.SessionKindListing,
			Step:      string(v.Step),
			DraftID:   v.DraftID.String(),
			UpdatedAt: now,
		}
	case Search:
		return &models.SessionRecord{
			Kind:      models.SessionKindSearch,
			Step:      string(v.Step),
			Suburb:    v.Suburb,
			MaxRent:   v.MaxRent,
			UpdatedAt: now,
		}
	default:
		return nil
	}
}

// StartListing opens a listing session. When the draft already has a title the
// title question is skipped.
func StartListing(draftID utils.SixID, titled bool, env Env) (Session, string) {
	step := StepTitle
	if titled {
		step = StepType
	}
	return ListingDraft{Step: step, DraftID: draftID}, Prompt(step, env)
}

// StartSearch opens the search wizard at the suburb question.
func StartSearch(env Env) (Session, string) {
	return Search{Step: StepSearchSuburb}, Prompt(StepSearchSuburb, env)
}
