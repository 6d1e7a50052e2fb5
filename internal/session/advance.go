package session

import (
	"strings"
)

// Result classifies what Advance did with the reply.
type Result int

const (
	// ResultNone means there was no session to advance.
	ResultNone Result = iota
	// ResultNext means the answer was accepted and the next question is in Reply.
	ResultNext
	// ResultBack means the previous question is being asked again.
	ResultBack
	// ResultInvalid means the answer was rejected; the session is unchanged.
	ResultInvalid
	// ResultCanceled means the session was cleared at the user's request.
	ResultCanceled
	// ResultListingDone means the last listing answer was accepted and the session cleared.
	ResultListingDone
	// ResultSearchReady means the search criteria are complete and the session cleared.
	ResultSearchReady
)

func (r Result) String() string {
	switch r {
	case ResultNext:
		return "next"
	case ResultBack:
		return "back"
	case ResultInvalid:
		return "invalid"
	case ResultCanceled:
		return "canceled"
	case ResultListingDone:
		return "listing_done"
	case ResultSearchReady:
		return "search_ready"
	default:
		return "none"
	}
}

const CancelReply = "Canceled. Reply HELP to see what you can do."

// Outcome is everything the caller needs to persist and send after one reply.
type Outcome struct {
	Result Result
	// Step is the step the reply was answering.
	Step Step
	// Next is the session to store; nil clears it.
	Next Session
	// Reply is the text to send. Empty on ResultListingDone and ResultSearchReady.
	Reply string
	// Updates are draft writes for a listing session.
	Updates []FieldUpdate
	// Criteria is set on ResultSearchReady.
	Criteria *Search
}

// Advance applies one reply to s. It never touches storage.
func Advance(s Session, input string, env Env) Outcome {
	if s == nil {
		return Outcome{Result: ResultNone}
	}
	step := s.CurrentStep()
	def, ok := table[step]
	if !ok {
		return Outcome{Result: ResultCanceled, Step: step, Reply: CancelReply}
	}

	trimmed := strings.TrimSpace(input)
	switch {
	case strings.EqualFold(trimmed, "CANCEL"):
		return Outcome{Result: ResultCanceled, Step: step, Reply: CancelReply}
	case strings.EqualFold(trimmed, "BACK"):
		prev := def.back
		if prev == "" {
			// Nothing before the first question; ask it again.
			return Outcome{Result: ResultBack, Step: step, Next: s, Reply: def.prompt(env)}
		}
		return Outcome{Result: ResultBack, Step: step, Next: withStep(s, prev), Reply: Prompt(prev, env)}
	}

	v, err := def.parse(input, env)
	if err != nil {
		guidance := err.Error()
		return Outcome{Result: ResultInvalid, Step: step, Next: s, Reply: guidance + "\n\n" + def.prompt(env)}
	}

	out := Outcome{Step: step}
	switch cur := s.(type) {
	case ListingDraft:
		out.Updates = def.store(v, input)
		if def.next == "" {
			out.Result = ResultListingDone
			return out
		}
		cur.Step = def.next
		out.Next = cur
	case Search:
		def.carry(&cur, v)
		if def.next == "" {
			out.Result = ResultSearchReady
			out.Criteria = &cur
			return out
		}
		cur.Step = def.next
		out.Next = cur
	}
	out.Result = ResultNext
	out.Reply = Prompt(def.next, env)
	return out
}

func withStep(s Session, step Step) Session {
	switch v := s.(type) {
	case ListingDraft:
		v.Step = step
		return v
	case Search:
		v.Step = step
		return v
	}
	return s
}
