package session

import (
	"fmt"
	"strings"

	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/utils"
)

// Step names are stored verbatim on the user document.
type Step string

const (
	StepTitle        Step = "asking_title"
	StepType         Step = "asking_type"
	StepSuburb       Step = "asking_suburb"
	StepAddress      Step = "asking_address"
	StepRent         Step = "asking_rent"
	StepDeposit      Step = "asking_deposit"
	StepBedrooms     Step = "asking_bedrooms"
	StepAmenities    Step = "asking_amenities"
	StepContactName  Step = "asking_contact_name"
	StepContactPhone Step = "asking_contact_phone"

	StepSearchSuburb Step = "search_asking_suburb"
	StepSearchRent   Step = "search_asking_rent"
)

type branch int

const (
	branchListing branch = iota
	branchSearch
)

// Env is what parsers and prompts need to know about the world.
type Env struct {
	Phone   string
	Suburbs []string
}

// FieldUpdate is a write to the listing draft.
type FieldUpdate struct {
	Field string
	Value interface{}
}

type stepDef struct {
	step   Step
	branch branch
	back   Step // "" at the first step of a branch
	next   Step // "" at the last step
	prompt func(env Env) string
	parse  func(input string, env Env) (interface{}, error)
	// store maps a parsed value to draft writes (listing branch).
	store func(v interface{}, input string) []FieldUpdate
	// carry records a parsed value on the search session (search branch).
	carry func(s *Search, v interface{})
}

func fixedPrompt(text string) func(Env) string {
	return func(Env) string { return text }
}

func setField(field string) func(v interface{}, input string) []FieldUpdate {
	return func(v interface{}, _ string) []FieldUpdate {
		return []FieldUpdate{{Field: field, Value: v}}
	}
}

func suburbMenu(env Env, extra string) string {
	var b strings.Builder
	for i, s := range env.Suburbs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	b.WriteString(extra)
	return b.String()
}

// steps is the ordered step table. Order matters only for readability; the
// transitions are the explicit next/back links.
var steps = []stepDef{
	{
		step: StepTitle, branch: branchListing, next: StepType,
		prompt: fixedPrompt("🏠 *New listing*\nWhat is the listing title? (e.g. 2 bedroom cottage)\n\nReply CANCEL at any time to stop."),
		parse:  parseText,
		store:  setField(models.FieldTitle),
	},
	{
		step: StepType, branch: branchListing, back: StepTitle, next: StepSuburb,
		prompt: fixedPrompt("What type of property is it? (e.g. house, cottage, flat, room)\n\nReply BACK to change the previous answer."),
		parse:  parseText,
		store:  setField(models.FieldType),
	},
	{
		step: StepSuburb, branch: branchListing, back: StepType, next: StepAddress,
		prompt: func(env Env) string {
			return "Which suburb is it in? Reply with a number or type the suburb name:\n" + suburbMenu(env, "")
		},
		parse: parseListingSuburb,
		store: setField(models.FieldSuburb),
	},
	{
		step: StepAddress, branch: branchListing, back: StepSuburb, next: StepRent,
		prompt: fixedPrompt("What is the street address?"),
		parse:  parseText,
		store:  setField(models.FieldAddress),
	},
	{
		step: StepRent, branch: branchListing, back: StepAddress, next: StepDeposit,
		prompt: fixedPrompt("What is the rent in USD? (numbers only, e.g. 350)"),
		parse:  parseAmount("rent"),
		store:  setField(models.FieldRent),
	},
	{
		step: StepDeposit, branch: branchListing, back: StepRent, next: StepBedrooms,
		prompt: fixedPrompt("What deposit is required in USD? (numbers only, 0 if none)"),
		parse:  parseAmount("deposit"),
		store:  setField(models.FieldDeposit),
	},
	{
		step: StepBedrooms, branch: branchListing, back: StepDeposit, next: StepAmenities,
		prompt: fixedPrompt("How many bedrooms?"),
		parse:  parseText,
		store:  setField(models.FieldBedrooms),
	},
	{
		step: StepAmenities, branch: branchListing, back: StepBedrooms, next: StepContactName,
		prompt: fixedPrompt("List the key features, separated by commas (e.g. borehole, solar, parking), or reply NONE."),
		parse:  parseAmenities,
		store: func(v interface{}, input string) []FieldUpdate {
			return []FieldUpdate{
				{Field: models.FieldAmenities, Value: v},
				{Field: models.FieldDescription, Value: utils.SanitizeText(input)},
			}
		},
	},
	{
		step: StepContactName, branch: branchListing, back: StepAmenities, next: StepContactPhone,
		prompt: fixedPrompt("Who should tenants contact? (name)"),
		parse:  parseText,
		store:  setField(models.FieldContactName),
	},
	{
		step: StepContactPhone, branch: branchListing, back: StepContactName,
		prompt: fixedPrompt("What WhatsApp number should tenants use? Reply SAME to use this number."),
		parse:  parseContactPhone,
		store:  setField(models.FieldContactPhone),
	},
	{
		step: StepSearchSuburb, branch: branchSearch, next: StepSearchRent,
		prompt: func(env Env) string {
			return "🔎 *Search*\nWhich suburb? Reply with a number, or ALL for every suburb:\n" + suburbMenu(env, "\nReply CANCEL to stop.")
		},
		parse: parseSearchSuburb,
		carry: func(s *Search, v interface{}) {
			if suburb, ok := v.(string); ok && suburb != "" {
				s.Suburb = &suburb
			} else {
				s.Suburb = nil
			}
		},
	},
	{
		step: StepSearchRent, branch: branchSearch, back: StepSearchSuburb,
		prompt: fixedPrompt("What is your maximum rent in USD? (e.g. 400), or reply ANY."),
		parse:  parseMaxRent,
		carry: func(s *Search, v interface{}) {
			if rent, ok := v.(float64); ok {
				s.MaxRent = &rent
			} else {
				s.MaxRent = nil
			}
		},
	},
}

var table = func() map[Step]stepDef {
	m := make(map[Step]stepDef, len(steps))
	for _, d := range steps {
		m[d.step] = d
	}
	return m
}()

// Prompt returns the question for step.
func Prompt(step Step, env Env) string {
	def, ok := table[step]
	if !ok {
		return ""
	}
	return def.prompt(env)
}

// Back returns the predecessor of step, or "" at the first step of a branch.
func Back(step Step) Step {
	return table[step].back
}
