package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Roland735/rentbot/internal/models"
)

const (
	msgGenericError   = "Something went wrong, please try again."
	msgPhotosAttached = "Photos attached."
	msgNoImages       = "No images available — sending listing link."
	msgConflict       = "We got two replies at once. Please send your answer again."
	msgFlowBody       = "Click the button below to fill out the listing details."
)

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// FormatSearchResults renders listings for a chat reply. balanceAfter is the
// balance once the search has been paid for.
func FormatSearchResults(results []models.Listing, cost, balanceAfter int) string {
	lines := []string{fmt.Sprintf("%d matches (%d credit used — balance %d):", len(results), cost, balanceAfter)}

	for i, r := range results {
		amenities := "None listed"
		if len(r.Amenities) > 0 {
			amenities = strings.Join(r.Amenities, ", ")
		}
		address := orDefault(r.Address, orDefault(r.Suburb, "No address"))
		contactPhone := orDefault(r.ContactPhone, r.OwnerPhone)

		lines = append(lines, fmt.Sprintf("\n%d. Listing Details\n"+
			"Title: %s\n"+
			"Type: %s\n"+
			"Address: %s\n"+
			"Rent: $%s (Weekly)\n"+
			"Deposit: $%s\n"+
			"Bedrooms: %s\n"+
			"Key features / Amenities: %s\n"+
			"Contact name: %s\n"+
			"Contact phone (WhatsApp): %s (ID: %s)",
			i+1,
			orDefault(r.Title, "Untitled"),
			orDefault(r.Type, "Not specified"),
			address,
			money(r.Rent),
			money(r.Deposit),
			orDefault(r.Bedrooms, "N/A"),
			amenities,
			orDefault(r.ContactName, "Owner"),
			contactPhone,
			r.ID.String(),
		))
	}

	lines = append(lines, "\nReply PHOTOS <ID> to request images (2 credits). Reply HELP for commands.")
	return strings.Join(lines, "\n")
}

func FormatHelp(credits int) string {
	return "RentBot — Commands:\n" +
		"SEARCH <criteria> (1 credit)\n" +
		"SEARCH (guided search by suburb and rent)\n" +
		"PHOTOS <ID> (2 credits, confirm YES)\n" +
		"LIST <text>\n" +
		"EDIT <id> <field> <value>\n" +
		"ADDPHOTO <id> (attach photos)\n" +
		"REPORT <id> <reason>\n" +
		"BUY <bundle>\n" +
		"HELP\n" +
		"STOP\n" +
		"Credits: " + strconv.Itoa(credits)
}

func FormatStop() string {
	return "You have been opted out. Reply HELP to resume."
}

func FormatPhotosRequest(id string, cost int) string {
	return fmt.Sprintf("Request received for %s — %d credits will be charged. Reply YES to confirm or NO to cancel.", id, cost)
}

func FormatPhotosCanceled(id string) string {
	return fmt.Sprintf("Photo request for %s canceled. No credits were charged.", id)
}

func FormatInsufficientCredits(required int) string {
	return fmt.Sprintf("Insufficient credits — you need %d credits. Reply BUY <bundle>.", required)
}

func FormatListingDraft(id string, publishPrice float64) string {
	return fmt.Sprintf("✅ *Listing Draft Saved*\n\nYour listing is ready for review (ID: %s).\n\n"+
		"Reply *BUY LIST %s* to publish it.\n(Publishing requires $%s via Paynow Express)", id, id, money(publishPrice))
}

func FormatEditConfirmed(id, field string) string {
	return fmt.Sprintf("Listing %s updated — %s.", id, field)
}

func FormatReportReceived(id string) string {
	return fmt.Sprintf("Thanks, we have received your report on listing %s and will review it.", id)
}

// FormatBundles is the reply to an unknown BUY argument.
func FormatBundles(bundles []models.CreditBundle, publishPrice float64) string {
	var b strings.Builder
	b.WriteString("Credit bundles:\n")
	for _, bundle := range bundles {
		fmt.Fprintf(&b, "BUY %d: %d credits for $%.2f\n", bundle.Credits, bundle.Credits, bundle.Price)
	}
	fmt.Fprintf(&b, "BUY LIST <ID>: publish a listing for $%.2f", publishPrice)
	return b.String()
}

func FormatPaymentStarted(tx *models.Transaction, instructions string) string {
	if instructions == "" {
		instructions = "Check your phone and enter your PIN to approve the payment."
	}
	return fmt.Sprintf("💳 Payment of $%.2f started (Ref: %s).\n%s", tx.Amount, tx.Reference, instructions)
}

func FormatPhotosQueued(id string, n int) string {
	return fmt.Sprintf("Processing %d photo(s) for listing %s. We'll confirm when they're added.", n, id)
}

func editableFieldList() string {
	return strings.Join([]string{
		models.FieldTitle, models.FieldType, models.FieldSuburb, models.FieldAddress,
		models.FieldRent, models.FieldDeposit, models.FieldBedrooms, models.FieldAmenities,
		models.FieldDescription, models.FieldContactName, models.FieldContactPhone,
	}, ", ")
}
