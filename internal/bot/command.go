// Package bot turns inbound WhatsApp messages into store operations and replies.
package bot

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/Roland735/rentbot/internal/messaging"
	"github.com/Roland735/rentbot/internal/utils"
)

// Command is the dispatch key of an inbound message.
type Command int

const (
	CommandText Command = iota
	CommandNumeral
	CommandSearch
	CommandPhotos
	CommandYes
	CommandNo
	CommandReport
	CommandList
	CommandBuy
	CommandStop
	CommandEdit
	CommandAddPhoto
	CommandHelp
	CommandCancel
	CommandBack
	CommandFlowResponse
)

var commandWords = map[string]Command{
	"SEARCH":   CommandSearch,
	"PHOTOS":   CommandPhotos,
	"P":        CommandPhotos,
	"YES":      CommandYes,
	"NO":       CommandNo,
	"REPORT":   CommandReport,
	"LIST":     CommandList,
	"BUY":      CommandBuy,
	"STOP":     CommandStop,
	"EDIT":     CommandEdit,
	"ADDPHOTO": CommandAddPhoto,
	"HELP":     CommandHelp,
	"HI":       CommandHelp,
	"HELLO":    CommandHelp,
	"CANCEL":   CommandCancel,
	"BACK":     CommandBack,
}

// String is used as a metrics label.
func (c Command) String() string {
	switch c {
	case CommandNumeral:
		return "numeral"
	case CommandSearch:
		return "search"
	case CommandPhotos:
		return "photos"
	case CommandYes:
		return "yes"
	case CommandNo:
		return "no"
	case CommandReport:
		return "report"
	case CommandList:
		return "list"
	case CommandBuy:
		return "buy"
	case CommandStop:
		return "stop"
	case CommandEdit:
		return "edit"
	case CommandAddPhoto:
		return "addphoto"
	case CommandHelp:
		return "help"
	case CommandCancel:
		return "cancel"
	case CommandBack:
		return "back"
	case CommandFlowResponse:
		return "flow_response"
	default:
		return "text"
	}
}

// Inbound is one parsed message.
type Inbound struct {
	Phone   string
	Command Command
	// Word is the upper-cased first token.
	Word string
	// Rest is the trimmed text after Word.
	Rest string
	// Body is the whole trimmed text; session steps read this.
	Body string
	// Number is set for CommandNumeral.
	Number     int
	Flow       map[string]interface{}
	MediaURLs  []string
	MessageSID string
}

// Parse reads a Twilio inbound webhook form.
func Parse(form url.Values) Inbound {
	in := Inbound{
		Phone:      utils.NormalizePhone(form.Get("From")),
		MessageSID: form.Get("MessageSid"),
		MediaURLs:  mediaURLs(form),
	}

	if form.Get("InteractionType") == "nfm_reply" {
		var flow map[string]interface{}
		if err := json.Unmarshal([]byte(form.Get("InteractionResponse")), &flow); err == nil && flow != nil {
			in.Command = CommandFlowResponse
			in.Flow = flow
			return in
		}
	}

	in.Body = strings.TrimSpace(form.Get("Body"))
	in.Word, in.Rest = splitWord(in.Body)
	in.Word = strings.ToUpper(in.Word)
	in.Command = classify(in.Word)
	if in.Command == CommandNumeral {
		if in.Rest != "" {
			in.Command = CommandText
		} else {
			in.Number, _ = strconv.Atoi(in.Word)
		}
	}
	return in
}

// NewInbound builds a message for callers that already know the command, such
// as the JSON action API.
func NewInbound(phone string, cmd Command, rest string) Inbound {
	rest = strings.TrimSpace(rest)
	return Inbound{
		Phone:   utils.NormalizePhone(phone),
		Command: cmd,
		Rest:    rest,
		Body:    rest,
	}
}

func classify(word string) Command {
	if cmd, ok := commandWords[word]; ok {
		return cmd
	}
	if n, err := strconv.Atoi(word); err == nil && n > 0 && word[0] != '+' {
		return CommandNumeral
	}
	return CommandText
}

// splitWord returns the first whitespace-delimited token and the trimmed remainder.
func splitWord(s string) (string, string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func mediaURLs(form url.Values) []string {
	n, err := strconv.Atoi(form.Get("NumMedia"))
	if err != nil || n <= 0 {
		return nil
	}
	if n > messaging.MaxMedia {
		n = messaging.MaxMedia
	}
	var urls []string
	for i := 0; i < n; i++ {
		if u := strings.TrimSpace(form.Get("MediaUrl" + strconv.Itoa(i))); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
