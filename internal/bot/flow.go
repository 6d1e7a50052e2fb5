package bot

import (
	"strings"

	"github.com/Roland735/rentbot/internal/models"
	"github.com/Roland735/rentbot/internal/session"
	"github.com/Roland735/rentbot/internal/utils"
)

// flowFields maps a submitted listing flow to draft fields. Keys are matched
// case-insensitively against the editable field names, so both contact_phone
// and contactPhone work. Unknown keys are ignored. A blank or SAME contact
// phone becomes the sender; any other value is kept as submitted.
func flowFields(flow map[string]interface{}, phone string) map[string]interface{} {
	if data, ok := flow["data"].(map[string]interface{}); ok {
		flow = data
	}

	fields := map[string]interface{}{}
	for key, raw := range flow {
		field, ok := models.EditableFields[strings.ToLower(key)]
		if !ok {
			continue
		}
		switch field {
		case models.FieldRent, models.FieldDeposit:
			if v, ok := flowNumber(raw); ok {
				fields[field] = v
			}
		case models.FieldAmenities:
			fields[field] = flowList(raw)
		case models.FieldContactPhone:
			s := utils.SanitizeText(flowString(raw))
			if s == "" || strings.EqualFold(s, "SAME") {
				continue
			}
			fields[field] = s
		default:
			if s := utils.SanitizeText(flowString(raw)); s != "" {
				fields[field] = s
			}
		}
	}
	if _, ok := fields[models.FieldContactPhone]; !ok {
		fields[models.FieldContactPhone] = phone
	}
	return fields
}

func flowString(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return money(v)
	default:
		return ""
	}
}

func flowNumber(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case string:
		return session.ParseAmount(v)
	default:
		return 0, false
	}
}

func flowList(raw interface{}) []string {
	out := []string{}
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			if s := utils.SanitizeText(flowString(item)); s != "" {
				out = append(out, s)
			}
		}
	case string:
		if strings.EqualFold(strings.TrimSpace(v), "NONE") {
			return out
		}
		for _, part := range strings.Split(v, ",") {
			if s := utils.SanitizeText(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
