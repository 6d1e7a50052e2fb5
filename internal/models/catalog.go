package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Setting keys held in the settings collection.
const (
	SettingSuburbs       = "suburbs"
	SettingCreditBundles = "credit_bundles"
)

// Setting is a runtime-editable value.
type Setting struct {
	Key       string      `bson:"key" json:"key"`
	Value     interface{} `bson:"value" json:"value"`
	UpdatedAt time.Time   `bson:"updated_at" json:"updated_at"`
}

// CreditBundle is a purchasable pack of credits.
type CreditBundle struct {
	Credits int     `bson:"credits" json:"credits"`
	Price   float64 `bson:"price" json:"price"`
}

// ParseCreditBundles parses "credits:price,credits:price", sorted by credits.
func ParseCreditBundles(s string) ([]CreditBundle, error) {
	var out []CreditBundle
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		creditsStr, priceStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid credit bundle %q: expected credits:price", part)
		}
		credits, err := strconv.Atoi(strings.TrimSpace(creditsStr))
		if err != nil || credits <= 0 {
			return nil, fmt.Errorf("invalid credit bundle %q: bad credits", part)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(priceStr), 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("invalid credit bundle %q: bad price", part)
		}
		out = append(out, CreditBundle{Credits: credits, Price: price})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Credits < out[j].Credits })
	return out, nil
}
