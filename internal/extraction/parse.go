package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// text accepts a JSON string, number or null and keeps its literal form.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = ""
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*t = text(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", trimmed)
	}
	*t = text(n.String())
	return nil
}

type rawReceipt struct {
	StationName    text `json:"station_name"`
	SellerAddress  text `json:"seller_address"`
	SellerCity     text `json:"seller_city"`
	SellerState    text `json:"seller_state"`
	SellerZip      text `json:"seller_zip"`
	PurchaseDate   text `json:"purchase_date"`
	FuelType       text `json:"fuel_type"`
	Gallons        text `json:"gallons"`
	PricePerGallon text `json:"price_per_gallon"`
	TotalAmount    text `json:"total_amount"`
}

// ParseResponse decodes the model's answer. Surrounding prose and markdown
// fences are tolerated; a response without a JSON object is an error.
func ParseResponse(raw string) (*Result, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")

	start := strings.Index(body, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	end := strings.LastIndex(body, "}")
	if end < start {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	var r rawReceipt
	if err := json.Unmarshal([]byte(body[start:end+1]), &r); err != nil {
		return nil, fmt.Errorf("unmarshaling receipt json: %w", err)
	}

	res := &Result{
		StationName:    string(r.StationName),
		SellerAddress:  string(r.SellerAddress),
		SellerCity:     string(r.SellerCity),
		SellerState:    strings.ToUpper(string(r.SellerState)),
		SellerZip:      string(r.SellerZip),
		FuelType:       strings.ToLower(string(r.FuelType)),
		Gallons:        string(r.Gallons),
		PricePerGallon: string(r.PricePerGallon),
		TotalAmount:    string(r.TotalAmount),
	}
	if d, ok := parseDate(string(r.PurchaseDate)); ok {
		res.PurchaseDate = &d
	}
	return res, nil
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.UTC(), true
		}
	}
	return time.Time{}, false
}
