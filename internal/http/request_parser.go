package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"coinlog/internal/core"
)

// addRecordRequest is the wire form of a new run. JSON bodies use the
// struct tags; form posts use the same field names.
type addRecordRequest struct {
	Entity     string  `json:"entity"`
	Base       float64 `json:"base"`
	Boost      float64 `json:"boost"`
	FiveToFour bool    `json:"five_to_four"`
	PlusCoin   bool    `json:"plus_coin"`
}

func (r addRecordRequest) Items() core.Items {
	return core.Items{FiveToFour: r.FiveToFour, PlusCoin: r.PlusCoin}
}

// parseAddRecordRequest accepts either a JSON body or a form post, so the
// API works from scripts and plain HTML forms alike.
func parseAddRecordRequest(r *http.Request) (addRecordRequest, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		return parseJSONRecord(r)
	}
	return parseFormRecord(r)
}

func parseJSONRecord(r *http.Request) (addRecordRequest, error) {
	var req addRecordRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return addRecordRequest{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	req.Entity = sanitizeInput(req.Entity)
	return req, nil
}

func parseFormRecord(r *http.Request) (addRecordRequest, error) {
	if err := r.ParseForm(); err != nil {
		return addRecordRequest{}, errors.New("invalid form body")
	}

	req := addRecordRequest{
		Entity:     sanitizeInput(r.Form.Get("entity")),
		FiveToFour: parseCheckbox(r.Form.Get("five_to_four")),
		PlusCoin:   parseCheckbox(r.Form.Get("plus_coin")),
	}

	var err error
	if req.Base, err = parseNumber(r.Form.Get("base")); err != nil {
		return addRecordRequest{}, fmt.Errorf("invalid base: %w", err)
	}
	if req.Boost, err = parseNumber(r.Form.Get("boost")); err != nil {
		return addRecordRequest{}, fmt.Errorf("invalid boost: %w", err)
	}

	return req, nil
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("value is required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("not a number")
	}
	return v, nil
}

// parseCheckbox accepts the values HTML checkboxes and scripts send.
func parseCheckbox(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
