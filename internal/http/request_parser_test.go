package http

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseAddRecordRequestJSON(t *testing.T) {
	body := `{"entity":"マレドラ","base":5000,"boost":5150,"five_to_four":true}`
	r := httptest.NewRequest("POST", "/records", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	req, err := parseAddRecordRequest(r)
	if err != nil {
		t.Fatalf("parseAddRecordRequest() error = %v", err)
	}
	if req.Entity != "マレドラ" || req.Base != 5000 || req.Boost != 5150 {
		t.Errorf("parsed = %+v", req)
	}
	if !req.FiveToFour || req.PlusCoin {
		t.Errorf("items = %+v, want five_to_four only", req.Items())
	}
}

func TestParseAddRecordRequestJSONUnknownField(t *testing.T) {
	body := `{"entity":"x","base":1,"boost":2,"bogus":true}`
	r := httptest.NewRequest("POST", "/records", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")

	if _, err := parseAddRecordRequest(r); err == nil {
		t.Error("parseAddRecordRequest() error = nil, want unknown field error")
	}
}

func TestParseAddRecordRequestForm(t *testing.T) {
	form := "entity=%E3%83%9E%E3%83%AC%E3%83%89%E3%83%A9&base=1000&boost=2000&plus_coin=on"
	r := httptest.NewRequest("POST", "/records", strings.NewReader(form))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req, err := parseAddRecordRequest(r)
	if err != nil {
		t.Fatalf("parseAddRecordRequest() error = %v", err)
	}
	if req.Entity != "マレドラ" {
		t.Errorf("Entity = %q", req.Entity)
	}
	if req.Base != 1000 || req.Boost != 2000 {
		t.Errorf("Base/Boost = %v/%v, want 1000/2000", req.Base, req.Boost)
	}
	if !req.PlusCoin || req.FiveToFour {
		t.Errorf("items = %+v, want plus_coin only", req.Items())
	}
}

func TestParseAddRecordRequestFormMissingNumbers(t *testing.T) {
	tests := []struct {
		name string
		form string
	}{
		{"missing base", "entity=x&boost=2000"},
		{"missing boost", "entity=x&base=1000"},
		{"non-numeric base", "entity=x&base=abc&boost=2000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/records", strings.NewReader(tt.form))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			if _, err := parseAddRecordRequest(r); err == nil {
				t.Error("parseAddRecordRequest() error = nil, want parse error")
			}
		})
	}
}

func TestParseCheckbox(t *testing.T) {
	for _, v := range []string{"on", "true", "1", "yes", "ON", " true "} {
		if !parseCheckbox(v) {
			t.Errorf("parseCheckbox(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"", "off", "false", "0", "no"} {
		if parseCheckbox(v) {
			t.Errorf("parseCheckbox(%q) = true, want false", v)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  マレドラ\x00\x1b "); got != "マレドラ" {
		t.Errorf("sanitizeInput() = %q", got)
	}
}
