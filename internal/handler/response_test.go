package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Run("sets content type and status code", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})

		if got := w.Header().Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q, want %q", got, "application/json")
		}
		if w.Code != http.StatusOK {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
		}
		if got := w.Header().Get("Cache-Control"); got != "no-store" {
			t.Errorf("Cache-Control = %q, want no-store", got)
		}

		var result map[string]string
		if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if result["status"] != "ok" {
			t.Errorf("body status = %q, want %q", result["status"], "ok")
		}
	})

	t.Run("encodes struct with snake_case tags", func(t *testing.T) {
		type resp struct {
			AccountName string `json:"account_name"`
			Balance     uint64 `json:"balance"`
		}
		w := httptest.NewRecorder()
		WriteJSON(w, http.StatusOK, resp{AccountName: "ibm", Balance: 125})

		var raw map[string]any
		if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if raw["account_name"] != "ibm" {
			t.Errorf("account_name = %v, want %q", raw["account_name"], "ibm")
		}
		if raw["balance"] != float64(125) {
			t.Errorf("balance = %v, want 125", raw["balance"])
		}
	})
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusNotFound, "account_not_found", "Stock not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusNotFound)
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Error != "account_not_found" || body.Message != "Stock not found" {
		t.Errorf("unexpected body: %+v", body)
	}
}
