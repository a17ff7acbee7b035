package service

import (
	"bytes"
	"io"
	"math"
	"net/http"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/mmynk/receiptsplit/internal/export"
	"github.com/mmynk/receiptsplit/internal/models"
)

func TestCalculateSplit_SharedItem(t *testing.T) {
	srv := setupTestServer(t, nil)

	resp := srv.do(t, http.MethodPost, "/splits", SplitRequest{
		Receipt: &models.Receipt{
			Items:    []models.LineItem{{Description: "Pizza", TotalPrice: models.Amount(10)}},
			Subtotal: models.Amount(10),
			Tax:      models.Amount(1),
		},
		People:       dinnerPeople(),
		Attributions: []models.ItemAttribution{{ItemIndex: 0, PersonIDs: []string{"alice", "bob"}}},
	})
	expectStatus(t, resp, http.StatusOK)
	result := decodeBody[SplitResponse](t, resp)

	if len(result.Splits) != 2 {
		t.Fatalf("Expected 2 splits, got %d", len(result.Splits))
	}
	for _, split := range result.Splits {
		if math.Abs(split.Subtotal-5.00) > 0.01 {
			t.Errorf("%s subtotal = %.2f, want 5.00", split.Person.Name, split.Subtotal)
		}
		if math.Abs(split.Tax-0.50) > 0.01 {
			t.Errorf("%s tax = %.2f, want 0.50", split.Person.Name, split.Tax)
		}
		if math.Abs(split.Total-5.50) > 0.01 {
			t.Errorf("%s total = %.2f, want 5.50", split.Person.Name, split.Total)
		}
	}
	if result.Settlements == nil || len(result.Settlements) != 0 {
		t.Errorf("expected no settlements without payer, got %v", result.Settlements)
	}
}

func TestCalculateSplit_WithPayer(t *testing.T) {
	srv := setupTestServer(t, nil)

	resp := srv.do(t, http.MethodPost, "/splits", SplitRequest{
		Receipt: dinnerReceipt(),
		People:  dinnerPeople(),
		Attributions: []models.ItemAttribution{
			{ItemIndex: 0, PersonIDs: []string{"alice"}},
			{ItemIndex: 1, PersonIDs: []string{"bob"}},
		},
		PayerID: "alice",
	})
	expectStatus(t, resp, http.StatusOK)
	result := decodeBody[SplitResponse](t, resp)

	if len(result.Settlements) != 1 {
		t.Fatalf("Expected 1 settlement, got %+v", result.Settlements)
	}
	s := result.Settlements[0]
	if s.From != "bob" || s.To != "alice" || math.Abs(s.Amount-11.00) > 0.01 {
		t.Errorf("settlement = %+v, want bob -> alice 11.00", s)
	}
}

func TestCalculateSplit_BadRequest(t *testing.T) {
	srv := setupTestServer(t, nil)

	tests := []struct {
		name string
		req  SplitRequest
	}{
		{"missing receipt", SplitRequest{People: dinnerPeople()}},
		{"invalid payer", SplitRequest{Receipt: dinnerReceipt(), People: dinnerPeople(), PayerID: "carol"}},
		{"index out of range", SplitRequest{
			Receipt:      dinnerReceipt(),
			People:       dinnerPeople(),
			Attributions: []models.ItemAttribution{{ItemIndex: 5, PersonIDs: []string{"alice"}}},
		}},
		{"person repeated on item", SplitRequest{
			Receipt:      dinnerReceipt(),
			People:       dinnerPeople(),
			Attributions: []models.ItemAttribution{{ItemIndex: 0, PersonIDs: []string{"alice", "alice"}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, srv.do(t, http.MethodPost, "/splits", tt.req), http.StatusBadRequest)
		})
	}
}

func TestGetSessionSplits(t *testing.T) {
	srv := setupTestServer(t, nil)
	id := srv.createSession(t)

	expectStatus(t, srv.do(t, http.MethodPatch, "/sessions/"+id, map[string]any{
		"attributions": []models.ItemAttribution{
			{ItemIndex: 0, PersonIDs: []string{"alice", "bob"}},
			{ItemIndex: 1, PersonIDs: []string{"bob"}},
		},
	}), http.StatusOK)

	resp := srv.do(t, http.MethodGet, "/sessions/"+id+"/splits?payerId=bob", nil)
	expectStatus(t, resp, http.StatusOK)
	result := decodeBody[SplitResponse](t, resp)

	// alice: 10 of 30 -> 10 + 1 tax; bob: 20 of 30 -> 20 + 2 tax
	want := map[string]float64{"alice": 11, "bob": 22}
	for _, split := range result.Splits {
		if math.Abs(split.Total-want[split.Person.ID]) > 0.01 {
			t.Errorf("%s total = %.2f, want %.2f", split.Person.ID, split.Total, want[split.Person.ID])
		}
	}
	if len(result.Settlements) != 1 || result.Settlements[0].From != "alice" {
		t.Errorf("settlements = %+v", result.Settlements)
	}

	expectStatus(t, srv.do(t, http.MethodGet, "/sessions/"+id+"/splits?payerId=carol", nil), http.StatusBadRequest)
	expectStatus(t, srv.do(t, http.MethodGet, "/sessions/missing/splits", nil), http.StatusNotFound)
}

func TestExportSession(t *testing.T) {
	srv := setupTestServer(t, nil)
	id := srv.createSession(t)

	resp := srv.do(t, http.MethodGet, "/sessions/"+id+"/export", nil)
	expectStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != export.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read workbook: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("response is not a workbook: %v", err)
	}
	defer f.Close()

	if name, _ := f.GetCellValue(export.ItemsSheet, "A2"); name != "Pizza" {
		t.Errorf("first item = %q, want Pizza", name)
	}

	expectStatus(t, srv.do(t, http.MethodGet, "/sessions/missing/export", nil), http.StatusNotFound)
}
