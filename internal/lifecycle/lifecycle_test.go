package lifecycle

import (
	"testing"

	"github.com/artloom/artloom/pkg/models"
)

func TestCanEnter(t *testing.T) {
	cases := []struct {
		from, to models.AgentStatus
		want     bool
	}{
		{models.StatusIdle, models.StatusProcessing, true},
		{models.StatusProcessing, models.StatusSuccess, true},
		{models.StatusProcessing, models.StatusFailed, true},
		{models.StatusIdle, models.StatusSuccess, false},
		{models.StatusFailed, models.StatusProcessing, true}, // retry
		{models.StatusSuccess, models.StatusProcessing, true}, // regenerate
		{models.StatusSuccess, models.StatusDeleting, true},
		{models.StatusIdle, models.StatusDeleting, true},
		{models.StatusFailed, models.StatusSuccess, false},
	}
	for _, tc := range cases {
		if got := CanEnter(tc.from, tc.to); got != tc.want {
			t.Errorf("CanEnter(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestMarkSuccessRequiresOutput(t *testing.T) {
	a := &models.Agent{ID: "a1", Status: models.StatusProcessing}
	if err := MarkSuccess(a, ""); err == nil {
		t.Fatal("MarkSuccess with empty URL should fail")
	}
	if err := MarkSuccess(a, "https://cdn.example.com/cat.png"); err != nil {
		t.Fatalf("MarkSuccess() error = %v", err)
	}
	if a.Status != models.StatusSuccess {
		t.Errorf("Status = %q, want success", a.Status)
	}
	if a.RequestID != "" {
		t.Errorf("RequestID should be cleared on terminal transition, got %q", a.RequestID)
	}
}

func TestMarkFailedPreservesOutput(t *testing.T) {
	a := &models.Agent{ID: "a1", Status: models.StatusProcessing, OutputURL: "https://cdn.example.com/good.png"}
	MarkFailed(a, "provider returned 503")
	if a.Status != models.StatusFailed {
		t.Errorf("Status = %q, want failed", a.Status)
	}
	if a.OutputURL != "https://cdn.example.com/good.png" {
		t.Errorf("OutputURL changed on failure: %q", a.OutputURL)
	}
	if a.Error == "" {
		t.Error("Error should record the failure reason")
	}
}

func TestMarkProcessingKeepsLastGoodResult(t *testing.T) {
	a := &models.Agent{ID: "a1", Status: models.StatusSuccess, OutputURL: "https://cdn.example.com/good.png", Error: "old"}
	MarkProcessing(a, "req-2")
	if a.OutputURL == "" {
		t.Error("regeneration must not blank the last good output")
	}
	if a.RequestID != "req-2" {
		t.Errorf("RequestID = %q, want req-2", a.RequestID)
	}
	if a.Error != "" {
		t.Error("stale error should be cleared on regeneration")
	}
}
