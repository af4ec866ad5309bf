package bed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestHandler_GetBed(t *testing.T) {
	repo := newMockRepo()
	b := repo.add("ICU-4", StatusAvailable)
	h := NewHandler(NewRegistry(repo))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())

	if err := h.GetBed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got Bed
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BedNumber != "ICU-4" {
		t.Errorf("expected ICU-4, got %s", got.BedNumber)
	}
}

func TestHandler_GetBed_NotFound(t *testing.T) {
	h := NewHandler(NewRegistry(newMockRepo()))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetBed(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_GetBed_InvalidID(t *testing.T) {
	h := NewHandler(NewRegistry(newMockRepo()))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	err := h.GetBed(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_ListBeds(t *testing.T) {
	repo := newMockRepo()
	repo.add("A-1", StatusAvailable)
	repo.add("A-2", StatusCleaning)
	h := NewHandler(NewRegistry(repo))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/beds?status=cleaning", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListBeds(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Bed `json:"data"`
		Total int   `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 1 || len(body.Data) != 1 || body.Data[0].BedNumber != "A-2" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestHandler_ListBeds_BadWard(t *testing.T) {
	h := NewHandler(NewRegistry(newMockRepo()))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/beds?ward_id=x", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.ListBeds(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
