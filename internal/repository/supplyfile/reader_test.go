package supplyfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/prodmatch/internal/domain"
)

func strPtr(s string) *string     { return &s }
func floatPtr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64     { return &v }

func TestParseJSON_Array(t *testing.T) {
	req, err := ParseJSON([]byte(` [{"description": "steel bolts", "minQuantity": 10}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(req.Items) != 1 || *req.Items[0].MinQuantity != 10 {
		t.Errorf("unexpected items: %+v", req.Items)
	}
	if req.User.Location != nil {
		t.Error("bare array has no user context")
	}
}

func TestParseJSON_Object(t *testing.T) {
	req, err := ParseJSON([]byte(`{
		"supplyList": [{"description": "gloves"}],
		"userContext": {"location": {"geohash": "9q8yyk", "city": "San Francisco"}}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.User.Geohash() != "9q8yyk" || req.User.Location.City != "San Francisco" {
		t.Errorf("unexpected user context: %+v", req.User)
	}
}

func TestParseJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ``},
		{"missing supply list", `{"userContext": {}}`},
		{"wrong type", `[{"description": 5}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseJSON([]byte(tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := ParseJSON([]byte(`{"userContext": {}}`))
	if !errors.Is(err, ErrMissingSupplyList) {
		t.Errorf("expected ErrMissingSupplyList, got %v", err)
	}
}

func TestSetGeohash(t *testing.T) {
	req := &Request{}
	req.SetGeohash("u4pruy")
	if req.User.Geohash() != "u4pruy" {
		t.Errorf("geohash = %q", req.User.Geohash())
	}
}

func TestValidate(t *testing.T) {
	req, err := ParseJSON([]byte(`[{"description": "tape"}, {"description": " "}]`))
	if err != nil {
		t.Fatal(err)
	}
	err = req.Validate()
	if !errors.Is(err, domain.ErrInvalidRequest) || !strings.Contains(err.Error(), "supplyList[1]") {
		t.Errorf("expected invalid item 1, got %v", err)
	}
}

func TestReadParquet(t *testing.T) {
	rows := []itemRow{
		{
			Description: "organic steel screws 1/4 inch",
			Category:    strPtr("hardware"),
			MinQuantity: int64Ptr(100),
			TargetPrice: floatPtr(50),
			MaxLeadTime: int64Ptr(0),
		},
		{Description: "nitrile gloves"},
	}
	var buf bytes.Buffer
	if err := parquet.Write(&buf, rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}

	req, err := ReadParquet(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(req.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(req.Items))
	}

	first := req.Items[0]
	if first.Category != "hardware" || *first.MinQuantity != 100 || *first.TargetPrice != 50 {
		t.Errorf("unexpected first item: %+v", first)
	}
	if first.MaxLeadTime == nil || *first.MaxLeadTime != 0 {
		t.Error("zero lead time must survive as a set value")
	}

	second := req.Items[1]
	if second.Category != "" || second.MinQuantity != nil || second.TargetPrice != nil || second.MaxLeadTime != nil {
		t.Errorf("absent columns must stay unset, got %+v", second)
	}
}

func TestReadFile_DispatchesByExtension(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "supply.json")
	if err := os.WriteFile(jsonPath, []byte(`[{"description":"tape"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	req, err := ReadFile(jsonPath)
	if err != nil || len(req.Items) != 1 {
		t.Fatalf("json: %+v %v", req, err)
	}

	pqPath := filepath.Join(dir, "supply.PARQUET")
	if err := parquet.WriteFile(pqPath, []itemRow{{Description: "rope"}}); err != nil {
		t.Fatal(err)
	}
	req, err = ReadFile(pqPath)
	if err != nil || len(req.Items) != 1 || req.Items[0].Description != "rope" {
		t.Fatalf("parquet: %+v %v", req, err)
	}

	if _, err := ReadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
