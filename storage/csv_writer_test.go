package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"stays-service/models"
)

func TestCSVWriter_AppendsWithSingleHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "raw.csv")
	w := NewCSVWriter(path, quietLogger())

	items := []models.RawItem{
		{"title": "Cottage", "link": "https://example.com/1", "price": "₹2,499"},
	}
	if err := w.WriteRawItems(models.SourceAirbnb, "Dehradun", items); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRawItems(models.SourceBooking, "Dehradun", []models.RawItem{{"name": "Hotel"}}); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[1][1] != "airbnb" || rows[1][3] != "Cottage" || rows[1][4] != "https://example.com/1" {
		t.Errorf("row = %v", rows[1])
	}
	if rows[2][3] != "Hotel" {
		t.Errorf("row = %v", rows[2])
	}
}
