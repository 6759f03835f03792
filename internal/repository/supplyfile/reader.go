// Package supplyfile reads procurement requests from disk for offline matching runs.
// JSON files hold a bare item array or a {supplyList, userContext} object;
// Parquet files hold one itemRow per requested product and carry no user context.
package supplyfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
)

// Stdin is the path that makes ReadFile consume standard input as JSON.
const Stdin = "-"

// ErrMissingSupplyList is returned for a JSON object without a supplyList key.
var ErrMissingSupplyList = errors.New("supplyList is missing")

// Request is one supply list together with the buyer context.
type Request struct {
	Items []supply.Item      `json:"supplyList"`
	User  supply.UserContext `json:"userContext"`
}

// SetGeohash overrides the buyer location geohash.
func (r *Request) SetGeohash(geohash string) {
	if r.User.Location == nil {
		r.User.Location = &supply.Location{}
	}
	r.User.Location.Geohash = geohash
}

// Validate checks every item and reports the first offending index.
func (r *Request) Validate() error {
	for i, it := range r.Items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("supplyList[%d]: %w", i, err)
		}
	}
	return nil
}

// itemRow is one row of a Parquet supply list.
type itemRow struct {
	Description string   `parquet:"description"`
	Category    *string  `parquet:"category,optional"`
	MinQuantity *int64   `parquet:"min_quantity,optional"`
	TargetPrice *float64 `parquet:"target_price,optional"`
	MaxLeadTime *int64   `parquet:"max_lead_time,optional"`
}

// ReadFile loads a supply list. Paths ending in .parquet are decoded as Parquet, anything else as JSON.
func ReadFile(path string) (*Request, error) {
	if path == Stdin {
		return Read(os.Stdin)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		st, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		return ReadParquet(f, st.Size())
	}
	return Read(f)
}

// Read decodes a JSON supply list from r.
func Read(r io.Reader) (*Request, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read supply list: %w", err)
	}
	return ParseJSON(data)
}

// ParseJSON accepts a bare item array or a {supplyList, userContext} object.
func ParseJSON(data []byte) (*Request, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []supply.Item
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse supply list: %w", err)
		}
		return &Request{Items: items}, nil
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse supply list: %w", err)
	}
	if req.Items == nil {
		return nil, fmt.Errorf("parse supply list: %w", ErrMissingSupplyList)
	}
	return &req, nil
}

// ReadParquet decodes a Parquet supply list of size bytes.
func ReadParquet(r io.ReaderAt, size int64) (*Request, error) {
	rows, err := parquet.Read[itemRow](r, size)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}

	items := make([]supply.Item, 0, len(rows))
	for i := range rows {
		items = append(items, rows[i].toItem())
	}
	return &Request{Items: items}, nil
}

func (r *itemRow) toItem() supply.Item {
	it := supply.Item{Description: r.Description, TargetPrice: r.TargetPrice}
	if r.Category != nil {
		it.Category = *r.Category
	}
	it.MinQuantity = intPtr(r.MinQuantity)
	it.MaxLeadTime = intPtr(r.MaxLeadTime)
	return it
}

func intPtr(v *int64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
