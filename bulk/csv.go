package bulk

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rustyeddy/oms/market"
	"github.com/rustyeddy/oms/order"
)

// Header is the required CSV header for bulk uploads.
var Header = []string{"symbol", "side", "orderType", "quantity", "price", "venue", "timeInForce"}

// Row is one parsed upload line: either a valid order request or the
// reason it could not be parsed. Line is the 1-based data row number.
type Row struct {
	Line    int
	Request order.Request
	Err     error
}

// ParseCSV reads the upload format of a bulk order file. A bad header is
// a file-level error; a bad data row becomes a Row with Err set so the
// batch can account for it without aborting.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file: header row required")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var rows []Row
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rows = append(rows, Row{Line: line, Err: fmt.Errorf("malformed row: %v", err)})
			continue
		}
		req, perr := parseRecord(rec)
		rows = append(rows, Row{Line: line, Request: req, Err: perr})
	}
	return rows, nil
}

func checkHeader(got []string) error {
	if len(got) != len(Header) {
		return fmt.Errorf("bad header: expected %d columns, got %d", len(Header), len(got))
	}
	for i, want := range Header {
		if strings.TrimSpace(got[i]) != want {
			return fmt.Errorf("bad header: column %d is %q, want %q", i+1, got[i], want)
		}
	}
	return nil
}

func parseRecord(rec []string) (order.Request, error) {
	var req order.Request
	if len(rec) != len(Header) {
		return req, fmt.Errorf("expected %d columns, got %d", len(Header), len(rec))
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}

	req.Symbol = rec[0]

	side, err := order.ParseSide(rec[1])
	if err != nil {
		return req, err
	}
	req.Side = side

	typ, err := order.ParseType(rec[2])
	if err != nil {
		return req, err
	}
	req.Type = typ

	qty, err := strconv.ParseInt(rec[3], 10, 64)
	if err != nil {
		return req, fmt.Errorf("invalid quantity %q", rec[3])
	}
	req.Quantity = qty

	if rec[4] == "" {
		if typ != order.TypeMarket {
			return req, fmt.Errorf("price is required for %s orders", typ)
		}
	} else {
		price, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return req, fmt.Errorf("invalid price %q", rec[4])
		}
		req.Price = &price
	}

	if rec[5] != "" {
		venue, err := market.ParseVenue(rec[5])
		if err != nil {
			return req, err
		}
		req.Venue = venue
	}

	if rec[6] != "" {
		tif, err := order.ParseTimeInForce(rec[6])
		if err != nil {
			return req, err
		}
		req.TimeInForce = tif
	}

	return req, nil
}
