package sqlstore

import (
	"fmt"
	"time"

	"github.com/warp/supplychain/traceability"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// dbTime reads timestamps from either engine. SQLite keeps them as TEXT in
// traceability.TimestampLayout; MySQL returns time.Time with parseTime=true.
type dbTime struct {
	Time time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t *dbTime) parse(s string) error {
	ts, err := traceability.ParseTimestamp(s)
	if err != nil {
		// Rows written by other tools may use RFC 3339.
		ts, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
	}
	t.Time = ts.UTC()
	return nil
}

func scanStage(r rowScanner) (traceability.Stage, error) {
	var (
		s  traceability.Stage
		ts dbTime
	)
	err := r.Scan(&s.ID, &s.ProductID, &s.StageName, &s.Location, &s.UpdatedBy,
		&s.UpdatedByName, &s.Description, &s.Notes, &ts)
	s.Timestamp = ts.Time
	return s, err
}

func scanProductStage(r rowScanner) (traceability.ProductStage, error) {
	var (
		ps traceability.ProductStage
		ts dbTime
	)
	err := r.Scan(&ps.ID, &ps.ProductID, &ps.StageName, &ps.Location, &ps.UpdatedBy,
		&ps.UpdatedByName, &ps.Description, &ps.Notes, &ts,
		&ps.ProductName, &ps.BatchCode)
	ps.Timestamp = ts.Time
	return ps, err
}

func scanProduct(r rowScanner) (traceability.Product, error) {
	var (
		p         traceability.Product
		createdAt dbTime
	)
	err := r.Scan(&p.ID, &p.Name, &p.BatchCode, &p.Description, &p.CreatedBy, &createdAt)
	p.CreatedAt = createdAt.Time
	return p, err
}
