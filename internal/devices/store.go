package devices

import (
	"context"
	"database/sql"
	"fmt"

	"mijia-gateway/internal/advert"
	"mijia-gateway/internal/utils"
)

// Store keeps the registry in SQLite (tables devices and device_topics).
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) List(ctx context.Context) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.address, d.name, t.reading, t.topic
		FROM devices d
		LEFT JOIN device_topics t ON t.address = d.address
		ORDER BY d.address, t.reading
	`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var (
			addr, name     string
			reading, topic sql.NullString
		)
		if err := rows.Scan(&addr, &name, &reading, &topic); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].Address != addr {
			out = append(out, Device{Address: addr, Name: name, Topics: map[advert.ReadingName]string{}})
		}
		if reading.Valid {
			out[len(out)-1].Topics[advert.ReadingName(reading.String)] = topic.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return out, nil
}

// Load builds a Registry from the stored devices.
func (s *Store) Load(ctx context.Context) (*Registry, error) {
	devices, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return NewRegistry(devices)
}

// Import validates devices and upserts them in one transaction. A device's
// stored topics are replaced by the imported ones.
func (s *Store) Import(ctx context.Context, devices []Device) (int, error) {
	reg, err := NewRegistry(devices)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, d := range reg.Devices() {
		if err := upsert(ctx, tx, d); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return reg.Len(), nil
}

func (s *Store) Upsert(ctx context.Context, d Device) error {
	_, err := s.Import(ctx, []Device{d})
	return err
}

func (s *Store) Delete(ctx context.Context, address string) (bool, error) {
	addr, err := utils.NormalizeAddress(address)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE address = ?`, addr)
	if err != nil {
		return false, fmt.Errorf("delete device %s: %w", addr, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func upsert(ctx context.Context, tx *sql.Tx, d Device) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO devices (address, name) VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = excluded.name,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
	`, d.Address, d.Name)
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", d.Address, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM device_topics WHERE address = ?`, d.Address); err != nil {
		return fmt.Errorf("clear topics %s: %w", d.Address, err)
	}
	for _, name := range advert.ReadingNames {
		topic, ok := d.Topics[name]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO device_topics (address, reading, topic) VALUES (?, ?, ?)`,
			d.Address, string(name), topic,
		); err != nil {
			return fmt.Errorf("insert topic %s/%s: %w", d.Address, name, err)
		}
	}
	return nil
}
