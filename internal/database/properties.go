package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"staybook/internal/domain"
	"staybook/internal/models"
)

const propertyColumns = `id, host_id, name, price_per_night, max_guests, number_of_units,
	availability, created_at, updated_at, version`

func (db *DB) GetProperty(ctx context.Context, id int64) (*models.Property, error) {
	return getProperty(ctx, db.DB, id)
}

func (db *DB) ListProperties(ctx context.Context) ([]*models.Property, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+propertyColumns+` FROM properties ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	var properties []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		properties = append(properties, p)
	}
	return properties, rows.Err()
}

// CreateProperty inserts a property. A zero ID lets SQLite assign one.
func (db *DB) CreateProperty(ctx context.Context, p *models.Property) error {
	raw, err := encodeWindows(p.Availability)
	if err != nil {
		return err
	}

	now := time.Now()
	query := `INSERT INTO properties (
				id, host_id, name, price_per_night, max_guests, number_of_units,
				availability, created_at, updated_at, version
			) VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	result, err := db.ExecContext(ctx, query,
		p.ID, p.HostID, p.Name, p.PricePerNight, p.MaxGuests, p.Units(), raw, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create property: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id
	p.NumberOfUnits = p.Units()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 1
	return nil
}

func getProperty(ctx context.Context, q querier, id int64) (*models.Property, error) {
	row := q.QueryRowContext(ctx, `SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id)
	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.PropertyNotFound(id)
	}
	return p, err
}

// saveAvailability writes the calendar if the property is still at the version
// it was read at, then bumps the version.
func saveAvailability(ctx context.Context, q querier, p *models.Property) error {
	raw, err := encodeWindows(p.Availability)
	if err != nil {
		return err
	}

	now := time.Now()
	query := `UPDATE properties SET availability = ?, updated_at = ?, version = version + 1
              WHERE id = ? AND version = ?`
	result, err := q.ExecContext(ctx, query, raw, now, p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("failed to save availability: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return domain.ErrConcurrentModification
	}
	p.Version++
	p.UpdatedAt = now
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(s rowScanner) (*models.Property, error) {
	var (
		p   models.Property
		raw string
	)
	err := s.Scan(&p.ID, &p.HostID, &p.Name, &p.PricePerNight, &p.MaxGuests, &p.NumberOfUnits,
		&raw, &p.CreatedAt, &p.UpdatedAt, &p.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan property: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &p.Availability); err != nil {
		return nil, fmt.Errorf("failed to decode availability of property %d: %w", p.ID, err)
	}
	return &p, nil
}

func encodeWindows(windows []models.DateRange) (string, error) {
	if windows == nil {
		windows = []models.DateRange{}
	}
	raw, err := json.Marshal(windows)
	if err != nil {
		return "", fmt.Errorf("failed to encode availability: %w", err)
	}
	return string(raw), nil
}
