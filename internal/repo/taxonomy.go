package repo

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"civicdesk/internal/config"
	"civicdesk/internal/domain"
)

// SeedTaxonomy inserts any sector, sub-sector or location from t that is not
// already present. Existing rows keep their ids.
func (r Repo) SeedTaxonomy(ctx context.Context, tx *sql.Tx, t config.Taxonomy) (int, error) {
	added := 0
	for _, s := range t.Sectors {
		sectorID, created, err := r.ensureSector(ctx, tx, s.Name)
		if err != nil {
			return added, err
		}
		if created {
			added++
		}
		for _, sub := range s.SubSectors {
			_, created, err := r.ensureSubSector(ctx, tx, sectorID, sub)
			if err != nil {
				return added, err
			}
			if created {
				added++
			}
		}
	}
	kinds := []domain.LocationKind{domain.LocationCommunity, domain.LocationSmallerCommunity, domain.LocationSuburb}
	var walk func(items []config.LocationSeed, depth int, parent *string) error
	walk = func(items []config.LocationSeed, depth int, parent *string) error {
		for _, l := range items {
			id, created, err := r.ensureLocation(ctx, tx, kinds[depth], l.Name, parent)
			if err != nil {
				return err
			}
			if created {
				added++
			}
			if depth+1 < len(kinds) {
				if err := walk(l.Children, depth+1, &id); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(t.Locations, 0, nil); err != nil {
		return added, err
	}
	return added, nil
}

func (r Repo) ensureSector(ctx context.Context, tx *sql.Tx, name string) (string, bool, error) {
	s, err := r.SectorByName(ctx, tx, name)
	if err == nil {
		return s.ID, false, nil
	}
	if err != ErrNotFound {
		return "", false, err
	}
	id := uuid.NewString()
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO sectors(id, name) VALUES (?,?)`, id, name)
	return id, err == nil, err
}

func (r Repo) ensureSubSector(ctx context.Context, tx *sql.Tx, sectorID, name string) (string, bool, error) {
	s, err := r.SubSectorByName(ctx, tx, sectorID, name)
	if err == nil {
		return s.ID, false, nil
	}
	if err != ErrNotFound {
		return "", false, err
	}
	id := uuid.NewString()
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO sub_sectors(id, sector_id, name) VALUES (?,?,?)`, id, sectorID, name)
	return id, err == nil, err
}

func (r Repo) ensureLocation(ctx context.Context, tx *sql.Tx, kind domain.LocationKind, name string, parent *string) (string, bool, error) {
	l, err := r.LocationByName(ctx, tx, kind, name, parent)
	if err == nil {
		return l.ID, false, nil
	}
	if err != ErrNotFound {
		return "", false, err
	}
	id := uuid.NewString()
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO locations(id, kind, name, parent_id) VALUES (?,?,?,?)`, id, kind, name, nullableStringPtr(parent))
	return id, err == nil, err
}

func (r Repo) SectorByName(ctx context.Context, tx *sql.Tx, name string) (domain.Sector, error) {
	var s domain.Sector
	err := r.on(tx).QueryRowContext(ctx, `SELECT id, name FROM sectors WHERE name=?`, name).Scan(&s.ID, &s.Name)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) SubSectorByName(ctx context.Context, tx *sql.Tx, sectorID, name string) (domain.SubSector, error) {
	var s domain.SubSector
	err := r.on(tx).QueryRowContext(ctx, `SELECT id, sector_id, name FROM sub_sectors WHERE sector_id=? AND name=?`, sectorID, name).
		Scan(&s.ID, &s.SectorID, &s.Name)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

// LocationByName looks up a location of kind by exact name. A nil parent
// matches any parent.
func (r Repo) LocationByName(ctx context.Context, tx *sql.Tx, kind domain.LocationKind, name string, parent *string) (domain.Location, error) {
	query := `SELECT id, kind, name, parent_id FROM locations WHERE kind=? AND name=?`
	args := []any{kind, name}
	if parent != nil {
		query += ` AND parent_id=?`
		args = append(args, *parent)
	}
	query += ` ORDER BY id LIMIT 1`
	var l domain.Location
	var p sql.NullString
	err := r.on(tx).QueryRowContext(ctx, query, args...).Scan(&l.ID, &l.Kind, &l.Name, &p)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	l.ParentID = ptrFromNull(p)
	return l, nil
}

func (r Repo) ListSectors(ctx context.Context) ([]domain.Sector, []domain.SubSector, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name FROM sectors ORDER BY name`)
	if err != nil {
		return nil, nil, err
	}
	sectors := []domain.Sector{}
	for rows.Next() {
		var s domain.Sector
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			rows.Close()
			return nil, nil, err
		}
		sectors = append(sectors, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	rows, err = r.DB.QueryContext(ctx, `SELECT id, sector_id, name FROM sub_sectors ORDER BY sector_id, name`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	subs := []domain.SubSector{}
	for rows.Next() {
		var s domain.SubSector
		if err := rows.Scan(&s.ID, &s.SectorID, &s.Name); err != nil {
			return nil, nil, err
		}
		subs = append(subs, s)
	}
	return sectors, subs, rows.Err()
}

func (r Repo) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, kind, name, parent_id FROM locations ORDER BY kind, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Location{}
	for rows.Next() {
		var l domain.Location
		var p sql.NullString
		if err := rows.Scan(&l.ID, &l.Kind, &l.Name, &p); err != nil {
			return nil, err
		}
		l.ParentID = ptrFromNull(p)
		res = append(res, l)
	}
	return res, rows.Err()
}
