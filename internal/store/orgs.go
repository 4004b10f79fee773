package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

const organisationCols = "id, name, slug, is_active, email, config"

func scanOrganisation(row *sql.Row) (Organisation, error) {
	var o Organisation
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.IsActive, &o.Email, &o.Config)
	if errors.Is(err, sql.ErrNoRows) {
		return Organisation{}, ErrNotFound
	}
	return o, err
}

func (s *Store) GetOrganisation(ctx context.Context, id int64) (Organisation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+organisationCols+" FROM organisations WHERE id = ? AND is_active = 1", id)
	return scanOrganisation(row)
}

func (s *Store) ListOrganisations(ctx context.Context) ([]Organisation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+organisationCols+" FROM organisations WHERE is_active = 1 ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []Organisation
	for rows.Next() {
		var o Organisation
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.IsActive, &o.Email, &o.Config); err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (s *Store) GetSite(ctx context.Context, id int64) (Site, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, organisation_id, name, slug, is_active FROM sites WHERE id = ?", id)
	var site Site
	err := row.Scan(&site.ID, &site.OrganisationID, &site.Name, &site.Slug, &site.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return Site{}, ErrNotFound
	}
	return site, err
}

func (s *Store) ListSites(ctx context.Context, organisationID int64) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, organisation_id, name, slug, is_active FROM sites WHERE organisation_id = ? AND is_active = 1 ORDER BY name",
		organisationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []Site
	for rows.Next() {
		var site Site
		if err := rows.Scan(&site.ID, &site.OrganisationID, &site.Name, &site.Slug, &site.IsActive); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

const resourceCols = "id, site_id, name, slug, resource_type, is_active, surface, is_indoor, has_floodlights"

func (s *Store) GetResource(ctx context.Context, id int64) (Resource, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+resourceCols+" FROM resources WHERE id = ? AND is_active = 1", id)
	var r Resource
	err := row.Scan(&r.ID, &r.SiteID, &r.Name, &r.Slug, &r.ResourceType, &r.IsActive,
		&r.Surface, &r.IsIndoor, &r.HasFloodlights)
	if errors.Is(err, sql.ErrNoRows) {
		return Resource{}, ErrNotFound
	}
	return r, err
}

func (s *Store) ListResources(ctx context.Context, siteID int64) ([]Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+resourceCols+" FROM resources WHERE site_id = ? AND is_active = 1 ORDER BY sort_order, name",
		siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var resources []Resource
	for rows.Next() {
		var r Resource
		if err := rows.Scan(&r.ID, &r.SiteID, &r.Name, &r.Slug, &r.ResourceType, &r.IsActive,
			&r.Surface, &r.IsIndoor, &r.HasFloodlights); err != nil {
			return nil, err
		}
		resources = append(resources, r)
	}
	return resources, rows.Err()
}
