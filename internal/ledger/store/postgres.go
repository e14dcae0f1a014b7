package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"clicr/internal/ledger/models"
	id "clicr/pkg/domain"
	"clicr/pkg/platform/sentinel"
	"clicr/pkg/requestcontext"
)

// Postgres is the production authoritative store. The delta-and-log procedure
// runs inside one transaction with a row lock on the snapshot; that
// transaction boundary is the only consistency guarantee the engine relies on.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a Postgres store on an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) GetBusiness(ctx context.Context, businessID id.BusinessID) (models.Business, error) {
	const query = `
SELECT id, name, timezone, refresh_interval, alert_threshold, reset_rule, retain_scan_pii
FROM businesses WHERE id = $1`

	var b models.Business
	var bid uuid.UUID
	err := s.pool.QueryRow(ctx, query, uuid.UUID(businessID)).Scan(
		&bid, &b.Name, &b.Timezone,
		&b.Settings.RefreshInterval, &b.Settings.AlertThreshold,
		&b.Settings.ResetRule, &b.Settings.RetainScanPII,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Business{}, sentinel.ErrNotFound
		}
		return models.Business{}, fmt.Errorf("get business: %w", err)
	}
	b.ID = id.BusinessID(bid)
	return b, nil
}

func (s *Postgres) ListVenues(ctx context.Context, businessID id.BusinessID) ([]models.Venue, error) {
	const query = `
SELECT id, business_id, name, address, city, region, postal_code,
       capacity, enforcement, status, created_at, updated_at
FROM venues WHERE business_id = $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, uuid.UUID(businessID))
	if err != nil {
		return nil, fmt.Errorf("list venues: %w", err)
	}
	defer rows.Close()

	var out []models.Venue
	for rows.Next() {
		var v models.Venue
		var vid, bid uuid.UUID
		var enforcement, status string
		if err := rows.Scan(&vid, &bid, &v.Name, &v.Address, &v.City, &v.Region,
			&v.PostalCode, &v.Capacity, &enforcement, &status, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan venue: %w", err)
		}
		v.ID = id.VenueID(vid)
		v.BusinessID = id.BusinessID(bid)
		v.Enforcement = id.EnforcementMode(enforcement)
		v.Status = models.VenueStatus(status)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Postgres) ListAreas(ctx context.Context, businessID id.BusinessID) ([]models.Area, error) {
	const query = `
SELECT a.id, a.venue_id, a.name, a.default_capacity, a.counting_mode, a.active
FROM areas a JOIN venues v ON v.id = a.venue_id
WHERE v.business_id = $1 ORDER BY a.name`

	rows, err := s.pool.Query(ctx, query, uuid.UUID(businessID))
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer rows.Close()

	var out []models.Area
	for rows.Next() {
		var a models.Area
		var aid, vid uuid.UUID
		if err := rows.Scan(&aid, &vid, &a.Name, &a.DefaultCapacity, &a.CountingMode, &a.Active); err != nil {
			return nil, fmt.Errorf("scan area: %w", err)
		}
		a.ID = id.AreaID(aid)
		a.VenueID = id.VenueID(vid)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) ListUsers(ctx context.Context, businessID id.BusinessID) ([]models.User, error) {
	const query = `
SELECT id, business_id, name, email, role, venue_ids, area_ids, device_ids, active, created_at
FROM users WHERE business_id = $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, uuid.UUID(businessID))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []models.User
	for rows.Next() {
		var u models.User
		var uid, bid uuid.UUID
		var role string
		var venueIDs, areaIDs, deviceIDs []byte
		if err := rows.Scan(&uid, &bid, &u.Name, &u.Email, &role,
			&venueIDs, &areaIDs, &deviceIDs, &u.Active, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.ID = id.UserID(uid)
		u.BusinessID = id.BusinessID(bid)
		u.Role = models.Role(role)
		if err := unmarshalIDs(venueIDs, &u.VenueIDs); err != nil {
			return nil, err
		}
		if err := unmarshalIDs(areaIDs, &u.AreaIDs); err != nil {
			return nil, err
		}
		if err := unmarshalIDs(deviceIDs, &u.DeviceIDs); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Postgres) GetUser(ctx context.Context, userID id.UserID) (models.User, error) {
	const query = `
SELECT id, business_id, name, email, role, venue_ids, area_ids, device_ids, active, created_at
FROM users WHERE id = $1`

	var u models.User
	var uid, bid uuid.UUID
	var role string
	var venueIDs, areaIDs, deviceIDs []byte
	err := s.pool.QueryRow(ctx, query, uuid.UUID(userID)).Scan(&uid, &bid, &u.Name, &u.Email, &role,
		&venueIDs, &areaIDs, &deviceIDs, &u.Active, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	u.ID = id.UserID(uid)
	u.BusinessID = id.BusinessID(bid)
	u.Role = models.Role(role)
	if err := unmarshalIDs(venueIDs, &u.VenueIDs); err != nil {
		return models.User{}, err
	}
	if err := unmarshalIDs(areaIDs, &u.AreaIDs); err != nil {
		return models.User{}, err
	}
	if err := unmarshalIDs(deviceIDs, &u.DeviceIDs); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Postgres) ListDevices(ctx context.Context, businessID id.BusinessID) ([]models.Device, error) {
	const query = `
SELECT d.id, d.area_id, d.name, d.flow_mode, d.buttons, d.active
FROM devices d
JOIN areas a ON a.id = d.area_id
JOIN venues v ON v.id = a.venue_id
WHERE v.business_id = $1 ORDER BY d.name`

	rows, err := s.pool.Query(ctx, query, uuid.UUID(businessID))
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []models.Device
	for rows.Next() {
		var d models.Device
		var did, aid uuid.UUID
		var flowMode string
		var buttons []byte
		if err := rows.Scan(&did, &aid, &d.Name, &flowMode, &buttons, &d.Active); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.ID = id.DeviceID(did)
		d.AreaID = id.AreaID(aid)
		d.FlowMode = id.FlowMode(flowMode)
		if len(buttons) > 0 {
			if err := json.Unmarshal(buttons, &d.Buttons); err != nil {
				return nil, fmt.Errorf("decode device buttons: %w", err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) ListSnapshots(ctx context.Context, businessID id.BusinessID) ([]models.OccupancySnapshot, error) {
	const query = `
SELECT s.area_id, s.occupancy, s.updated_at
FROM occupancy_snapshots s
JOIN areas a ON a.id = s.area_id
JOIN venues v ON v.id = a.venue_id
WHERE v.business_id = $1`

	rows, err := s.pool.Query(ctx, query, uuid.UUID(businessID))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []models.OccupancySnapshot
	for rows.Next() {
		var snap models.OccupancySnapshot
		var aid uuid.UUID
		if err := rows.Scan(&aid, &snap.Occupancy, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.AreaID = id.AreaID(aid)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// EnsureSnapshot lazily creates the zero row for an area. Idempotent; safe to
// race with concurrent hydrations.
func (s *Postgres) EnsureSnapshot(ctx context.Context, areaID id.AreaID) (models.OccupancySnapshot, error) {
	const stmt = `
INSERT INTO occupancy_snapshots (area_id, occupancy, updated_at)
VALUES ($1, 0, $2)
ON CONFLICT (area_id) DO NOTHING`

	now := requestcontext.Now(ctx)
	if _, err := s.pool.Exec(ctx, stmt, uuid.UUID(areaID), now); err != nil {
		return models.OccupancySnapshot{}, fmt.Errorf("ensure snapshot: %w", err)
	}

	var snap models.OccupancySnapshot
	var aid uuid.UUID
	err := s.pool.QueryRow(ctx,
		`SELECT area_id, occupancy, updated_at FROM occupancy_snapshots WHERE area_id = $1`,
		uuid.UUID(areaID)).Scan(&aid, &snap.Occupancy, &snap.UpdatedAt)
	if err != nil {
		return models.OccupancySnapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	snap.AreaID = id.AreaID(aid)
	return snap, nil
}

func (s *Postgres) ListRecentEvents(ctx context.Context, businessID id.BusinessID, limit int) ([]models.CountEvent, error) {
	const query = `
SELECT id, business_id, venue_id, area_id, device_id, user_id, delta, flow_type, event_type, occurred_at
FROM count_events WHERE business_id = $1 ORDER BY occurred_at DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, uuid.UUID(businessID), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	defer rows.Close()

	var out []models.CountEvent
	for rows.Next() {
		e, err := scanCountEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) ListRecentScans(ctx context.Context, businessID id.BusinessID, limit int) ([]models.IdentityScanEvent, error) {
	const query = `
SELECT id, business_id, venue_id, user_id, result, denial_reason, age,
       first_name, last_name, date_of_birth, id_number, issuing_state, client_device, scanned_at
FROM scan_events WHERE business_id = $1 ORDER BY scanned_at DESC LIMIT $2`

	rows, err := s.pool.Query(ctx, query, uuid.UUID(businessID), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent scans: %w", err)
	}
	defer rows.Close()

	var out []models.IdentityScanEvent
	for rows.Next() {
		var e models.IdentityScanEvent
		var sid, bid, vid, uid uuid.UUID
		var result string
		if err := rows.Scan(&sid, &bid, &vid, &uid, &result, &e.DenialReason, &e.Age,
			&e.FirstName, &e.LastName, &e.DateOfBirth, &e.IDNumber, &e.IssuingState,
			&e.ClientDevice, &e.ScannedAt); err != nil {
			return nil, fmt.Errorf("scan scan event: %w", err)
		}
		e.ID = id.ScanID(sid)
		e.BusinessID = id.BusinessID(bid)
		e.VenueID = id.VenueID(vid)
		e.UserID = id.UserID(uid)
		e.Result = models.ScanResult(result)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) ListStaffBans(ctx context.Context, businessID id.BusinessID) ([]models.StaffBan, error) {
	const query = `
SELECT id, business_id, user_id, scope, venue_ids, status, reason, created_at, revoked_at
FROM staff_bans WHERE business_id = $1 ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, uuid.UUID(businessID))
	if err != nil {
		return nil, fmt.Errorf("list staff bans: %w", err)
	}
	defer rows.Close()

	var out []models.StaffBan
	for rows.Next() {
		var b models.StaffBan
		var bid, busID, uid uuid.UUID
		var scope, status string
		var venueIDs []byte
		if err := rows.Scan(&bid, &busID, &uid, &scope, &venueIDs, &status,
			&b.Reason, &b.CreatedAt, &b.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan staff ban: %w", err)
		}
		b.ID = id.BanID(bid)
		b.BusinessID = id.BusinessID(busID)
		b.UserID = id.UserID(uid)
		b.Scope = id.BanScope(scope)
		b.Status = id.BanStatus(status)
		if err := unmarshalIDs(venueIDs, &b.VenueIDs); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Postgres) ListPatrons(ctx context.Context, businessID id.BusinessID) ([]models.Patron, error) {
	const query = `
SELECT id, business_id, first_name, last_name, date_of_birth, id_number, issuing_state, id_digest, name_digest
FROM patrons WHERE business_id = $1`

	rows, err := s.pool.Query(ctx, query, uuid.UUID(businessID))
	if err != nil {
		return nil, fmt.Errorf("list patrons: %w", err)
	}
	defer rows.Close()

	var out []models.Patron
	for rows.Next() {
		var p models.Patron
		var pid, bid uuid.UUID
		if err := rows.Scan(&pid, &bid, &p.FirstName, &p.LastName, &p.DateOfBirth,
			&p.IDNumber, &p.IssuingState, &p.IDDigest, &p.NameDigest); err != nil {
			return nil, fmt.Errorf("scan patron: %w", err)
		}
		p.ID = id.PatronID(pid)
		p.BusinessID = id.BusinessID(bid)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) ListPatronBans(ctx context.Context, businessID id.BusinessID) ([]models.PatronBan, error) {
	const query = `
SELECT b.id, b.patron_id, b.category, b.all_locations, b.venue_ids, b.status, b.expires_at, b.created_at
FROM patron_bans b JOIN patrons p ON p.id = b.patron_id
WHERE p.business_id = $1 ORDER BY b.created_at`

	rows, err := s.pool.Query(ctx, query, uuid.UUID(businessID))
	if err != nil {
		return nil, fmt.Errorf("list patron bans: %w", err)
	}
	defer rows.Close()

	var out []models.PatronBan
	for rows.Next() {
		var b models.PatronBan
		var bid, pid uuid.UUID
		var status string
		var venueIDs []byte
		if err := rows.Scan(&bid, &pid, &b.Category, &b.AllLocations, &venueIDs,
			&status, &b.ExpiresAt, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan patron ban: %w", err)
		}
		b.ID = id.BanID(bid)
		b.PatronID = id.PatronID(pid)
		b.Status = id.BanStatus(status)
		if err := unmarshalIDs(venueIDs, &b.VenueIDs); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// RecordCountEvent is the atomic delta-and-log procedure. The snapshot upsert
// and the event insert share one transaction; the FOR UPDATE row lock
// serializes concurrent writers on the same area.
func (s *Postgres) RecordCountEvent(ctx context.Context, event models.CountEvent) (models.CountEvent, error) {
	now := requestcontext.Now(ctx)
	if event.ID == (id.EventID{}) {
		event.ID = id.NewEventID()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.CountEvent{}, fmt.Errorf("begin record event: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lazily create the row, then lock it for the delta.
	if _, err := tx.Exec(ctx,
		`INSERT INTO occupancy_snapshots (area_id, occupancy, updated_at) VALUES ($1, 0, $2)
		 ON CONFLICT (area_id) DO NOTHING`,
		uuid.UUID(event.AreaID), now); err != nil {
		if isForeignKeyViolation(err) {
			return models.CountEvent{}, sentinel.ErrNotFound
		}
		return models.CountEvent{}, fmt.Errorf("ensure snapshot: %w", err)
	}

	var occupancy int
	if err := tx.QueryRow(ctx,
		`SELECT occupancy FROM occupancy_snapshots WHERE area_id = $1 FOR UPDATE`,
		uuid.UUID(event.AreaID)).Scan(&occupancy); err != nil {
		return models.CountEvent{}, fmt.Errorf("lock snapshot: %w", err)
	}

	next := occupancy + event.Delta
	if next < 0 {
		next = 0
	}
	if _, err := tx.Exec(ctx,
		`UPDATE occupancy_snapshots SET occupancy = $2, updated_at = $3 WHERE area_id = $1`,
		uuid.UUID(event.AreaID), next, now); err != nil {
		return models.CountEvent{}, fmt.Errorf("apply delta: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO count_events
		 (id, business_id, venue_id, area_id, device_id, user_id, delta, flow_type, event_type, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(event.ID), uuid.UUID(event.BusinessID), uuid.UUID(event.VenueID),
		uuid.UUID(event.AreaID), uuid.UUID(event.DeviceID), uuid.UUID(event.UserID),
		event.Delta, string(event.FlowType), string(event.EventType), event.OccurredAt,
	); err != nil {
		return models.CountEvent{}, fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.CountEvent{}, fmt.Errorf("commit record event: %w", err)
	}
	return event, nil
}

func (s *Postgres) ResetSnapshots(ctx context.Context, businessID id.BusinessID, scope id.ResetScope, target string, by id.UserID) error {
	now := requestcontext.Now(ctx)
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	switch scope {
	case id.ResetArea:
		tag, err := tx.Exec(ctx,
			`UPDATE occupancy_snapshots SET occupancy = 0, updated_at = $2 WHERE area_id = $1`,
			target, now)
		if err != nil {
			return fmt.Errorf("reset area snapshot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return sentinel.ErrNotFound
		}
		var venueID uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT venue_id FROM areas WHERE id = $1`, target).Scan(&venueID); err != nil {
			return fmt.Errorf("resolve reset venue: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO count_events
			 (id, business_id, venue_id, area_id, device_id, user_id, delta, flow_type, event_type, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)`,
			uuid.New(), uuid.UUID(businessID), venueID, target, uuid.Nil, uuid.UUID(by),
			string(id.FlowReset), string(id.EventManualReset), now,
		); err != nil {
			return fmt.Errorf("append reset event: %w", err)
		}
	case id.ResetVenue:
		tag, err := tx.Exec(ctx,
			`UPDATE occupancy_snapshots SET occupancy = 0, updated_at = $2
			 WHERE area_id IN (SELECT id FROM areas WHERE venue_id = $1)`,
			target, now)
		if err != nil {
			return fmt.Errorf("reset venue snapshots: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return sentinel.ErrNotFound
		}
	}
	return tx.Commit(ctx)
}

func (s *Postgres) InsertScanEvent(ctx context.Context, scan models.IdentityScanEvent) error {
	const stmt = `
INSERT INTO scan_events
(id, business_id, venue_id, user_id, result, denial_reason, age,
 first_name, last_name, date_of_birth, id_number, issuing_state, client_device, scanned_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(scan.ID), uuid.UUID(scan.BusinessID), uuid.UUID(scan.VenueID), uuid.UUID(scan.UserID),
		string(scan.Result), scan.DenialReason, scan.Age,
		scan.FirstName, scan.LastName, scan.DateOfBirth, scan.IDNumber, scan.IssuingState,
		scan.ClientDevice, scan.ScannedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan event: %w", err)
	}
	return nil
}

func (s *Postgres) CreateVenue(ctx context.Context, venue models.Venue) error {
	const stmt = `
INSERT INTO venues (id, business_id, name, address, city, region, postal_code,
                    capacity, enforcement, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(venue.ID), uuid.UUID(venue.BusinessID), venue.Name, venue.Address,
		venue.City, venue.Region, venue.PostalCode, venue.Capacity,
		string(venue.Enforcement), string(venue.Status), venue.CreatedAt, venue.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create venue: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateVenue(ctx context.Context, venue models.Venue) error {
	const stmt = `
UPDATE venues SET name = $2, address = $3, city = $4, region = $5, postal_code = $6,
                  capacity = $7, enforcement = $8, status = $9, updated_at = $10
WHERE id = $1`

	tag, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(venue.ID), venue.Name, venue.Address, venue.City, venue.Region,
		venue.PostalCode, venue.Capacity, string(venue.Enforcement), string(venue.Status),
		venue.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update venue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteVenue(ctx context.Context, venueID id.VenueID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM venues WHERE id = $1`, uuid.UUID(venueID))
	if err != nil {
		return fmt.Errorf("delete venue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) CreateArea(ctx context.Context, area models.Area) error {
	const stmt = `
INSERT INTO areas (id, venue_id, name, default_capacity, counting_mode, active)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(area.ID), uuid.UUID(area.VenueID), area.Name,
		area.DefaultCapacity, area.CountingMode, area.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create area: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateArea(ctx context.Context, area models.Area) error {
	const stmt = `
UPDATE areas SET name = $2, default_capacity = $3, counting_mode = $4, active = $5 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(area.ID), area.Name, area.DefaultCapacity, area.CountingMode, area.Active)
	if err != nil {
		return fmt.Errorf("update area: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteArea(ctx context.Context, areaID id.AreaID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM areas WHERE id = $1`, uuid.UUID(areaID))
	if err != nil {
		return fmt.Errorf("delete area: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) CreateDevice(ctx context.Context, device models.Device) error {
	buttons, err := json.Marshal(device.Buttons)
	if err != nil {
		return fmt.Errorf("encode device buttons: %w", err)
	}
	const stmt = `
INSERT INTO devices (id, area_id, name, flow_mode, buttons, active)
VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(device.ID), uuid.UUID(device.AreaID), device.Name,
		string(device.FlowMode), buttons, device.Active); err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateDevice(ctx context.Context, device models.Device) error {
	buttons, err := json.Marshal(device.Buttons)
	if err != nil {
		return fmt.Errorf("encode device buttons: %w", err)
	}
	const stmt = `
UPDATE devices SET area_id = $2, name = $3, flow_mode = $4, buttons = $5, active = $6 WHERE id = $1`

	tag, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(device.ID), uuid.UUID(device.AreaID), device.Name,
		string(device.FlowMode), buttons, device.Active)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteDevice(ctx context.Context, deviceID id.DeviceID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, uuid.UUID(deviceID))
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) UpdateUser(ctx context.Context, user models.User) error {
	venueIDs, err := json.Marshal(user.VenueIDs)
	if err != nil {
		return fmt.Errorf("encode venue ids: %w", err)
	}
	areaIDs, err := json.Marshal(user.AreaIDs)
	if err != nil {
		return fmt.Errorf("encode area ids: %w", err)
	}
	deviceIDs, err := json.Marshal(user.DeviceIDs)
	if err != nil {
		return fmt.Errorf("encode device ids: %w", err)
	}
	const stmt = `
UPDATE users SET name = $2, email = $3, role = $4, venue_ids = $5, area_ids = $6,
                 device_ids = $7, active = $8
WHERE id = $1`

	tag, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(user.ID), user.Name, user.Email, string(user.Role),
		venueIDs, areaIDs, deviceIDs, user.Active)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) CreateStaffBan(ctx context.Context, ban models.StaffBan) error {
	venueIDs, err := json.Marshal(ban.VenueIDs)
	if err != nil {
		return fmt.Errorf("encode ban venue ids: %w", err)
	}
	const stmt = `
INSERT INTO staff_bans (id, business_id, user_id, scope, venue_ids, status, reason, created_at, revoked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(ban.ID), uuid.UUID(ban.BusinessID), uuid.UUID(ban.UserID),
		string(ban.Scope), venueIDs, string(ban.Status), ban.Reason,
		ban.CreatedAt, ban.RevokedAt); err != nil {
		return fmt.Errorf("create staff ban: %w", err)
	}
	return nil
}

func (s *Postgres) CreatePatron(ctx context.Context, patron models.Patron) error {
	const stmt = `
INSERT INTO patrons (id, business_id, first_name, last_name, date_of_birth,
                     id_number, issuing_state, id_digest, name_digest)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	if _, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(patron.ID), uuid.UUID(patron.BusinessID), patron.FirstName,
		patron.LastName, patron.DateOfBirth, patron.IDNumber, patron.IssuingState,
		patron.IDDigest, patron.NameDigest); err != nil {
		return fmt.Errorf("create patron: %w", err)
	}
	return nil
}

func (s *Postgres) CreatePatronBan(ctx context.Context, ban models.PatronBan) error {
	venueIDs, err := json.Marshal(ban.VenueIDs)
	if err != nil {
		return fmt.Errorf("encode ban venue ids: %w", err)
	}
	const stmt = `
INSERT INTO patron_bans (id, patron_id, category, all_locations, venue_ids, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := s.pool.Exec(ctx, stmt,
		uuid.UUID(ban.ID), uuid.UUID(ban.PatronID), ban.Category, ban.AllLocations,
		venueIDs, string(ban.Status), ban.ExpiresAt, ban.CreatedAt); err != nil {
		return fmt.Errorf("create patron ban: %w", err)
	}
	return nil
}

type countEventRow interface {
	Scan(dest ...any) error
}

func scanCountEvent(row countEventRow) (models.CountEvent, error) {
	var e models.CountEvent
	var eid, bid, vid, aid, did, uid uuid.UUID
	var flowType, eventType string
	if err := row.Scan(&eid, &bid, &vid, &aid, &did, &uid,
		&e.Delta, &flowType, &eventType, &e.OccurredAt); err != nil {
		return models.CountEvent{}, fmt.Errorf("scan count event: %w", err)
	}
	e.ID = id.EventID(eid)
	e.BusinessID = id.BusinessID(bid)
	e.VenueID = id.VenueID(vid)
	e.AreaID = id.AreaID(aid)
	e.DeviceID = id.DeviceID(did)
	e.UserID = id.UserID(uid)
	e.FlowType = id.FlowType(flowType)
	e.EventType = id.EventType(eventType)
	return e, nil
}

func unmarshalIDs(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode id list: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
