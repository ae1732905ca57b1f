package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/carpool/internal/models"
)

// PostgresStore implements Store over database/sql with lib/pq.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.RideOffer) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = models.RideActive
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides(id, driver_id, driver_name,
			origin_lat, origin_lng, origin_area,
			dest_lat, dest_lng, dest_area,
			seats, price, "when", status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.DriverID, r.DriverName,
		r.Origin.Lat, r.Origin.Lng, r.Origin.Area,
		r.Destination.Lat, r.Destination.Lng, r.Destination.Area,
		r.Seats, nullFloat(r.Price), r.When, r.Status, r.CreatedAt, r.UpdatedAt)
	return err
}

const rideColumns = `id, driver_id, driver_name,
	origin_lat, origin_lng, origin_area,
	dest_lat, dest_lng, dest_area,
	seats, price, "when", status, created_at, updated_at`

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.RideOffer, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	r, err := scanRide(row)
	if err != nil {
		return nil, err
	}
	reqs, err := p.requestsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Requests = reqs
	return r, nil
}

func (p *PostgresStore) ListOpenRides(ctx context.Context, excludeDriver string, now time.Time) ([]models.RideOffer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE driver_id <> $1 AND status = $2 AND "when" >= $3
		ORDER BY "when" ASC`,
		excludeDriver, models.RideActive, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRides(rows)
}

func (p *PostgresStore) ListRidesByDriver(ctx context.Context, driverID string) ([]models.RideOffer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE driver_id = $1 ORDER BY "when" ASC`, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rides, err := collectRides(rows)
	if err != nil {
		return nil, err
	}
	for i := range rides {
		reqs, err := p.requestsFor(ctx, rides[i].ID)
		if err != nil {
			return nil, err
		}
		rides[i].Requests = reqs
	}
	return rides, nil
}

func (p *PostgresStore) FindCandidates(ctx context.Context, q CandidateQuery) ([]models.RideOffer, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE status = $1 AND seats >= $2 AND "when" >= $3 AND driver_id <> $4
		ORDER BY created_at ASC`,
		models.RideActive, q.Seats, q.Now, q.ExcludeDriver)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRides(rows)
}

func (p *PostgresStore) DeleteRide(ctx context.Context, id, driverID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM rides WHERE id=$1 AND driver_id=$2`, id, driverID)
	if err != nil {
		return err
	}
	return ownedRowResult(ctx, p.db, res, id)
}

func (p *PostgresStore) EndRide(ctx context.Context, id, driverID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE rides SET status=$1, updated_at=$2 WHERE id=$3 AND driver_id=$4`,
		models.RideEnded, time.Now(), id, driverID)
	if err != nil {
		return err
	}
	return ownedRowResult(ctx, p.db, res, id)
}

func (p *PostgresStore) AddRequest(ctx context.Context, rideID string, req models.RideRequest) error {
	ride, err := p.GetRide(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.DriverID == req.UserID {
		return ErrOwnRide
	}
	if req.ID == "" {
		req.ID = NewID()
	}
	if req.Status == "" {
		req.Status = models.RequestPending
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO ride_requests(id, ride_id, user_id, status, requested_at)
		VALUES ($1,$2,$3,$4,$5)`,
		req.ID, rideID, req.UserID, req.Status, req.RequestedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateRequest
	}
	return err
}

func (p *PostgresStore) UpdateRequestStatus(ctx context.Context, rideID, driverID, requestID, status string) (*models.RideRequest, error) {
	ride, err := p.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driverID {
		return nil, ErrNotOwner
	}
	row := p.db.QueryRowContext(ctx, `
		UPDATE ride_requests SET status=$1
		WHERE id=$2 AND ride_id=$3 AND status=$4
		RETURNING id, user_id, status, requested_at`,
		status, requestID, rideID, models.RequestPending)

	var req models.RideRequest
	if err := row.Scan(&req.ID, &req.UserID, &req.Status, &req.RequestedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either unknown or already settled; disambiguate.
			var existing string
			err2 := p.db.QueryRowContext(ctx,
				`SELECT status FROM ride_requests WHERE id=$1 AND ride_id=$2`,
				requestID, rideID).Scan(&existing)
			if errors.Is(err2, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			if err2 != nil {
				return nil, err2
			}
			return nil, ErrRequestSettled
		}
		return nil, err
	}
	return &req, nil
}

// Emails are normalized to lower case on write and on lookup; the bcrypt
// hash must be stored verbatim or verification breaks.
const insertUserSQL = `
	INSERT INTO users(id, name, email, password_hash, role, created_at)
	VALUES ($1,$2,lower($3),$4,$5,$6)`

const selectUserByEmailSQL = `
	SELECT id, name, email, password_hash, role, created_at
	FROM users WHERE email = lower($1)`

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = NewID()
	}
	u.CreatedAt = time.Now()
	_, err := p.db.ExecContext(ctx, insertUserSQL,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (p *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := p.db.QueryRowContext(ctx, selectUserByEmailSQL, email)
	return scanUser(row)
}

func (p *PostgresStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (p *PostgresStore) requestsFor(ctx context.Context, rideID string) ([]models.RideRequest, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT rr.id, rr.user_id, COALESCE(u.name, ''), rr.status, rr.requested_at
		FROM ride_requests rr
		LEFT JOIN users u ON u.id = rr.user_id
		WHERE rr.ride_id = $1
		ORDER BY rr.requested_at ASC`, rideID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.RideRequest
	for rows.Next() {
		var r models.RideRequest
		if err := rows.Scan(&r.ID, &r.UserID, &r.UserName, &r.Status, &r.RequestedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.RideOffer, error) {
	var r models.RideOffer
	var price sql.NullFloat64
	err := row.Scan(&r.ID, &r.DriverID, &r.DriverName,
		&r.Origin.Lat, &r.Origin.Lng, &r.Origin.Area,
		&r.Destination.Lat, &r.Destination.Lng, &r.Destination.Area,
		&r.Seats, &price, &r.When, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if price.Valid {
		r.Price = &price.Float64
	}
	return &r, nil
}

func collectRides(rows *sql.Rows) ([]models.RideOffer, error) {
	out := make([]models.RideOffer, 0)
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func ownedRowResult(ctx context.Context, db *sql.DB, res sql.Result, rideID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id=$1)`, rideID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrNotOwner
	}
	return ErrNotFound
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*MemoryStore)(nil)

// Migrate applies a single SQL file. The server runs it on demand when
// MIGRATE=true, mirroring a minimal deploy workflow.
func (p *PostgresStore) Migrate(ctx context.Context, schema string) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}
