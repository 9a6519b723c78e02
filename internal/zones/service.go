package zones

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/WispAyr/baywatch/internal/apperr"
	"github.com/WispAyr/baywatch/internal/database"
	"github.com/WispAyr/baywatch/internal/imaging"
)

// Service provides CRUD access to zones and background frames backed by
// the row store.
type Service struct {
	db     *database.DB
	logger *slog.Logger
}

// NewService constructs a zone store over an open database.
func NewService(db *database.DB) *Service {
	return &Service{
		db:     db,
		logger: slog.Default().With("component", "zone_store"),
	}
}

func validatePolygon(p imaging.Polygon) error {
	if len(p) < 3 {
		return fmt.Errorf("polygon must have at least 3 points: %w", apperr.ErrInvalidZone)
	}
	for _, pt := range p {
		if pt.X != pt.X || pt.Y != pt.Y { // NaN check without math import
			return fmt.Errorf("polygon vertex is not numeric: %w", apperr.ErrInvalidZone)
		}
	}
	return nil
}

// Create validates and persists a new zone, assigning defaults for any
// unset threshold fields.
func (s *Service) Create(ctx context.Context, in Input) (*Zone, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("zone name is required: %w", apperr.ErrInvalidZone)
	}
	if err := validatePolygon(in.Polygon); err != nil {
		return nil, err
	}

	z := &Zone{
		ID:             uuid.New().String(),
		Name:           in.Name,
		CameraID:       in.CameraID,
		Polygon:        in.Polygon,
		MinArea:        DefaultMinArea,
		MaxArea:        DefaultMaxArea,
		AlarmThreshold: DefaultAlarmThreshold,
	}
	if in.MinArea != nil {
		z.MinArea = *in.MinArea
	}
	if in.MaxArea != nil {
		z.MaxArea = *in.MaxArea
	}
	if in.AlarmThreshold != nil {
		z.AlarmThreshold = *in.AlarmThreshold
	}

	now := time.Now()
	z.CreatedAt = now
	z.UpdatedAt = now

	polygonJSON, err := json.Marshal(z.Polygon)
	if err != nil {
		return nil, fmt.Errorf("marshal polygon: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO zones (id, name, camera_id, polygon, min_area, max_area, alarm_threshold, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, z.ID, z.Name, nullable(z.CameraID), polygonJSON, z.MinArea, z.MaxArea, z.AlarmThreshold, z.CreatedAt.Unix(), z.UpdatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert zone: %w: %w", apperr.ErrPersistence, err)
	}

	s.logger.Info("zone created", "id", z.ID, "name", z.Name, "camera_id", z.CameraID)
	return z, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanZone(scan func(dest ...any) error) (*Zone, error) {
	z := &Zone{}
	var cameraID sql.NullString
	var polygonJSON string
	var createdAt, updatedAt int64

	if err := scan(&z.ID, &z.Name, &cameraID, &polygonJSON, &z.MinArea, &z.MaxArea, &z.AlarmThreshold, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if cameraID.Valid {
		z.CameraID = cameraID.String
	}
	if err := json.Unmarshal([]byte(polygonJSON), &z.Polygon); err != nil {
		return nil, fmt.Errorf("unmarshal polygon: %w", err)
	}
	z.CreatedAt = time.Unix(createdAt, 0)
	z.UpdatedAt = time.Unix(updatedAt, 0)

	return z, nil
}

const zoneColumns = `id, name, camera_id, polygon, min_area, max_area, alarm_threshold, created_at, updated_at`

// Get retrieves a single zone by id.
func (s *Service) Get(ctx context.Context, id string) (*Zone, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+zoneColumns+" FROM zones WHERE id = ?", id)
	z, err := scanZone(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("zone %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return z, nil
}

// List returns all zones, newest first. If cameraID is non-empty, it is
// further restricted to zones pinned to that camera.
func (s *Service) List(ctx context.Context, cameraID string) ([]*Zone, error) {
	query := "SELECT " + zoneColumns + " FROM zones"
	args := []any{}
	if cameraID != "" {
		query += " WHERE camera_id = ?"
		args = append(args, cameraID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := []*Zone{}
	for rows.Next() {
		z, err := scanZone(rows.Scan)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// ZonesForCamera returns zones pinned to cameraID plus zones with no
// camera assignment (which apply to every camera). Used wherever a
// wildcard zone should still be considered: the frame renderer (§4.7)
// and /analyze (no camera-exclusivity requirement in its spec section).
func (s *Service) ZonesForCamera(ctx context.Context, cameraID string) ([]*Zone, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+zoneColumns+` FROM zones
		WHERE camera_id = ? OR camera_id IS NULL OR camera_id = ''
		ORDER BY created_at DESC`, cameraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := []*Zone{}
	for rows.Next() {
		z, err := scanZone(rows.Scan)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// ZonesForCameraExact returns only zones whose camera_id exactly equals
// cameraID, excluding wildcard (unassigned) zones. The round-robin
// scheduler uses this: §4.6 step 3 loads "all zones whose camera_id ==
// camera (not the wildcard)" for the camera currently being ticked.
func (s *Service) ZonesForCameraExact(ctx context.Context, cameraID string) ([]*Zone, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+zoneColumns+` FROM zones
		WHERE camera_id = ?
		ORDER BY created_at DESC`, cameraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	zones := []*Zone{}
	for rows.Next() {
		z, err := scanZone(rows.Scan)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// Update applies a partial patch to an existing zone.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Zone, error) {
	z, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		z.Name = *patch.Name
	}
	if patch.CameraID != nil {
		z.CameraID = *patch.CameraID
	}
	if patch.Polygon != nil {
		if err := validatePolygon(patch.Polygon); err != nil {
			return nil, err
		}
		z.Polygon = patch.Polygon
	}
	if patch.MinArea != nil {
		z.MinArea = *patch.MinArea
	}
	if patch.MaxArea != nil {
		z.MaxArea = *patch.MaxArea
	}
	if patch.AlarmThreshold != nil {
		z.AlarmThreshold = *patch.AlarmThreshold
	}
	z.UpdatedAt = time.Now()

	polygonJSON, err := json.Marshal(z.Polygon)
	if err != nil {
		return nil, fmt.Errorf("marshal polygon: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE zones SET name = ?, camera_id = ?, polygon = ?, min_area = ?, max_area = ?, alarm_threshold = ?, updated_at = ?
		WHERE id = ?
	`, z.Name, nullable(z.CameraID), polygonJSON, z.MinArea, z.MaxArea, z.AlarmThreshold, z.UpdatedAt.Unix(), z.ID)
	if err != nil {
		return nil, fmt.Errorf("update zone: %w: %w", apperr.ErrPersistence, err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("zone %s: %w", id, apperr.ErrNotFound)
	}

	s.logger.Info("zone updated", "id", z.ID)
	return z, nil
}

// Delete removes a zone and cascades to its event rows, all within one
// transaction so the deletion is atomic. It reports whether a zone was
// actually removed.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	var removed bool

	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE zone_id = ?", id); err != nil {
			return fmt.Errorf("cascade delete events: %w", err)
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM zones WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete zone: %w", err)
		}

		n, _ := result.RowsAffected()
		removed = n > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", apperr.ErrPersistence, err)
	}

	if removed {
		s.logger.Info("zone deleted", "id", id)
	}
	return removed, nil
}

// SaveBackground upserts the reference background for a camera.
func (s *Service) SaveBackground(ctx context.Context, camID string, plane *imaging.Plane) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO background_frames (camera_id, blob, width, height, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(camera_id) DO UPDATE SET blob = excluded.blob, width = excluded.width, height = excluded.height, updated_at = excluded.updated_at
	`, camID, plane.Pix, plane.W, plane.H, now.Unix())
	if err != nil {
		return fmt.Errorf("save background: %w: %w", apperr.ErrPersistence, err)
	}
	return nil
}

// GetBackground loads the stored background plane for a camera, if any.
func (s *Service) GetBackground(ctx context.Context, camID string) (*imaging.Plane, error) {
	var blob []byte
	var w, h int
	err := s.db.QueryRowContext(ctx, "SELECT blob, width, height FROM background_frames WHERE camera_id = ?", camID).
		Scan(&blob, &w, &h)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("background for %s: %w", camID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &imaging.Plane{Pix: blob, W: w, H: h}, nil
}
