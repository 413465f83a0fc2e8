package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/xerrors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS detections (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp            TEXT    NOT NULL,
	ts_unix              INTEGER NOT NULL,
	local_date           TEXT    NOT NULL,
	local_hour           INTEGER NOT NULL,
	camera_id            TEXT    NOT NULL,
	track_id             TEXT    NOT NULL,
	label                TEXT    NOT NULL,
	confidence           REAL    NOT NULL,
	bbox_x1              REAL    NOT NULL DEFAULT 0,
	bbox_y1              REAL    NOT NULL DEFAULT 0,
	bbox_x2              REAL    NOT NULL DEFAULT 0,
	bbox_y2              REAL    NOT NULL DEFAULT 0,
	area                 REAL    NOT NULL DEFAULT 0,
	movement             TEXT,
	movement_tag         TEXT,
	direction            TEXT,
	speed_label          TEXT,
	entry_zone           TEXT,
	exit_zone            TEXT,
	duration_s           REAL    NOT NULL DEFAULT 0,
	hits                 INTEGER NOT NULL DEFAULT 0,
	thumbnail            BLOB    NOT NULL,
	verified             INTEGER NOT NULL DEFAULT 0,
	verified_label       TEXT,
	verified_description TEXT
);
CREATE INDEX IF NOT EXISTS idx_detections_ts ON detections(ts_unix);
CREATE INDEX IF NOT EXISTS idx_detections_camera ON detections(camera_id);
CREATE INDEX IF NOT EXISTS idx_detections_label ON detections(label);

CREATE TABLE IF NOT EXISTS scene_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	camera_id    TEXT    NOT NULL,
	period_start TEXT    NOT NULL,
	period_end   TEXT    NOT NULL,
	ts_unix      INTEGER NOT NULL,
	objects      INTEGER NOT NULL,
	crops_sent   INTEGER NOT NULL,
	timeline     TEXT    NOT NULL,
	provider     TEXT,
	narrative    TEXT,
	verified     INTEGER NOT NULL DEFAULT 0,
	unverified   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scene_events_ts ON scene_events(ts_unix);

CREATE TABLE IF NOT EXISTS errors (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_unix     INTEGER NOT NULL,
	processor   TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	message     TEXT,
	inner_error TEXT,
	stack_trace TEXT,
	misc        TEXT
);

CREATE TABLE IF NOT EXISTS pipeline_stats (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts_unix INTEGER NOT NULL,
	name    TEXT    NOT NULL,
	camera  TEXT    NOT NULL,
	payload TEXT    NOT NULL
);
`

var ErrNotFound = xerrors.New("record not found")

type sqliteService struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSqlite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func NewSqlite(path string) (IService, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Errorf("open %s: %w", path, err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, xerrors.Errorf("schema %s: %w", path, err)
	}

	return &sqliteService{db: db}, nil
}

func (svc *sqliteService) InsertDetection(ctx context.Context, rec DetectionRecord) (id int64, err error) {
	ctx, span := startSpan(ctx, "data.InsertDetection",
		attribute.String("camera", rec.CameraID),
		attribute.String("label", rec.Label),
	)
	defer func() { endSpan(span, err) }()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	local := rec.Timestamp.Local()
	thumb := rec.Thumbnail
	if thumb == nil {
		thumb = []byte{}
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	res, err := svc.db.ExecContext(ctx,
		`INSERT INTO detections (
			timestamp, ts_unix, local_date, local_hour, camera_id, track_id, label,
			confidence, bbox_x1, bbox_y1, bbox_x2, bbox_y2, area,
			movement, movement_tag, direction, speed_label, entry_zone, exit_zone,
			duration_s, hits, thumbnail
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().Format(time.RFC3339Nano), rec.Timestamp.Unix(),
		local.Format(time.DateOnly), local.Hour(),
		rec.CameraID, rec.TrackID, rec.Label, rec.Confidence,
		rec.BBox.X1, rec.BBox.Y1, rec.BBox.X2, rec.BBox.Y2, rec.Area,
		rec.Movement, rec.MovementTag, rec.Direction, rec.SpeedLabel, rec.EntryZone, rec.ExitZone,
		rec.DurationSecs, rec.Hits, thumb,
	)
	if err != nil {
		return 0, xerrors.Errorf("insert detection: %w", err)
	}

	return res.LastInsertId()
}

func (svc *sqliteService) UpdateVerificationResult(ctx context.Context, id int64, label, description string) (err error) {
	ctx, span := startSpan(ctx, "data.UpdateVerificationResult", attribute.Int64("id", id))
	defer func() { endSpan(span, err) }()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	res, err := svc.db.ExecContext(ctx,
		`UPDATE detections SET verified = 1, verified_label = ?, verified_description = ? WHERE id = ?`,
		label, description, id,
	)
	if err != nil {
		return xerrors.Errorf("update detection %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return xerrors.Errorf("detection %d: %w", id, ErrNotFound)
	}
	return nil
}

func where(cameraID, label string, since time.Time) (string, []any) {
	var conds []string
	var args []any
	if cameraID != "" {
		conds = append(conds, "camera_id = ?")
		args = append(args, cameraID)
	}
	if label != "" {
		conds = append(conds, "label = ?")
		args = append(args, label)
	}
	if !since.IsZero() {
		conds = append(conds, "ts_unix >= ?")
		args = append(args, since.Unix())
	}
	if len(conds) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(conds, " AND "), args
}

func (svc *sqliteService) QueryDetections(ctx context.Context, q Query) (recs []DetectionRecord, err error) {
	ctx, span := startSpan(ctx, "data.QueryDetections", attribute.String("camera", q.CameraID))
	defer func() { endSpan(span, err) }()

	cond, args := where(q.CameraID, q.Label, q.Since)
	thumb := "x''"
	if q.IncludeThumbnails {
		thumb = "thumbnail"
	}
	stmt := `SELECT id, timestamp, camera_id, track_id, label, confidence,
		bbox_x1, bbox_y1, bbox_x2, bbox_y2, area,
		COALESCE(movement, ''), COALESCE(movement_tag, ''), COALESCE(direction, ''), COALESCE(speed_label, ''),
		COALESCE(entry_zone, ''), COALESCE(exit_zone, ''), duration_s, hits, ` + thumb + `,
		verified, COALESCE(verified_label, ''), COALESCE(verified_description, '')
		FROM detections WHERE ` + cond + ` ORDER BY id DESC`
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	rows, err := svc.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, xerrors.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r DetectionRecord
		var ts string
		if err := rows.Scan(&r.ID, &ts, &r.CameraID, &r.TrackID, &r.Label, &r.Confidence,
			&r.BBox.X1, &r.BBox.Y1, &r.BBox.X2, &r.BBox.Y2, &r.Area,
			&r.Movement, &r.MovementTag, &r.Direction, &r.SpeedLabel, &r.EntryZone, &r.ExitZone,
			&r.DurationSecs, &r.Hits, &r.Thumbnail,
			&r.Verified, &r.VerifiedLabel, &r.VerifiedDescription); err != nil {
			return nil, xerrors.Errorf("scan detection: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if len(r.Thumbnail) == 0 {
			r.Thumbnail = nil
		}
		recs = append(recs, r)
	}

	return recs, rows.Err()
}

func (svc *sqliteService) Stats(ctx context.Context, cameraID string, since time.Time) (st DetectionStats, err error) {
	ctx, span := startSpan(ctx, "data.Stats", attribute.String("camera", cameraID))
	defer func() { endSpan(span, err) }()

	st = DetectionStats{ByClass: map[string]int64{}, ByHour: map[string]int64{}}
	cond, args := where(cameraID, "", since)

	svc.mu.Lock()
	defer svc.mu.Unlock()

	err = svc.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(verified), 0) FROM detections WHERE `+cond, args...,
	).Scan(&st.Total, &st.Verified)
	if err != nil {
		return st, xerrors.Errorf("count detections: %w", err)
	}

	if err = svc.group(ctx, `SELECT label, COUNT(*) FROM detections WHERE `+cond+` GROUP BY label`, args, func(k string, n int64) {
		st.ByClass[k] = n
	}); err != nil {
		return st, err
	}

	if err = svc.group(ctx, `SELECT printf('%02d', local_hour), COUNT(*) FROM detections WHERE `+cond+` GROUP BY local_hour`, args, func(k string, n int64) {
		st.ByHour[k] = n
	}); err != nil {
		return st, err
	}

	uargs := append(append([]any{}, args...), uniqueLabels[0], uniqueLabels[1], uniqueLabels[2])
	err = svc.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT (ts_unix / 30) || '_' || label) FROM detections WHERE `+cond+` AND label IN (?, ?, ?)`,
		uargs...,
	).Scan(&st.UniqueEvents30s)
	if err != nil {
		return st, xerrors.Errorf("unique events: %w", err)
	}

	st.ReductionPct = reduction(st.Total, st.Verified)
	return st, nil
}

func (svc *sqliteService) InsertSceneEvent(ctx context.Context, ev SceneEvent) (id int64, err error) {
	ctx, span := startSpan(ctx, "data.InsertSceneEvent",
		attribute.String("camera", ev.CameraID),
		attribute.Int("objects", ev.Objects),
	)
	defer func() { endSpan(span, err) }()

	svc.mu.Lock()
	defer svc.mu.Unlock()

	res, err := svc.db.ExecContext(ctx,
		`INSERT INTO scene_events (
			camera_id, period_start, period_end, ts_unix, objects, crops_sent,
			timeline, provider, narrative, verified, unverified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.CameraID,
		ev.PeriodStart.UTC().Format(time.RFC3339Nano), ev.PeriodEnd.UTC().Format(time.RFC3339Nano),
		ev.PeriodEnd.Unix(), ev.Objects, ev.CropsSent,
		ev.Timeline, ev.Provider, ev.Narrative, ev.Verified, ev.Unverified,
	)
	if err != nil {
		return 0, xerrors.Errorf("insert scene event: %w", err)
	}

	return res.LastInsertId()
}

func (svc *sqliteService) QueryScenes(ctx context.Context, cameraID string, since time.Time, limit int) (evs []SceneEvent, err error) {
	ctx, span := startSpan(ctx, "data.QueryScenes", attribute.String("camera", cameraID))
	defer func() { endSpan(span, err) }()

	cond, args := where(cameraID, "", since)
	stmt := `SELECT id, camera_id, period_start, period_end, objects, crops_sent, timeline,
		COALESCE(provider, ''), COALESCE(narrative, ''), verified, unverified
		FROM scene_events WHERE ` + cond + ` ORDER BY id DESC`
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	rows, err := svc.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, xerrors.Errorf("query scene events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev SceneEvent
		var start, end string
		if err := rows.Scan(&ev.ID, &ev.CameraID, &start, &end, &ev.Objects, &ev.CropsSent, &ev.Timeline,
			&ev.Provider, &ev.Narrative, &ev.Verified, &ev.Unverified); err != nil {
			return nil, xerrors.Errorf("scan scene event: %w", err)
		}
		ev.PeriodStart, _ = time.Parse(time.RFC3339Nano, start)
		ev.PeriodEnd, _ = time.Parse(time.RFC3339Nano, end)
		evs = append(evs, ev)
	}

	return evs, rows.Err()
}

func (svc *sqliteService) group(ctx context.Context, stmt string, args []any, put func(string, int64)) error {
	rows, err := svc.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return xerrors.Errorf("group query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return xerrors.Errorf("group scan: %w", err)
		}
		put(k, n)
	}
	return rows.Err()
}

func (svc *sqliteService) NewError(err any) error {
	row := newErrorRow(err)
	misc, _ := json.Marshal(row.Misc)

	svc.mu.Lock()
	defer svc.mu.Unlock()

	_, dbErr := svc.db.Exec(
		`INSERT INTO errors (ts_unix, processor, kind, message, inner_error, stack_trace, misc)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.Timestamp, row.Processor, row.Kind, row.Message, row.Inner, row.StackTrace, string(misc),
	)
	return dbErr
}

func (svc *sqliteService) NewStats(stats any) error {
	row, err := newStatsRow(stats)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(row.Payload)
	if err != nil {
		return err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	_, err = svc.db.Exec(
		`INSERT INTO pipeline_stats (ts_unix, name, camera, payload) VALUES (?, ?, ?, ?)`,
		row.Timestamp, row.Name, row.Camera, string(payload),
	)
	return err
}

func (svc *sqliteService) Close() error {
	return svc.db.Close()
}
