// Package catalog manages the room indexes kept under one data directory.
//
// Each room gets its own durable index in a directory named by a generated
// id, since room ids are not safe file names. A SQLite registry maps room
// ids to directories, and at most MaxOpenRooms indexes stay open at once.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/pkg/roomindex"
)

// Default catalog configuration values.
const (
	DefaultMaxOpenRooms      = 16
	DefaultSearchParallelism = 4
)

const (
	registryFile = "catalog.db"
	roomsDir     = "rooms"
)

// Config configures a Catalog.
type Config struct {
	// MaxOpenRooms bounds how many room indexes stay open (default: 16).
	MaxOpenRooms int

	// SearchParallelism bounds how many rooms SearchRooms queries at once
	// (default: 4).
	SearchParallelism int

	// IndexOptions are applied to every room index opened.
	IndexOptions []roomindex.Option

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Room is a registered room.
type Room struct {
	ID           string
	Dir          string
	CreatedAt    time.Time
	LastOpenedAt time.Time
	Open         bool
}

// RoomHit is a search result from one of several rooms.
type RoomHit struct {
	RoomID  string
	EventID string
	Score   float64
}

type handle struct {
	roomID  string
	index   *roomindex.RoomIndex
	leases  int
	evicted bool
}

// Catalog is safe for concurrent use.
type Catalog struct {
	dataDir string
	db      *sql.DB
	config  Config
	logger  *slog.Logger

	mu      sync.Mutex
	handles *lru.Cache[string, *handle]
	closed  bool

	// lingering holds evicted rooms that are still leased or whose close
	// failed. Close retries the unleased ones.
	lingering map[string]*handle
}

// Open opens the catalog in dataDir, creating the directory and the
// registry when missing.
func Open(dataDir string, cfg Config) (*Catalog, error) {
	if cfg.MaxOpenRooms <= 0 {
		cfg.MaxOpenRooms = DefaultMaxOpenRooms
	}
	if cfg.SearchParallelism <= 0 {
		cfg.SearchParallelism = DefaultSearchParallelism
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Join(dataDir, roomsDir), 0o755); err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "create data directory %s", dataDir)
	}

	db, err := openRegistry(filepath.Join(dataDir, registryFile))
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		dataDir:   dataDir,
		db:        db,
		config:    cfg,
		logger:    logger,
		lingering: make(map[string]*handle),
	}
	c.handles, err = lru.NewWithEvict[string, *handle](cfg.MaxOpenRooms, c.onEvict)
	if err != nil {
		_ = db.Close()
		return nil, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "create room cache")
	}

	logger.Info("catalog_opened",
		slog.String("data_dir", dataDir),
		slog.Int("max_open_rooms", cfg.MaxOpenRooms))
	return c, nil
}

func openRegistry(path string) (*sql.DB, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "open registry %s", path)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "set pragma %q", pragma)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "initialize registry schema")
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- dir is a generated id; room ids are not safe file names
	CREATE TABLE IF NOT EXISTS rooms (
		room_id TEXT PRIMARY KEY,
		dir TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL,
		last_opened_at INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := db.Exec(schema)
	return err
}

// Room opens the room's index, registering the room first if it is new.
// The index stays open until release is called, even if the room is
// evicted from the open set meanwhile. release is safe to call once.
func (c *Catalog) Room(ctx context.Context, roomID string) (idx *roomindex.RoomIndex, release func(), err error) {
	return c.lease(ctx, roomID, true)
}

func (c *Catalog) lease(ctx context.Context, roomID string, create bool) (*roomindex.RoomIndex, func(), error) {
	if roomID == "" {
		return nil, nil, rserrors.New(rserrors.ErrCodeCatalogFailure, "room id must not be empty", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, nil, catalogClosed()
	}

	h, ok := c.handles.Get(roomID)
	if !ok {
		h, ok = c.lingering[roomID]
		if ok {
			delete(c.lingering, roomID)
			h.evicted = false
			c.handles.Add(roomID, h)
		}
	}
	if !ok {
		var err error
		h, err = c.openLocked(ctx, roomID, create)
		if err != nil {
			return nil, nil, err
		}
	}

	h.leases++
	var once sync.Once
	release := func() {
		once.Do(func() { c.release(h) })
	}
	return h.index, release, nil
}

func (c *Catalog) openLocked(ctx context.Context, roomID string, create bool) (*handle, error) {
	dir, err := c.lookupDir(ctx, roomID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	if dir == "" {
		if !create {
			return nil, rserrors.Newf(rserrors.ErrCodeCatalogFailure, "unknown room %q", roomID).
				WithDetail("room_id", roomID)
		}
		dir = uuid.NewString()
		_, err = c.db.ExecContext(ctx, `
			INSERT INTO rooms (room_id, dir, created_at, last_opened_at)
			VALUES (?, ?, ?, ?)
		`, roomID, dir, now, now)
		if err != nil {
			return nil, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "register room %q", roomID)
		}
		c.logger.Info("catalog_room_registered",
			slog.String("room_id", roomID),
			slog.String("dir", dir))
	} else {
		_, err = c.db.ExecContext(ctx, `UPDATE rooms SET last_opened_at = ? WHERE room_id = ?`, now, roomID)
		if err != nil {
			return nil, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "touch room %q", roomID)
		}
	}

	idx, err := roomindex.OpenOrCreate(c.roomPath(dir), c.roomOptions()...)
	if err != nil {
		return nil, err
	}

	h := &handle{roomID: roomID, index: idx}
	c.handles.Add(roomID, h)
	return h, nil
}

func (c *Catalog) lookupDir(ctx context.Context, roomID string) (string, error) {
	var dir string
	err := c.db.QueryRowContext(ctx, `SELECT dir FROM rooms WHERE room_id = ?`, roomID).Scan(&dir)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "look up room %q", roomID)
	}
	return dir, nil
}

func (c *Catalog) roomOptions() []roomindex.Option {
	opts := make([]roomindex.Option, 0, len(c.config.IndexOptions)+1)
	opts = append(opts, roomindex.WithLogger(c.logger))
	return append(opts, c.config.IndexOptions...)
}

func (c *Catalog) roomPath(dir string) string {
	return filepath.Join(c.dataDir, roomsDir, dir)
}

func (c *Catalog) release(h *handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h.leases--
	if h.leases == 0 && h.evicted {
		c.closeEvicted(h)
	}
}

// onEvict runs with c.mu held: every cache mutation happens under it.
func (c *Catalog) onEvict(roomID string, h *handle) {
	h.evicted = true
	if c.closed {
		// Close takes over every handle itself.
		return
	}
	if h.leases > 0 {
		c.lingering[roomID] = h
		c.logger.Debug("catalog_room_close_deferred",
			slog.String("room_id", roomID),
			slog.Int("leases", h.leases))
		return
	}
	c.closeEvicted(h)
}

// closeEvicted closes an evicted, unleased room. A room that fails to close
// keeps its staged events and its lock, so it stays in lingering until
// Close retries it and reports the error.
func (c *Catalog) closeEvicted(h *handle) {
	if err := c.closeHandle(context.Background(), h); err != nil {
		c.lingering[h.roomID] = h
		c.logger.Warn("catalog_room_close_failed",
			append([]any{slog.String("room_id", h.roomID)}, rserrors.LogAttrs(err)...)...)
		return
	}
	delete(c.lingering, h.roomID)
}

func (c *Catalog) closeHandle(ctx context.Context, h *handle) error {
	return h.index.Close(ctx)
}

// Rooms lists the registered rooms ordered by id.
func (c *Catalog) Rooms(ctx context.Context) ([]Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, catalogClosed()
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT room_id, dir, created_at, last_opened_at
		FROM rooms
		ORDER BY room_id
	`)
	if err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "list rooms")
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		var created, opened int64
		if err := rows.Scan(&r.ID, &r.Dir, &created, &opened); err != nil {
			return nil, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "scan room")
		}
		r.CreatedAt = time.UnixMilli(created)
		r.LastOpenedAt = time.UnixMilli(opened)
		_, lingering := c.lingering[r.ID]
		r.Open = c.handles.Contains(r.ID) || lingering
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "list rooms")
	}
	return rooms, nil
}

// SearchRooms runs q against every listed room and merges the hits by
// descending score, ties broken by room id and then event id. Rooms must
// already be registered. The first failing room fails the whole search.
func (c *Catalog) SearchRooms(ctx context.Context, roomIDs []string, q string, limit int) ([]RoomHit, error) {
	if limit < 0 {
		return nil, rserrors.Newf(rserrors.ErrCodeInvalidQuery, "limit must not be negative, got %d", limit)
	}
	if limit == 0 {
		return []RoomHit{}, nil
	}

	start := time.Now()
	perRoom := make([][]RoomHit, len(roomIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.SearchParallelism)

	for i, roomID := range roomIDs {
		g.Go(func() error {
			idx, release, err := c.lease(gctx, roomID, false)
			if err != nil {
				return err
			}
			defer release()

			hits, err := idx.SearchHits(gctx, q, limit)
			if err != nil {
				return err
			}
			out := make([]RoomHit, 0, len(hits))
			for _, h := range hits {
				out = append(out, RoomHit{RoomID: roomID, EventID: h.ID, Score: h.Score})
			}
			perRoom[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]RoomHit, 0)
	for _, hits := range perRoom {
		merged = append(merged, hits...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.RoomID != b.RoomID {
			return a.RoomID < b.RoomID
		}
		return a.EventID < b.EventID
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}

	c.logger.Debug("catalog_search_complete",
		slog.Int("rooms", len(roomIDs)),
		slog.Int("results", len(merged)),
		slog.Duration("duration", time.Since(start)))
	return merged, nil
}

// Drop closes the room's index, deletes it from disk and unregisters the
// room. A leased room cannot be dropped, and a room whose index fails to
// close is left in place.
func (c *Catalog) Drop(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return catalogClosed()
	}

	// Only registered rooms have handles.
	h, ok := c.handles.Peek(roomID)
	if !ok {
		h, ok = c.lingering[roomID]
	}
	if ok {
		if h.leases > 0 {
			return roomInUse(roomID)
		}
		if err := c.closeHandle(ctx, h); err != nil {
			return rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "close room %q", roomID).
				WithDetail("room_id", roomID)
		}
		delete(c.lingering, roomID)
		// The index is closed, so the eviction callback's close is a no-op.
		c.handles.Remove(roomID)
	}

	dir, err := c.lookupDir(ctx, roomID)
	if err != nil {
		return err
	}
	if dir == "" {
		return rserrors.Newf(rserrors.ErrCodeCatalogFailure, "unknown room %q", roomID).
			WithDetail("room_id", roomID)
	}

	path := c.roomPath(dir)
	if err := os.RemoveAll(path); err != nil {
		return rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "remove room directory %s", path)
	}
	_ = os.Remove(path + ".lock")

	if _, err := c.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = ?`, roomID); err != nil {
		return rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "unregister room %q", roomID)
	}

	c.logger.Info("catalog_room_dropped", slog.String("room_id", roomID))
	return nil
}

// Close closes every unleased room and the registry, returning every
// failure. Leased rooms close when released. Rooms that fail to close stay
// open with their staged events, and calling Close again retries them.
func (c *Catalog) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		for _, h := range c.handles.Values() {
			c.lingering[h.roomID] = h
		}
		c.handles.Purge()
	}

	var errs []error
	for roomID, h := range c.lingering {
		if h.leases > 0 {
			continue
		}
		if err := c.closeHandle(ctx, h); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(c.lingering, roomID)
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, rserrors.Wrapf(rserrors.ErrCodeCatalogFailure, err, "close registry"))
		} else {
			c.logger.InfoContext(ctx, "catalog_closed", slog.String("data_dir", c.dataDir))
		}
		c.db = nil
	}

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

func roomInUse(roomID string) *rserrors.IndexError {
	return rserrors.Newf(rserrors.ErrCodeCatalogFailure, "room %q is in use", roomID).
		WithDetail("room_id", roomID).
		WithSuggestion("release the room before dropping it")
}

func catalogClosed() *rserrors.IndexError {
	return rserrors.New(rserrors.ErrCodeCatalogFailure, "catalog is closed", nil)
}
