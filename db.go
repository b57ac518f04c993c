package overlay

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/bodgit/overlay/raster"
	_ "github.com/mattn/go-sqlite3"
)

const settingsKey = "settings"

var (
	errNoImage  = errors.New("overlay: no image data")
	errNotFound = errors.New("overlay: not found")
)

// Store persists overlays, their images and the settings in a SQLite
// database. It implements Provider.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the database in file.
func NewStore(file string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS image (id INTEGER PRIMARY KEY NOT NULL, sha1 TEXT NOT NULL UNIQUE, data BLOB NOT NULL)"); err != nil {
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS overlay (id TEXT PRIMARY KEY NOT NULL, position INTEGER NOT NULL, name TEXT NOT NULL UNIQUE, enabled INTEGER NOT NULL, image_url TEXT, image_id INTEGER, pixel_url TEXT, offset_x INTEGER NOT NULL, offset_y INTEGER NOT NULL, opacity REAL NOT NULL, color_filter TEXT, FOREIGN KEY(image_id) REFERENCES image(id))"); err != nil {
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS setting (key TEXT PRIMARY KEY NOT NULL, value TEXT NOT NULL)"); err != nil {
		return nil, err
	}

	return &Store{
		db: db,
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func newID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<32))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + strconv.FormatInt(n.Int64(), 36), nil
}

func (s *Store) addImage(img *Image) (int64, error) {
	var id int64
	switch err := s.db.QueryRow("SELECT id FROM image WHERE sha1 = ?", img.ID).Scan(&id); err {
	case sql.ErrNoRows:
		result, err := s.db.Exec("INSERT INTO image (sha1, data) VALUES (?, ?)", img.ID, img.Data)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	case nil:
		return id, nil
	default:
		return 0, err
	}
}

func (s *Store) pruneImages() error {
	_, err := s.db.Exec("DELETE FROM image WHERE id NOT IN (SELECT image_id FROM overlay WHERE image_id IS NOT NULL)")
	return err
}

// uniqueName returns name, or name with the lowest " (n)" suffix that no
// other overlay uses.
func (s *Store) uniqueName(name, except string) (string, error) {
	candidate := name
	for n := 1; ; n++ {
		var id string
		switch err := s.db.QueryRow("SELECT id FROM overlay WHERE name = ? COLLATE NOCASE AND id != ?", candidate, except).Scan(&id); err {
		case sql.ErrNoRows:
			return candidate, nil
		case nil:
		default:
			return "", err
		}
		candidate = fmt.Sprintf("%s (%d)", name, n)
	}
}

func encodeFilter(f map[string]bool) (sql.NullString, error) {
	if f == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// AddOverlay stores o with the image data. An empty ID is generated and the
// name is made unique. When o has no color filter one is derived from the
// colors used by the image, with every color enabled. The stored overlay is
// returned.
func (s *Store) AddOverlay(o Overlay, data []byte) (*Overlay, error) {
	if len(data) == 0 {
		return nil, errNoImage
	}

	m, err := raster.DecodeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode overlay image: %w", err)
	}
	if o.ColorFilter == nil {
		o.ColorFilter = DefaultFilter(ColorStats(m))
	}

	if o.ID == "" {
		if o.ID, err = newID(); err != nil {
			return nil, err
		}
	}
	if o.Name == "" {
		o.Name = "Overlay"
	}
	if o.Name, err = s.uniqueName(o.Name, ""); err != nil {
		return nil, err
	}

	o.Image = NewImage(data)
	imageID, err := s.addImage(o.Image)
	if err != nil {
		return nil, err
	}

	filter, err := encodeFilter(o.ColorFilter)
	if err != nil {
		return nil, err
	}

	if _, err = s.db.Exec("INSERT INTO overlay (id, position, name, enabled, image_url, image_id, pixel_url, offset_x, offset_y, opacity, color_filter) VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM overlay), ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		o.ID, o.Name, o.Enabled, nullString(o.ImageURL), imageID, nullString(o.PixelURL), o.OffsetX, o.OffsetY, o.Opacity, filter); err != nil {
		return nil, err
	}

	return &o, nil
}

// UpdateOverlay saves every field of o apart from the image. The name is
// made unique.
func (s *Store) UpdateOverlay(o *Overlay) error {
	name, err := s.uniqueName(o.Name, o.ID)
	if err != nil {
		return err
	}
	o.Name = name

	filter, err := encodeFilter(o.ColorFilter)
	if err != nil {
		return err
	}

	result, err := s.db.Exec("UPDATE overlay SET name = ?, enabled = ?, image_url = ?, pixel_url = ?, offset_x = ?, offset_y = ?, opacity = ?, color_filter = ? WHERE id = ?",
		o.Name, o.Enabled, nullString(o.ImageURL), nullString(o.PixelURL), o.OffsetX, o.OffsetY, o.Opacity, filter, o.ID)
	if err != nil {
		return err
	}
	return mustAffect(result, o.ID)
}

// SetImage replaces the image of overlay id. The color filter is reset to
// the colors of the new image.
func (s *Store) SetImage(id string, data []byte) error {
	if len(data) == 0 {
		return errNoImage
	}
	m, err := raster.DecodeBytes(data)
	if err != nil {
		return fmt.Errorf("decode overlay image: %w", err)
	}
	filter, err := encodeFilter(DefaultFilter(ColorStats(m)))
	if err != nil {
		return err
	}

	imageID, err := s.addImage(NewImage(data))
	if err != nil {
		return err
	}

	result, err := s.db.Exec("UPDATE overlay SET image_id = ?, color_filter = ? WHERE id = ?", imageID, filter, id)
	if err != nil {
		return err
	}
	if err := mustAffect(result, id); err != nil {
		return err
	}
	return s.pruneImages()
}

// SetAnchor points overlay id at a new pixel URL and resets its offset.
func (s *Store) SetAnchor(id, pixelURL string) error {
	result, err := s.db.Exec("UPDATE overlay SET pixel_url = ?, offset_x = 0, offset_y = 0 WHERE id = ?", nullString(pixelURL), id)
	if err != nil {
		return err
	}
	return mustAffect(result, id)
}

// RemoveOverlay deletes overlay id along with its image if nothing else uses
// it.
func (s *Store) RemoveOverlay(id string) error {
	result, err := s.db.Exec("DELETE FROM overlay WHERE id = ?", id)
	if err != nil {
		return err
	}
	if err := mustAffect(result, id); err != nil {
		return err
	}
	return s.pruneImages()
}

func mustAffect(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", errNotFound, id)
	}
	return nil
}

// IsNotFound reports whether err is caused by a missing overlay.
func IsNotFound(err error) bool {
	return errors.Is(err, errNotFound)
}

const overlayColumns = "o.id, o.name, o.enabled, o.image_url, o.pixel_url, o.offset_x, o.offset_y, o.opacity, o.color_filter, i.sha1, i.data FROM overlay AS o LEFT JOIN image AS i ON o.image_id = i.id"

type scanner interface {
	Scan(...interface{}) error
}

func scanOverlay(row scanner) (*Overlay, error) {
	var (
		o                          Overlay
		imageURL, pixelURL, filter sql.NullString
		sha                        sql.NullString
		data                       []byte
	)
	if err := row.Scan(&o.ID, &o.Name, &o.Enabled, &imageURL, &pixelURL, &o.OffsetX, &o.OffsetY, &o.Opacity, &filter, &sha, &data); err != nil {
		return nil, err
	}
	o.ImageURL = imageURL.String
	o.PixelURL = pixelURL.String
	if sha.Valid {
		o.Image = &Image{ID: sha.String, Data: data}
	}
	if filter.Valid {
		if err := json.Unmarshal([]byte(filter.String), &o.ColorFilter); err != nil {
			return nil, fmt.Errorf("overlay %s: color filter: %w", o.ID, err)
		}
	}
	return &o, nil
}

// Overlay returns the overlay with the given ID or name, or nil if there is
// none.
func (s *Store) Overlay(ref string) (*Overlay, error) {
	o, err := scanOverlay(s.db.QueryRow("SELECT "+overlayColumns+" WHERE o.id = ? OR o.name = ? ORDER BY o.id = ? DESC LIMIT 1", ref, ref, ref))
	switch err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		return o, nil
	default:
		return nil, err
	}
}

// Overlays returns every overlay in the order they were added.
func (s *Store) Overlays() ([]*Overlay, error) {
	rows, err := s.db.Query("SELECT " + overlayColumns + " ORDER BY o.position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overlays []*Overlay
	for rows.Next() {
		o, err := scanOverlay(rows)
		if err != nil {
			return nil, err
		}
		overlays = append(overlays, o)
	}
	return overlays, rows.Err()
}

// Settings returns the saved settings, or the defaults if none have been
// saved.
func (s *Store) Settings() (Settings, error) {
	st := DefaultSettings()

	var value string
	switch err := s.db.QueryRow("SELECT value FROM setting WHERE key = ?", settingsKey).Scan(&value); err {
	case sql.ErrNoRows:
		return st, nil
	case nil:
		if err := json.Unmarshal([]byte(value), &st); err != nil {
			return st, fmt.Errorf("settings: %w", err)
		}
		return st, nil
	default:
		return st, err
	}
}

// SaveSettings replaces the saved settings.
func (s *Store) SaveSettings(st Settings) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("INSERT OR REPLACE INTO setting (key, value) VALUES (?, ?)", settingsKey, string(b))
	return err
}
