package registry

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/binwatch/internal/models"
)

// Registry owns Session and Token rows. Every mutation persists
// synchronously; the upsert-then-read-token sequence is guarded so that
// concurrent upserts for the same device cannot interleave.
type Registry struct {
	mu sync.Mutex
	db *gorm.DB
}

// Open creates a registry backed by the sqlite database at path, creating
// the schema if needed. Use ":memory:" for an ephemeral registry.
func Open(path string) (*Registry, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle, migrating the schema.
func New(db *gorm.DB) (*Registry, error) {
	if err := db.AutoMigrate(&models.Session{}, &models.Token{}); err != nil {
		return nil, fmt.Errorf("migrate registry schema: %w", err)
	}
	return &Registry{db: db}, nil
}

// Upsert records that deviceID is reachable over connectionID with the
// given app state, then denormalizes the device's newest push token onto
// the session row.
func (r *Registry) Upsert(deviceID, connectionID string, isOpen bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var session models.Session
	err := r.db.Where("device_id = ?", deviceID).First(&session).Error
	switch {
	case err == nil:
		session.ConnectionID = connectionID
		session.IsOpen = isOpen
		session.LastUpdate = time.Now().UTC()
	case errors.Is(err, gorm.ErrRecordNotFound):
		session = models.Session{
			DeviceID:     deviceID,
			ConnectionID: connectionID,
			IsOpen:       isOpen,
			LastUpdate:   time.Now().UTC(),
		}
	default:
		return fmt.Errorf("load session %s: %w", deviceID, err)
	}

	token, err := r.tokenForDevice(deviceID)
	if err != nil {
		return err
	}
	session.PushToken = token

	if err := r.db.Save(&session).Error; err != nil {
		return fmt.Errorf("save session %s: %w", deviceID, err)
	}
	log.Printf("[Registry] Device %s is %s (conn=%s)", deviceID, openLabel(isOpen), connectionID)
	return nil
}

// IsOpen reports whether the device currently has an open session. Unknown
// devices are closed.
func (r *Registry) IsOpen(deviceID string) (bool, error) {
	var session models.Session
	err := r.db.Where("device_id = ?", deviceID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load session %s: %w", deviceID, err)
	}
	return session.IsOpen, nil
}

// ListOpen returns the device ids of all open sessions.
func (r *Registry) ListOpen() ([]string, error) {
	return r.listByState(true)
}

// ListClosed returns the device ids of all closed sessions.
func (r *Registry) ListClosed() ([]string, error) {
	return r.listByState(false)
}

func (r *Registry) listByState(open bool) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.Session{}).
		Where("is_open = ?", open).
		Pluck("device_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

// ListAll returns every session, newest lastUpdate first.
func (r *Registry) ListAll() ([]models.Session, error) {
	var sessions []models.Session
	err := r.db.Order("last_update desc").Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// MarkClosedByConnection clears the open flag of the session using
// connectionID, if any. Disconnects of unknown connections are a no-op.
func (r *Registry) MarkClosedByConnection(connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var session models.Session
	err := r.db.Where("connection_id = ?", connectionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session by connection %s: %w", connectionID, err)
	}

	session.IsOpen = false
	session.LastUpdate = time.Now().UTC()
	if err := r.db.Save(&session).Error; err != nil {
		return fmt.Errorf("close session %s: %w", session.DeviceID, err)
	}
	log.Printf("[Registry] Device %s marked closed (connection %s lost)", session.DeviceID, connectionID)
	return nil
}

// SaveToken registers a push token for a device. The (device, token) pair
// is inserted only if it does not already exist.
func (r *Registry) SaveToken(deviceID, token string) error {
	var count int64
	err := r.db.Model(&models.Token{}).
		Where("device_id = ? AND token = ?", deviceID, token).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("check token: %w", err)
	}
	if count > 0 {
		return nil
	}
	row := models.Token{DeviceID: deviceID, Token: token, UpdatedAt: time.Now().UTC()}
	if err := r.db.Create(&row).Error; err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// TokenForDevice returns the most recently updated push token for a
// device, or "" if none is registered.
func (r *Registry) TokenForDevice(deviceID string) (string, error) {
	return r.tokenForDevice(deviceID)
}

func (r *Registry) tokenForDevice(deviceID string) (string, error) {
	var row models.Token
	err := r.db.Where("device_id = ?", deviceID).
		Order("updated_at desc, id desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token for %s: %w", deviceID, err)
	}
	return row.Token, nil
}

// SessionTokens returns the non-empty push tokens denormalized onto the
// sessions of the given devices.
func (r *Registry) SessionTokens(deviceIDs []string) ([]string, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	var tokens []string
	err := r.db.Model(&models.Session{}).
		Where("device_id IN ? AND push_token <> ''", deviceIDs).
		Pluck("push_token", &tokens).Error
	if err != nil {
		return nil, fmt.Errorf("collect session tokens: %w", err)
	}
	return tokens, nil
}

// AllTokens returns every distinct non-empty registered token.
func (r *Registry) AllTokens() ([]string, error) {
	var tokens []string
	err := r.db.Model(&models.Token{}).
		Where("token <> ''").
		Distinct().
		Pluck("token", &tokens).Error
	if err != nil {
		return nil, fmt.Errorf("collect tokens: %w", err)
	}
	return tokens, nil
}

func openLabel(open bool) string {
	if open {
		return "OPEN"
	}
	return "CLOSED"
}
