package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"epmasuppress/pkg/logger"
)

const currentVersion = 1

// Checkpoint is the resumable state of a run over one worklist
type Checkpoint struct {
	Worklist        string               `json:"worklist"`
	RunID           string               `json:"run_id"`
	TotalPatients   int                  `json:"total_patients"`
	Completed       map[string]time.Time `json:"completed"` // hospital number -> finished at
	NotesSuppressed int                  `json:"notes_suppressed"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Version         int                  `json:"version"`
}

// IsCompleted reports whether a patient was finished by an earlier run
func (c *Checkpoint) IsCompleted(hospitalNumber string) bool {
	_, ok := c.Completed[hospitalNumber]
	return ok
}

// Manager handles checkpoint operations for one worklist file
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a checkpoint manager in the user data directory
func NewManager(worklistPath string) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerInDir(filepath.Join(dataDir, "checkpoints"), worklistPath)
}

// NewManagerInDir creates a checkpoint manager storing files under dir
func NewManagerInDir(dir, worklistPath string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, checkpointName(worklistPath)),
		logger:         logger.GetLogger().WithField("component", "checkpoint"),
	}, nil
}

// checkpointName keys the file on the absolute worklist path so that two
// worklists with the same base name do not collide.
func checkpointName(worklistPath string) string {
	abs, err := filepath.Abs(worklistPath)
	if err != nil {
		abs = worklistPath
	}
	sum := sha256.Sum256([]byte(abs))
	base := strings.TrimSuffix(filepath.Base(worklistPath), filepath.Ext(worklistPath))
	return fmt.Sprintf("%s-%s.checkpoint.json", base, hex.EncodeToString(sum[:4]))
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create creates and saves a fresh checkpoint
func (m *Manager) Create(worklist, runID string, totalPatients int) (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		Worklist:      worklist,
		RunID:         runID,
		TotalPatients: totalPatients,
		Completed:     make(map[string]time.Time),
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       currentVersion,
	}

	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"worklist": worklist,
		"path":     m.checkpointPath,
	})

	return cp, nil
}

// Load reads the checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Version > currentVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", cp.Version, currentVersion)
	}
	if cp.Completed == nil {
		cp.Completed = make(map[string]time.Time)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"worklist":   cp.Worklist,
		"completed":  len(cp.Completed),
		"total":      cp.TotalPatients,
		"updated_at": cp.UpdatedAt,
	})

	return &cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"completed": len(cp.Completed),
		"total":     cp.TotalPatients,
	})

	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// RecordPatient marks a patient finished and saves
func (m *Manager) RecordPatient(cp *Checkpoint, hospitalNumber string, suppressed int) error {
	cp.Completed[hospitalNumber] = time.Now()
	cp.NotesSuppressed += suppressed
	return m.Save(cp)
}

// GetCheckpointInfo returns a summary of the checkpoint, or nil if none exists
func (m *Manager) GetCheckpointInfo() (map[string]interface{}, error) {
	cp, err := m.Load()
	if err != nil || cp == nil {
		return nil, err
	}

	return map[string]interface{}{
		"worklist":         cp.Worklist,
		"run_id":           cp.RunID,
		"completed":        len(cp.Completed),
		"total_patients":   cp.TotalPatients,
		"notes_suppressed": cp.NotesSuppressed,
		"created_at":       cp.CreatedAt,
		"updated_at":       cp.UpdatedAt,
		"age":              time.Since(cp.UpdatedAt),
	}, nil
}

// BackupCheckpoint copies the current checkpoint to <path>.backup
func (m *Manager) BackupCheckpoint() error {
	if !m.Exists() {
		return nil
	}

	src, err := os.Open(m.checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(m.checkpointPath + ".backup")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}

	m.logger.Debug("Checkpoint backed up")
	return nil
}

func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "epmasuppress")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "epmasuppress")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "epmasuppress")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "epmasuppress")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
