package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LoadOrCreateClientID reads the collector's MQTT client ID from a
// file in dataDir, or generates a new UUIDv7-based one and persists
// it. A stable client ID lets the broker resume the collector's
// session across restarts instead of treating every start as a new
// subscriber.
func LoadOrCreateClientID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "collector_id")

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate collector ID: %w", err)
	}

	clientID := "heru-collector-" + id.String()
	if err := os.WriteFile(path, []byte(clientID+"\n"), 0644); err != nil {
		return "", fmt.Errorf("persist collector ID to %s: %w", path, err)
	}

	return clientID, nil
}
