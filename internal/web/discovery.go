package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Discovery files in the workspace root let local tooling find the server.
const (
	PortFile   = ".lsp_mcp_port"
	StatusFile = ".lsp_mcp_status.json"
)

// Status is the content of StatusFile.
type Status struct {
	Project   string    `json:"project"`
	Path      string    `json:"path"`
	Port      int       `json:"port"`
	URL       string    `json:"url"`
	PID       int       `json:"pid"`
	Version   string    `json:"version"`
	StartedAt time.Time `json:"startedAt"`
}

// ReadPortFile returns the port pinned in root's PortFile, if any.
func ReadPortFile(root string) (int, bool, error) {
	data, err := os.ReadFile(filepath.Join(root, PortFile))
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || port <= 0 || port > 65535 {
		return 0, false, fmt.Errorf("%s: invalid port %q", PortFile, strings.TrimSpace(string(data)))
	}
	return port, true, nil
}

// Discovery tracks the files written for one run so they can be removed.
type Discovery struct {
	root        string
	createdPort bool
}

// WriteDiscovery writes StatusFile, and PortFile when the user has not
// pinned one.
func WriteDiscovery(root string, ws WorkspaceInfo, url string) (*Discovery, error) {
	d := &Discovery{root: root}

	portPath := filepath.Join(root, PortFile)
	if _, err := os.Stat(portPath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(portPath, []byte(strconv.Itoa(ws.Port)+"\n"), 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", PortFile, err)
		}
		d.createdPort = true
	}

	data, err := json.MarshalIndent(Status{
		Project:   ws.Name,
		Path:      ws.Path,
		Port:      ws.Port,
		URL:       url,
		PID:       os.Getpid(),
		Version:   ws.Version,
		StartedAt: ws.StartedAt,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(root, StatusFile), append(data, '\n'), 0644); err != nil {
		d.Remove()
		return nil, fmt.Errorf("write %s: %w", StatusFile, err)
	}
	return d, nil
}

// Remove deletes the status file and any port file this run created.
func (d *Discovery) Remove() {
	_ = os.Remove(filepath.Join(d.root, StatusFile))
	if d.createdPort {
		_ = os.Remove(filepath.Join(d.root, PortFile))
	}
}
