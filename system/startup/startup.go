package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Service describes the systemd unit that runs the dashboard on the sensor
// host.
type Service struct {
	Description string
	User        string
	WorkingDir  string
	ExecPath    string
	Args        []string
	After       []string
}

func (s Service) Unit() string {
	after := append([]string{"network-online.target"}, s.After...)
	exec := strings.Join(append([]string{s.ExecPath}, s.Args...), " ")

	var user string
	if s.User != "" {
		user = fmt.Sprintf("User=%s\n", s.User)
	}
	var workdir string
	if s.WorkingDir != "" {
		workdir = fmt.Sprintf("WorkingDirectory=%s\n", s.WorkingDir)
	}

	return fmt.Sprintf(`[Unit]
Description=%s
After=%s
Wants=network-online.target

[Service]
Type=simple
%s%sExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, s.Description, strings.Join(after, " "), user, workdir, exec)
}

// InstallService writes the unit file to path, creating its directory.
func InstallService(path string, s Service) error {
	if s.ExecPath == "" {
		return fmt.Errorf("service %q has no executable", s.Description)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(s.Unit()), 0644)
}
