package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/sensor-dashboard/db"
	"github.com/thatsimonsguy/sensor-dashboard/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, session, key, value, unitPath, execPath, configFile, user string
	flag.StringVar(&dbPath, "db", "data/dashboard.db", "Path to the SQLite state database")
	flag.StringVar(&command, "cmd", "", "Command to run: list-sessions, show-session, set-value, reset-session, install-service")
	flag.StringVar(&session, "session", "", "Session ID for session commands")
	flag.StringVar(&key, "key", "", "State key for set-value (theme, layout, expandedGroups, groupOrder)")
	flag.StringVar(&value, "value", "", "Raw value for set-value")
	flag.StringVar(&unitPath, "unit", "/etc/systemd/system/sensor-dashboard.service", "Unit file written by install-service")
	flag.StringVar(&execPath, "exec", "/usr/local/bin/sensor-dashboard", "Dashboard binary for install-service")
	flag.StringVar(&configFile, "config-file", "/etc/sensor-dashboard/config.yaml", "Config file passed to the installed service")
	flag.StringVar(&user, "user", "", "User the installed service runs as")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of dashboard-debug:")
		fmt.Println("  -db string\tPath to the SQLite state database (default 'data/dashboard.db')")
		fmt.Println("  -cmd string\tCommand to run: list-sessions, show-session, set-value, reset-session, install-service")
		fmt.Println("  -session string\tSession ID for session commands")
		fmt.Println("  -key string\tState key for set-value")
		fmt.Println("  -value string\tRaw value for set-value")
		fmt.Println("  -unit string\tUnit file written by install-service")
		fmt.Println("  -exec string\tDashboard binary for install-service")
		fmt.Println("  -config-file string\tConfig file passed to the installed service")
		fmt.Println("  -user string\tUser the installed service runs as")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	requireSession := func() {
		if session == "" {
			fmt.Println("Error: session ID is required")
			os.Exit(1)
		}
	}

	var err error
	switch command {
	case "list-sessions":
		err = db.ListSessionsCLI(dbPath, os.Stdout)
	case "show-session":
		requireSession()
		err = db.ShowSessionCLI(dbPath, session, os.Stdout)
	case "set-value":
		requireSession()
		if key == "" {
			fmt.Println("Error: key is required")
			os.Exit(1)
		}
		err = db.SetSessionValueCLI(dbPath, session, key, value)
	case "reset-session":
		requireSession()
		err = db.ResetSessionCLI(dbPath, session, os.Stdout)
	case "install-service":
		err = startup.InstallService(unitPath, startup.Service{
			Description: "Sensor dashboard",
			User:        user,
			ExecPath:    execPath,
			Args:        []string{"-config-file", configFile},
		})
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}
