// Command goserver runs the HTTP origin server: parse the config file
// named on the command line (or conf/default.conf), bind every
// configured listener, and serve until SIGINT/SIGTERM. Argument
// handling is ported from original_source/utils.cpp's processArgs -
// a bare positional argument is the config path, "-l:N" (0=debug,
// 1=info, 2=error) sets the log level, and either may be omitted.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/devnode/goserver/internal/applog"
	"github.com/devnode/goserver/internal/config"
	"github.com/devnode/goserver/internal/engine"
)

const defaultConfigPath = "conf/default.conf"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	path, level, err := processArgs(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "goserver:", err)
		return 1
	}

	log := applog.New(level)
	defer log.Close()

	tables, err := config.LoadFile(path)
	if err != nil {
		log.Errorf("config: %v", err)
		return 1
	}
	log.Infof("loaded configuration from %s (%d server block(s))", path, len(tables.Servers))

	eng, err := engine.New(tables, log)
	if err != nil {
		log.Errorf("engine: %v", err)
		return 1
	}
	defer eng.Shutdown()

	log.Infof("goserver ready")
	if err := eng.Run(); err != nil {
		log.Errorf("engine: %v", err)
		return 1
	}
	return 0
}

// processArgs mirrors original_source/utils.cpp's flag/positional
// split: at most one "-l:N" flag and at most one bare path argument,
// in any order.
func processArgs(argv []string) (path string, level applog.Level, err error) {
	haveLevel := false
	level = applog.LevelInfo

	for _, arg := range argv {
		if n, ok := parseLogLevelFlag(arg); ok {
			if haveLevel {
				return "", 0, fmt.Errorf("multiple log level flags provided")
			}
			lvl, valid := applog.ParseLevel(n)
			if !valid {
				return "", 0, fmt.Errorf("invalid log level %q", arg)
			}
			level = lvl
			haveLevel = true
			continue
		}
		if path != "" {
			return "", 0, fmt.Errorf("multiple config file paths provided")
		}
		path = arg
	}

	if path == "" {
		path = defaultConfigPath
	}
	return path, level, nil
}

// parseLogLevelFlag recognizes "-l:N" for a single decimal digit N;
// whether N is a valid level is checked by applog.ParseLevel.
func parseLogLevelFlag(arg string) (int, bool) {
	if !strings.HasPrefix(arg, "-l:") || len(arg) != len("-l:")+1 {
		return 0, false
	}
	n, err := strconv.Atoi(arg[3:])
	if err != nil {
		return 0, false
	}
	return n, true
}
