package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sweeney/reptile-core/internal/core"
)

const consoleHelp = `commands:
  temp              current temperature
  humidity          current humidity
  conditions        full conditions snapshot
  profile <path>    load and activate a profile
  config <path>     load a configuration and its default profile
  save <path>       write the active profile
  help              this text`

var errConsoleHelp = errors.New(consoleHelp)

// parseConsole turns one console line into a command. An empty line yields
// a zero Command and no error.
func parseConsole(line string) (core.Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return core.Command{}, nil
	}

	verb := strings.ToLower(fields[0])
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	withPath := func(k core.Kind) (core.Command, error) {
		if arg == "" {
			return core.Command{}, fmt.Errorf("%s: missing path", verb)
		}
		return core.Command{Kind: k, Path: arg}, nil
	}
	noArgs := func(k core.Kind) (core.Command, error) {
		if arg != "" {
			return core.Command{}, fmt.Errorf("%s: takes no arguments", verb)
		}
		return core.Command{Kind: k}, nil
	}

	switch verb {
	case "temp", "temperature":
		return noArgs(core.GetTemperature)
	case "humidity":
		return noArgs(core.GetHumidity)
	case "conditions", "status":
		return noArgs(core.GetConditions)
	case "profile", "open":
		return withPath(core.OpenProfile)
	case "config":
		return withPath(core.OpenConfig)
	case "save":
		return withPath(core.SaveProfile)
	case "help", "?":
		return core.Command{}, errConsoleHelp
	default:
		return core.Command{}, fmt.Errorf("unknown command %q (try help)", verb)
	}
}

func scanLines(r io.Reader, ch chan<- string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		ch <- sc.Text()
	}
}
