package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/acquirer"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stateColor(st acquirer.State) *color.Color {
	switch st {
	case acquirer.StateFailed, acquirer.StateMissing:
		return color.New(color.FgRed)
	case acquirer.StateUnrecorded:
		return color.New(color.FgYellow)
	case acquirer.StateDownloaded:
		return color.New(color.FgGreen)
	default:
		return color.New(color.Reset)
	}
}

// printStateLine writes one "state<TAB>id" line, colouring the state on a terminal.
func printStateLine(w io.Writer, colorize bool, st acquirer.State, id string) {
	if !colorize {
		fmt.Fprintf(w, "%s\t%s\n", st, id)
		return
	}
	c := stateColor(st)
	c.EnableColor()
	c.Fprint(w, st.String())
	fmt.Fprintf(w, "\t%s\n", id)
}
