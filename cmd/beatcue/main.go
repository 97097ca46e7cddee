// Command beatcue places cues on track and phrase timelines and fires MIDI
// and Lua expressions as players move through them.
package main

import (
	"context"
	"fmt"
	"os"

	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/roach88/beatcue/internal/cli"
)

func main() {
	var driver drivers.Driver
	drv, err := rtmididrv.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "beatcue: midi unavailable, sends are disabled: %v\n", err)
	} else {
		driver = drv
	}

	cmd := cli.NewRootCommand(driver)
	err = cmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	code := cli.GetExitCode(err)
	if drv != nil {
		// os.Exit skips deferred calls.
		drv.Close()
	}
	os.Exit(code)
}
