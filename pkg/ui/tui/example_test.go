package tui_test

import (
	"errors"
	"fmt"
	"time"

	"epmasuppress/pkg/ui/tui"
)

func ExampleTUI() {
	terminal := tui.NewTUI(3)

	go func() {
		if err := terminal.Start(); err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
	}()

	terminal.UpdatePacing(0, 10, time.Now().Add(time.Minute))

	terminal.StartPatient("1000001", 1, 3)
	terminal.NoteSuppressed("1000001", "**Order Drug** Warfarin 5mg")
	terminal.NoteSkipped("1000001", "PARACETAMOL")
	terminal.CompletePatient("1000001", 1)

	terminal.StartPatient("1000002", 2, 3)
	terminal.SkipPatient("1000002", "no results")

	terminal.StartPatient("1000003", 3, 3)
	terminal.FailPatient("1000003", errors.New("notes list timed out"))

	terminal.LogSuccess("Run complete")
	time.Sleep(5 * time.Second)
	terminal.Stop()
}
