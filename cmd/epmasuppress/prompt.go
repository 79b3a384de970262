package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// stdin is shared so buffered input is not lost between prompts
var stdin = bufio.NewReader(os.Stdin)

// prompt prints label and reads one trimmed line
func prompt(label string) (string, error) {
	fmt.Print(label)
	line, err := stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads a password from stdin without echoing
func readPassword(label string) (string, error) {
	fmt.Print(label)
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	line, err := stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// askYesNo keeps asking until the answer is Y or N
func askYesNo(question string) (bool, error) {
	for {
		answer, err := prompt(question + " (Y/N): ")
		if err != nil {
			return false, err
		}
		switch strings.ToUpper(answer) {
		case "Y":
			return true, nil
		case "N":
			return false, nil
		}
		fmt.Println("Please enter Y or N.")
	}
}

// confirm asks a question that defaults to no
func confirm(question string) bool {
	answer, err := prompt(question + " (y/N): ")
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(answer), "y")
}
