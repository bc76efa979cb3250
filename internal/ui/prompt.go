package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrEmptyInput is returned when the user enters nothing.
var ErrEmptyInput = errors.New("no input given")

// ReadPassword prompts on out and reads a line from in. When in is a
// terminal the input is not echoed.
func ReadPassword(in *os.File, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, PromptStyle.Render(prompt))

	var (
		line string
		err  error
	)
	if term.IsTerminal(int(in.Fd())) {
		var b []byte
		b, err = term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(out)
		line = string(b)
	} else {
		line, err = readLine(in)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", ErrEmptyInput
	}
	return line, nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		return line, nil
	}
	return line, err
}
