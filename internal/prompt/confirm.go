package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirmer asks yes/no questions on a terminal. Non-interactive input never
// answers yes on its own.
type Confirmer struct {
	In            io.Reader
	Out           io.Writer
	IsInteractive func() bool

	reader *bufio.Reader
}

func DefaultConfirmer() *Confirmer {
	return &Confirmer{
		In:  os.Stdin,
		Out: os.Stderr,
		IsInteractive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// ConfirmOverwrite asks before replacing an existing output file.
func (c *Confirmer) ConfirmOverwrite(path string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	if !c.interactive() {
		return false, fmt.Errorf("non-interactive stdin: use -y to overwrite existing output")
	}
	return c.ask(fmt.Sprintf("Warning: Output file %s already exists. Overwrite? (y/n): ", path))
}

// ConfirmContinue asks whether to translate the next group after a pause.
// Without a terminal it answers no so that the partial result is saved.
func (c *Confirmer) ConfirmContinue(translated, total int) (bool, error) {
	if !c.interactive() {
		return false, nil
	}
	return c.ask(fmt.Sprintf("Translated %d of %d entries. Continue? (y/n): ", translated, total))
}

func (c *Confirmer) interactive() bool {
	return c.IsInteractive != nil && c.IsInteractive()
}

func (c *Confirmer) ask(question string) (bool, error) {
	if c.Out != nil {
		fmt.Fprint(c.Out, question)
	}
	if c.reader == nil {
		c.reader = bufio.NewReader(c.In)
	}
	response, err := c.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes", nil
}
