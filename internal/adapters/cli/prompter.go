package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/andrescamacho/polisbot/internal/domain/ports"
)

// StdPrompter reads from the process terminal. It implements ports.Prompter
// and is wrapped by the recording prompter when a session is being captured.
type StdPrompter struct {
	reader *bufio.Reader
}

// NewStdPrompter creates a prompter over stdin
func NewStdPrompter() *StdPrompter {
	return &StdPrompter{reader: bufio.NewReader(os.Stdin)}
}

func (p *StdPrompter) Read(prompt string) (string, error) {
	fmt.Printf("%s: ", prompt)
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *StdPrompter) ReadSecret(prompt string) (string, error) {
	fmt.Printf("%s: ", prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

func (p *StdPrompter) Choose(prompt string, options []string) (int, error) {
	fmt.Println(prompt)
	for i, option := range options {
		fmt.Printf("  %d) %s\n", i+1, option)
	}
	for {
		answer, err := p.Read("Choice")
		if err != nil {
			return 0, err
		}
		choice, err := strconv.Atoi(answer)
		if err != nil || choice < 1 || choice > len(options) {
			fmt.Printf("Enter a number between 1 and %d\n", len(options))
			continue
		}
		return choice - 1, nil
	}
}

func (p *StdPrompter) Confirm(prompt string) (bool, error) {
	answer, err := p.Read(prompt + " [y/N]")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

var _ ports.Prompter = (*StdPrompter)(nil)
