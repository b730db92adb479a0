// Package term — интерактивные подтверждения для registryctl.
package term

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"golang.org/x/xerrors"
)

// ErrNotInteractive возвращается, когда подтверждение нужно, а stdin не терминал.
var ErrNotInteractive = xerrors.New("stdin is not a terminal, use -yes to confirm")

// Terminal читает ответы пользователя из stdin.
type Terminal struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

// NewTerminal создает Terminal поверх os.Stdin/os.Stdout.
func NewTerminal() *Terminal {
	return New(os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
}

// New создает Terminal с явными потоками.
func New(in io.Reader, out io.Writer, interactive bool) *Terminal {
	return &Terminal{
		in:          bufio.NewReader(in),
		out:         out,
		interactive: interactive,
	}
}

// Ask выводит вопрос и возвращает введенную строку без пробелов по краям.
func (t *Terminal) Ask(question string) (string, error) {
	fmt.Fprint(t.out, question)
	answer, err := t.in.ReadString('\n')
	if err != nil && !(xerrors.Is(err, io.EOF) && answer != "") {
		return "", xerrors.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// Confirm задает вопрос да/нет. Пустой ответ означает "нет".
func (t *Terminal) Confirm(question string) (bool, error) {
	if !t.interactive {
		return false, ErrNotInteractive
	}
	answer, err := t.Ask(question + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes", "д", "да":
		return true, nil
	default:
		return false, nil
	}
}
