package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers line by line. Passwords are read without echo
// when stdin is a terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// line prints label and returns the trimmed answer. io.EOF means input ended.
func (p *prompter) line(label string) (string, error) {
	if label != "" {
		fmt.Fprint(p.out, label)
	}
	s, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// block reads lines until a line holding only "." or end of input.
func (p *prompter) block(label string) (string, error) {
	fmt.Fprintln(p.out, label+" (afslut med en linje med kun \".\")")
	var lines []string
	for {
		s, err := p.in.ReadString('\n')
		t := strings.TrimRight(s, "\r\n")
		if t == "." {
			break
		}
		if t != "" || err == nil {
			lines = append(lines, t)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func (p *prompter) yesNo(label string) (bool, error) {
	s, err := p.line(label + " [j/N] ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(s) {
	case "j", "ja", "y", "yes":
		return true, nil
	}
	return false, nil
}

func (p *prompter) password(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return p.line(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
