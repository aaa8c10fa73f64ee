package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// EnvPasswordStdin makes data commands read the admin password from stdin.
const EnvPasswordStdin = "ACCTVAULT_PASSWORD_STDIN"

var errEmptyPassword = errors.New("password cannot be empty")

// stdinBuf is shared so successive prompts on piped stdin see successive lines.
var stdinBuf = bufio.NewReader(os.Stdin)

func stdin() io.Reader {
	return os.Stdin
}

func lineReader(in io.Reader) *bufio.Reader {
	if in == io.Reader(os.Stdin) {
		return stdinBuf
	}
	if br, ok := in.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReader(in)
}

func promptOut() io.Writer {
	return os.Stderr
}

func passwordFromStdin() bool {
	v := strings.TrimSpace(os.Getenv(EnvPasswordStdin))
	return v != "" && v != "0" && !strings.EqualFold(v, "false")
}

// readAdminPassword reads one line from in when stdin mode is on or in is
// not a terminal, and otherwise prompts without echo.
func readAdminPassword(in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && !passwordFromStdin() && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, "Admin password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if len(b) == 0 {
			return "", errEmptyPassword
		}
		return string(b), nil
	}
	return readLine(in)
}

// readLine returns the first line of in without the trailing newline.
func readLine(in io.Reader) (string, error) {
	line, err := lineReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errEmptyPassword
	}
	return line, nil
}

// readSecret prompts for a password that is not the admin password, e.g. an
// archive password. confirm asks twice.
func readSecret(label string, confirm bool) ([]byte, error) {
	if passwordFromStdin() || !term.IsTerminal(int(os.Stdin.Fd())) {
		s, err := readLine(os.Stdin)
		return []byte(s), err
	}

	fmt.Fprintf(os.Stderr, "%s: ", label)
	first, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if len(first) == 0 {
		return nil, errEmptyPassword
	}
	if !confirm {
		return first, nil
	}

	fmt.Fprintf(os.Stderr, "Confirm %s: ", strings.ToLower(label))
	second, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	if string(first) != string(second) {
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

// confirmAction asks a yes/no question; force skips it.
func confirmAction(question string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	answer, err := stdinBuf.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
