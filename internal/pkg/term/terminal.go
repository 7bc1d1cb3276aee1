package term

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/term"
	"golang.org/x/xerrors"
)

// hexKeyRe проверяет формат ключа расшифровки: 64 шестнадцатеричных символа.
var hexKeyRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Terminal обеспечивает интерактивный запрос недостающих параметров
// доступа к хранилищу через терминал.
type Terminal struct {
	in      *bufio.Reader
	out     io.Writer
	stdinfd int
}

// NewTerminal создает новый экземпляр Terminal.
func NewTerminal() *Terminal {
	return &Terminal{
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		stdinfd: int(os.Stdin.Fd()),
	}
}

// Key запрашивает ключ расшифровки базы без эха ввода.
func (t *Terminal) Key() (string, error) {
	fmt.Fprint(t.out, "Enter database key: ")
	byteKey, err := term.ReadPassword(t.stdinfd)
	if err != nil {
		return "", xerrors.Errorf("failed to read key: %w", err)
	}
	fmt.Fprintln(t.out) // Новая строка после ввода

	key := strings.TrimSpace(string(byteKey))
	if !hexKeyRe.MatchString(key) {
		return "", xerrors.New("key must be 64 hex characters")
	}
	return key, nil
}

// AccountID запрашивает идентификатор аккаунта.
func (t *Terminal) AccountID() (string, error) {
	fmt.Fprint(t.out, "Enter account id: ")
	id, err := t.in.ReadString('\n')
	if err != nil {
		return "", xerrors.Errorf("failed to read account id: %w", err)
	}
	return strings.TrimSpace(id), nil
}
