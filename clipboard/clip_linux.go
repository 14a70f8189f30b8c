package clipboard

import (
	"errors"
	"os"
	"os/exec"
	"strings"
)

// WriteString attempts to copy the given string to the system clipboard.
// Under Wayland it uses wl-copy, otherwise xsel.
func WriteString(s string) error {
	cmd, err := copyCommand()
	if err != nil {
		return err
	}
	cmd.Stdin = strings.NewReader(s)
	return cmd.Run()
}

func copyCommand() (*exec.Cmd, error) {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		if _, err := exec.LookPath("wl-copy"); err == nil {
			return exec.Command("wl-copy"), nil
		}
	}
	// We can't call xsel if there isn't a DISPLAY set, since it won't work.
	if os.Getenv("DISPLAY") == "" {
		return nil, errors.New("unable to copy to clipboard (no DISPLAY)")
	}
	return exec.Command("xsel", "--clipboard", "--input"), nil
}
