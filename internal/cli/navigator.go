package cli

import (
	"io"
	"sync"

	"github.com/fatih/color"
)

// navigator is the terminal's hard redirect: one notice, however many requests noticed the eviction.
type navigator struct {
	once sync.Once
	out  io.Writer
}

func (n *navigator) HardRedirect(string) {
	n.once.Do(func() {
		color.New(color.FgYellow).Fprintln(n.out, "Your session has expired. Run `gatekeep login` to sign in again.")
	})
}
