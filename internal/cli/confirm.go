package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"homebudget/internal/services"
)

// PromptConfirmer asks on out and reads a yes/no answer from in.
// With Assume set every prompt is answered yes without reading.
type PromptConfirmer struct {
	In     io.Reader
	Out    io.Writer
	Assume bool
}

var _ services.Confirmer = (*PromptConfirmer)(nil)

func (p *PromptConfirmer) Confirm(ctx context.Context, title, message string) (bool, error) {
	if p.Assume {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.Out, "%s\n%s [y/N]: ", title, message)
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
