package console

import (
	"context"
	"fmt"
	"io"

	"spotisync/internal/cleanup"

	"github.com/AlecAivazis/survey/v2"
)

var promptChoices = []struct {
	label       string
	disposition cleanup.Disposition
}{
	{"Delete these files", cleanup.DispositionDelete},
	{"Keep the files", cleanup.DispositionKeep},
	{"Skip for now", cleanup.DispositionSkip},
}

type askFunc func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error

// Prompt asks on the terminal what to do with the files of removed songs.
// It implements cleanup.Policy.
type Prompt struct {
	out io.Writer
	ask askFunc
}

// NewPrompt creates an interactive cleanup policy writing its listing to out
func NewPrompt(out io.Writer) *Prompt {
	return &Prompt{out: out, ask: survey.AskOne}
}

// Decide lists the removed songs and asks for a disposition. An interrupted
// prompt skips cleanup for this playlist.
func (p *Prompt) Decide(ctx context.Context, playlist string, removed []cleanup.RemovedSong) (cleanup.Disposition, error) {
	if err := ctx.Err(); err != nil {
		return cleanup.DispositionSkip, err
	}

	colorWarning.Fprintf(p.out, "\n%d song(s) were removed from %q:\n", len(removed), playlist)
	for _, song := range removed {
		if song.File != nil {
			fmt.Fprintf(p.out, "  - %s - %s (%s)\n", song.Row.Artist, song.Row.Title, song.File.Path)
		} else {
			fmt.Fprintf(p.out, "  - %s - %s (no file found)\n", song.Row.Artist, song.Row.Title)
		}
	}

	options := make([]string, 0, len(promptChoices))
	for _, c := range promptChoices {
		options = append(options, c.label)
	}

	selected := 0
	prompt := &survey.Select{
		Message: colorPrompt.Sprint("What should happen to these files?"),
		Options: options,
		Default: options[len(options)-1],
	}
	if err := p.ask(prompt, &selected); err != nil {
		return cleanup.DispositionSkip, nil
	}
	if selected < 0 || selected >= len(promptChoices) {
		return cleanup.DispositionSkip, nil
	}
	return promptChoices[selected].disposition, nil
}
