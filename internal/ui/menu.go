package ui

import (
	"context"
	"fmt"

	"github.com/forest-guardian/field-indices-cli/internal/config"
)

type menuOption struct {
	title   string
	handler func(ctx context.Context, cfg *config.Config)
}

// ShowMenu displays the main menu and handles user input until the user
// exits or ctx is cancelled.
func ShowMenu(ctx context.Context, cfg *config.Config) {
	menuOptions := []menuOption{
		{"Compute annual indices for the fields", RunIndices},
		{"Export a stored run", ExportRun},
		{"Render an index composite of a field", RenderPreview},
		{"View the list of fields", ListFields},
		{"View the list of stored runs", ListRuns},
		{"Exit the application", nil},
	}

	for ctx.Err() == nil {
		fmt.Fprintf(output, "%s===================%s\n", ColorBlue, ColorReset)
		for i, opt := range menuOptions {
			fmt.Fprintf(output, "%s%d. %s%s\n", ColorBlue, i+1, opt.title, ColorReset)
		}

		choice, err := ReadInt("Please enter your choice: ", 1, len(menuOptions))
		if err != nil {
			if atEOF() {
				return
			}
			PrintError(err.Error())
			continue
		}

		opt := menuOptions[choice-1]
		if opt.handler == nil {
			fmt.Fprintln(output, "Exiting...")
			return
		}
		opt.handler(ctx, cfg)
	}
}

func atEOF() bool {
	_, err := input.Peek(1)
	return err != nil
}
