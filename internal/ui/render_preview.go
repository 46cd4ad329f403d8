package ui

import (
	"context"
	"fmt"

	"github.com/forest-guardian/field-indices-cli/internal/config"
	"github.com/forest-guardian/field-indices-cli/internal/delivery"
	"github.com/forest-guardian/field-indices-cli/internal/field"
)

// RenderPreview handles the UI for rendering one field composite.
func RenderPreview(ctx context.Context, cfg *config.Config) {
	fields, _, err := delivery.LoadFields(cfg.Fields)
	if err != nil {
		PrintError(err.Error())
		return
	}
	printFieldIDs(fields)

	f, err := field.Find(fields, ReadString("Enter the field id: "))
	if err != nil {
		PrintError(err.Error())
		return
	}
	year, err := ReadIntDefault("Enter the year: ", cfg.Years.End, 2015, 2100)
	if err != nil {
		PrintError(err.Error())
		return
	}
	idx, stat, err := ReadIndexAndStat()
	if err != nil {
		PrintError(err.Error())
		return
	}

	src, err := delivery.NewImageSource(ctx, cfg.Sentinel)
	if err != nil {
		PrintError(err.Error())
		return
	}
	p, err := delivery.RenderPreview(ctx, src, f, year, idx, stat, "")
	if err != nil {
		PrintError(fmt.Sprintf("Error rendering preview: %s", err.Error()))
		return
	}

	PrintSuccess(fmt.Sprintf("Composite of %d scenes\nResultant image located at: %s\nResultant GeoTIFF located at: %s",
		p.Record.Scenes, p.PNG, p.GeoTIFF))
}

func printFieldIDs(fields []field.Field) {
	fmt.Fprintf(output, "\n%sAvailable fields:%s\n", ColorGreen, ColorReset)
	for _, f := range fields {
		fmt.Fprintf(output, "%s- %s%s\n", ColorGreen, f.ID, ColorReset)
	}
}
