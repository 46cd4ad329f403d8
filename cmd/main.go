package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forest-guardian/field-indices-cli/internal/config"
	"github.com/forest-guardian/field-indices-cli/internal/notification"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "field-indices",
	Short: "Annual Sentinel-2 vegetation and water indices per field",
	Long: "Computes yearly NDVI, EVI and NDWI statistics (mean, max, min, amplitude) " +
		"over field polygons from cloud-masked Sentinel-2 L2A scenes and exports them as a table.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func printBanner() {
	figure1 := figure.NewFigure("Field", "isometric1", true)
	figure2 := figure.NewFigure("Indices", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	bannercolor.Cyan(figure2.String())
	fmt.Println()
}

// reportPanic prints the panic and posts it to the error webhook.
func reportPanic() {
	r := recover()
	if r == nil {
		return
	}
	stack := debug.Stack()
	bannercolor.Red("PANIC: %v", r)
	bannercolor.Red("Exiting...")

	if cfg != nil {
		n := notification.NewNotifier(cfg.Notification)
		msg := fmt.Sprintf("field-indices panic:\n\n%v\n\nStack trace:\n%s", r, stack)
		if err := n.SendError(context.Background(), msg); err != nil {
			bannercolor.Red("Failed to send notification: %s", err.Error())
		}
	}
	os.Exit(2)
}

func main() {
	defer reportPanic()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
