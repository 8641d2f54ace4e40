// browse is a small page-capture CLI over the browser toolkit:
// navigate, screenshot, text and pdf.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/browser"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/config"
)

var (
	flagHeadless bool
	flagTimeout  time.Duration
	flagChrome   string
	flagOutput   string
	flagFullPage bool
)

func toolkit() *browser.Toolkit {
	return browser.New(config.BrowserConfig{
		Headless:   flagHeadless,
		ChromePath: flagChrome,
		Timeout:    flagTimeout,
	})
}

// withToolkit runs fn against a started toolkit and shuts it down.
func withToolkit(fn func(tk *browser.Toolkit) error) error {
	tk := toolkit()
	defer tk.Shutdown()
	return fn(tk)
}

var rootCmd = &cobra.Command{
	Use:           "browse",
	Short:         "Headless page capture: navigate, screenshot, text, pdf",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var navigateCmd = &cobra.Command{
	Use:   "navigate <url>",
	Short: "Load a page and print its resolved URL and title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withToolkit(func(tk *browser.Toolkit) error {
			info, err := tk.Navigate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s\n%s\n", info.URL, info.Title)
			return nil
		})
	},
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot <url>",
	Short: "Capture a page as PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withToolkit(func(tk *browser.Toolkit) error {
			data, err := tk.Screenshot(cmd.Context(), args[0], flagFullPage)
			if err != nil {
				return err
			}
			return writeOutput(data, "screenshot.png")
		})
	},
}

var textCmd = &cobra.Command{
	Use:   "text <url>",
	Short: "Print a page's visible text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withToolkit(func(tk *browser.Toolkit) error {
			text, err := tk.Text(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		})
	},
}

var pdfCmd = &cobra.Command{
	Use:   "pdf <url>",
	Short: "Render a page to PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withToolkit(func(tk *browser.Toolkit) error {
			data, err := tk.PDF(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOutput(data, "page.pdf")
		})
	},
}

func writeOutput(data []byte, fallback string) error {
	out := flagOutput
	if out == "" {
		out = fallback
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagHeadless, "headless", true, "run Chrome headless")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 30*time.Second, "per-page navigation timeout")
	rootCmd.PersistentFlags().StringVar(&flagChrome, "chrome", "", "Chrome binary path")
	screenshotCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file (default screenshot.png)")
	screenshotCmd.Flags().BoolVar(&flagFullPage, "full-page", false, "capture full scroll height")
	pdfCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file (default page.pdf)")
	rootCmd.AddCommand(navigateCmd, screenshotCmd, textCmd, pdfCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
