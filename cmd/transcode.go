package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var transcodeCmd = &cobra.Command{
	Use:   "transcode",
	Short: "Transcode a single GSI elevation tile",
	Long: `Read a GSI DEM PNG tile from a file or standard input and write the
raster-DEM tile as PNG.

Examples:
  demtile transcode -i 14_14552_6451.png -o terrain.png
  curl -s https://cyberjapandata.gsi.go.jp/xyz/dem_png/14/14552/6451.png | demtile transcode > terrain.png

  # Print elevation statistics of the source tile as well
  demtile transcode -i 14_14552_6451.png -o terrain.png --stats`,
	Args: cobra.NoArgs,
	RunE: runTranscode,
}

func init() {
	rootCmd.AddCommand(transcodeCmd)

	transcodeCmd.Flags().StringP("input", "i", "", "source tile (default: stdin)")
	transcodeCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	transcodeCmd.Flags().Bool("stats", false, "print elevation statistics to stderr")
}

func runTranscode(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	stats, _ := cmd.Flags().GetBool("stats")

	// Check if output is to terminal
	if output == "" {
		if err := checkPipe(os.Stdout); err != nil {
			return err
		}
	}

	var src []byte
	if input == "" {
		src, err = io.ReadAll(cmd.InOrStdin())
	} else {
		src, err = os.ReadFile(input)
	}
	if err != nil {
		return fmt.Errorf("failed to read source tile: %w", err)
	}

	tr := cfg.Transcoder()
	if stats {
		img, err := tr.Decode(bytes.NewReader(src))
		if err != nil {
			return err
		}
		st := tr.Encoding.Summarize(img)
		fmt.Fprintf(cmd.ErrOrStderr(), "==Size: %dx%d\n", st.Width, st.Height)
		fmt.Fprintf(cmd.ErrOrStderr(), "==Elevation: min %.2f m, max %.2f m, mean %.2f m\n", st.Min, st.Max, st.Mean)
		fmt.Fprintf(cmd.ErrOrStderr(), "==No data pixels: %d\n", st.NoData)
	}

	out, err := tr.Transcode(src)
	if err != nil {
		return err
	}

	if output == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}

	if err := os.WriteFile(output, out, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Output PNG: %s\n", output)
	return nil
}

// checkPipe refuses binary output to a terminal or to a stream that cannot be inspected
func checkPipe(f *os.File) error {
	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("standard output is not usable: %w", err)
	}
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return fmt.Errorf("didn't specify output file and standard output is a terminal")
	}
	return nil
}
