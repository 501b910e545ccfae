package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/wippyai/mojo-wire/codec"
)

var layoutFormat string

var layoutCmd = &cobra.Command{
	Use:   "layout [options] [STRUCT...]",
	Short: "Show the packed wire layout of schema structs",
	Long: `Show field offsets, sizes and version sizes of structs in the schema file.

  Without arguments every struct is shown in file order.`,
	Example: `wiredump layout --schema api.toml
  wiredump layout --schema api.toml --format json Ping Pong`,
	RunE: runLayout,
}

func init() {
	layoutCmd.Flags().StringVarP(&layoutFormat, "format", "f", "text", "Output format: text or json")
}

func runLayout(cmd *cobra.Command, args []string) error {
	set, err := loadSchema()
	if err != nil {
		return err
	}
	names := args
	if len(names) == 0 {
		names = set.Names()
	}

	reg := codec.NewRegistry()
	layouts := make([]*codec.Layout, 0, len(names))
	for _, name := range names {
		s, err := set.Struct(name)
		if err != nil {
			return err
		}
		l, err := reg.Layout(s)
		if err != nil {
			return fmt.Errorf("layout %s: %w", name, err)
		}
		layouts = append(layouts, l)
	}

	out := cmd.OutOrStdout()
	switch layoutFormat {
	case "json":
		return writeJSON(out, layouts)
	case "text":
		for i, l := range layouts {
			if i > 0 {
				fmt.Fprintln(out)
			}
			writeLayout(out, l)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", layoutFormat)
	}
}

func writeLayout(out io.Writer, l *codec.Layout) {
	fmt.Fprintf(out, "%s %s\n", paint(titleStyle, l.Name),
		paint(helpStyle, fmt.Sprintf("%d bytes (%s payload)", l.Size, units.BytesSize(float64(l.PayloadSize)))))

	rows := make([][]string, 0, len(l.Fields))
	for _, f := range l.Fields {
		bit := ""
		if f.Kind == "bitfield" {
			bit = strconv.Itoa(int(f.Bit))
		}
		name, typ := f.Name, f.Type
		if f.Nullable {
			typ += "?"
		}
		if f.HasValue {
			name += " (has value)"
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(f.Offset), 10),
			strconv.FormatUint(uint64(f.Size), 10),
			bit,
			paint(nameStyle, name),
			paint(typeStyle, typ),
			f.Kind,
			strconv.FormatUint(uint64(f.MinVersion), 10),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("OFFSET", "SIZE", "BIT", "FIELD", "TYPE", "KIND", "SINCE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(out, t.Render())

	for _, v := range l.Versions {
		fmt.Fprintf(out, "  v%d: %d bytes\n", v.Version, v.Size)
	}
}
