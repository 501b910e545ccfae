package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/mojo-wire/codec"
	"github.com/wippyai/mojo-wire/ipc"
	"github.com/wippyai/mojo-wire/resource"
	"github.com/wippyai/mojo-wire/schema"
	"github.com/wippyai/mojo-wire/system"
	"github.com/wippyai/mojo-wire/system/memsys"
	"github.com/wippyai/mojo-wire/wait"
)

type decodeOptions struct {
	structName  string
	format      string
	handles     uint32
	timeout     time.Duration
	raw         bool
	pipe        bool
	interactive bool
}

var decodeOpts decodeOptions

var decodeCmd = &cobra.Command{
	Use:   "decode [options] FILE",
	Short: "Validate and print an encoded message",
	Long: `Validate an encoded message against a schema struct and print the result.

  FILE "-" reads standard input. By default FILE holds a full message, header
  included; --raw decodes a bare struct. With --pipe the bytes are first sent
  through an in-process message pipe together with --handles fresh pipe
  handles, then received and decoded on the other end.`,
	Example: `wiredump decode --schema api.toml --struct Ping msg.bin
  wiredump decode --schema api.toml --struct Ping --handles 1 --format json msg.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	flags := decodeCmd.Flags()
	flags.StringVarP(&decodeOpts.structName, "struct", "t", "", "Payload struct name")
	flags.StringVarP(&decodeOpts.format, "format", "f", "text", "Output format: text or json")
	flags.Uint32Var(&decodeOpts.handles, "handles", 0, "Number of handles attached to the message")
	flags.DurationVar(&decodeOpts.timeout, "timeout", 5*time.Second, "How long --pipe waits for the message")
	flags.BoolVar(&decodeOpts.raw, "raw", false, "Decode a bare struct without a message header")
	flags.BoolVar(&decodeOpts.pipe, "pipe", false, "Route the message through an in-process message pipe")
	flags.BoolVarP(&decodeOpts.interactive, "interactive", "i", false, "Browse the result in a scrollable viewer")
	_ = decodeCmd.MarkFlagRequired("struct")
}

func readInput(path string, limit int64) ([]byte, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s is larger than max_message_size %s", path, units.BytesSize(float64(limit)))
	}
	return data, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	if decodeOpts.format != "text" && decodeOpts.format != "json" {
		return fmt.Errorf("unknown format %q", decodeOpts.format)
	}
	if decodeOpts.raw && decodeOpts.pipe {
		return fmt.Errorf("--raw and --pipe cannot be combined")
	}
	if decodeOpts.handles > uint32(cfg.Codec.MaxHandles) {
		return fmt.Errorf("--handles %d exceeds max_handles %d", decodeOpts.handles, cfg.Codec.MaxHandles)
	}

	set, err := loadSchema()
	if err != nil {
		return err
	}
	s, err := set.Struct(decodeOpts.structName)
	if err != nil {
		return err
	}
	data, err := readInput(args[0], int64(cfg.Codec.MaxMessageSize))
	if err != nil {
		return err
	}
	logger.Debug("decoding",
		zap.String("file", args[0]),
		zap.String("size", units.BytesSize(float64(len(data)))),
		zap.String("struct", s.Name))

	dec := codec.NewDecoderWithLimits(codec.NewRegistry(), cfg.Codec.Limits())

	var tree node
	var doc any
	switch {
	case decodeOpts.raw:
		v, err := dec.Decode(data, decodeOpts.handles, s)
		if err != nil {
			return err
		}
		tree = describe(s.Name, s, v)
		doc = jsonValue(s, v)
	case decodeOpts.pipe:
		ctx, cancel := context.WithTimeout(cmd.Context(), decodeOpts.timeout)
		defer cancel()
		msg, err := decodeThroughPipe(ctx, dec, s, data, int(decodeOpts.handles))
		if err != nil {
			return err
		}
		tree = describeMessage(msg, s)
		doc = messageJSON(msg, s)
	default:
		msg, err := dec.DecodeMessage(data, decodeOpts.handles, s)
		if err != nil {
			return err
		}
		tree = describeMessage(msg, s)
		doc = messageJSON(msg, s)
	}

	out := cmd.OutOrStdout()
	if decodeOpts.format == "json" {
		return writeJSON(out, doc)
	}

	var b strings.Builder
	renderText(&b, tree, 0)
	if decodeOpts.interactive {
		title := fmt.Sprintf("%s  %s  %s", args[0], s.Name, units.BytesSize(float64(len(data))))
		return runViewer(title, b.String())
	}
	_, err = io.WriteString(out, b.String())
	return err
}

// decodeThroughPipe writes data into one end of a fresh message pipe with
// numHandles attached pipe endpoints, waits for it on the other end and
// decodes what arrives.
func decodeThroughPipe(ctx context.Context, dec *codec.Decoder, s *schema.Struct, data []byte, numHandles int) (msg *codec.Message, err error) {
	core := memsys.New(memsys.OptionsFromConfig(cfg))
	defer func() {
		err = multierr.Append(err, core.Shutdown())
	}()

	tx, rx, err := ipc.CreateMessagePipe(core)
	if err != nil {
		return nil, err
	}
	defer tx.Close()
	defer rx.Close()

	attached := make([]*resource.Handle, 0, numHandles)
	for range numHandles {
		a, b, err := ipc.CreateMessagePipe(core)
		if err != nil {
			closeHandles(attached)
			return nil, err
		}
		b.Close()
		attached = append(attached, a.Handle())
	}
	if err := tx.Write(data, attached); err != nil {
		return nil, fmt.Errorf("write to pipe: %w", err)
	}

	if _, err := wait.Wait(ctx, core, rx.Raw(), system.SignalReadable); err != nil {
		return nil, fmt.Errorf("wait for message: %w", err)
	}
	msg, handles, err := rx.ReadMessage(dec, s)
	if err != nil {
		return nil, err
	}
	logger.Debug("received through pipe", zap.Int("handles", len(handles)))
	closeHandles(handles)
	return msg, nil
}

func closeHandles(handles []*resource.Handle) {
	for _, h := range handles {
		h.Close()
	}
}
