// Package console drives an annotator from text commands, one per line.
package console

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/menta2k/bbox-annotator/pkg/session"
	"github.com/menta2k/bbox-annotator/pkg/surface"
	"github.com/menta2k/bbox-annotator/pkg/types"
)

// ErrQuit is returned by Execute for the quit command.
var ErrQuit = errors.New("console: quit")

// Pointer is the annotation surface as seen by the console
type Pointer interface {
	Press(p types.Point)
	Release(p types.Point)
	Drag(id surface.AnchorID, p types.Point)
	Reset()
	State() surface.State
	ExportBox() (types.NormalizedBox, bool)
}

// Keys receives key presses
type Keys interface {
	HandleKey(ctx context.Context, key string) (session.Result, bool, error)
}

// Pusher is a momentary button
type Pusher interface {
	Press() bool
	Release()
}

// Handlers are the optional actions the console can trigger. Nil fields
// disable their commands.
type Handlers struct {
	Keys     Keys
	Button   Pusher
	Suggest  func(ctx context.Context) (bool, error)
	Snapshot func() (string, error)
}

type command struct {
	usage string
	run   func(ctx context.Context, args []string) (string, error)
}

// Console parses and executes commands
type Console struct {
	pointer  Pointer
	handlers Handlers
	commands map[string]command
	logger   *zap.Logger
}

// Option configures a Console
type Option func(*Console)

// WithLogger sets the console's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Console) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a console over p.
func New(p Pointer, h Handlers, opts ...Option) *Console {
	c := &Console{pointer: p, handlers: h, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.commands = map[string]command{
		"press":    {"press X Y", c.pointAction(p.Press)},
		"release":  {"release X Y", c.pointAction(p.Release)},
		"click":    {"click X Y", c.pointAction(func(pt types.Point) { p.Press(pt); p.Release(pt) })},
		"drag":     {"drag 1|2 X Y", c.drag},
		"reset":    {"reset", c.reset},
		"state":    {"state", c.state},
		"export":   {"export", c.export},
		"key":      {"key NAME", c.key},
		"space":    {"space", func(ctx context.Context, _ []string) (string, error) { return c.key(ctx, []string{"space"}) }},
		"push":     {"push", c.push},
		"suggest":  {"suggest", c.suggest},
		"snapshot": {"snapshot", c.snapshot},
		"help":     {"help", c.help},
		"quit":     {"quit", func(context.Context, []string) (string, error) { return "", ErrQuit }},
	}
	c.commands["exit"] = c.commands["quit"]
	return c
}

// Run executes each line of r until EOF, quit, or ctx is cancelled. Command
// errors are written to w and do not stop the loop.
func (c *Console) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := c.Execute(ctx, scanner.Text())
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			c.logger.Debug("command failed", zap.String("line", scanner.Text()), zap.Error(err))
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Fprintln(w, out)
		}
	}
	return scanner.Err()
}

// Execute runs one command line. Blank lines and lines starting with # are
// ignored.
func (c *Console) Execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return "", nil
	}
	cmd, ok := c.commands[strings.ToLower(fields[0])]
	if !ok {
		return "", fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return cmd.run(ctx, fields[1:])
}

func (c *Console) pointAction(fn func(types.Point)) func(context.Context, []string) (string, error) {
	return func(_ context.Context, args []string) (string, error) {
		pt, err := parsePoint(args)
		if err != nil {
			return "", err
		}
		fn(pt)
		return c.pointer.State().String(), nil
	}
}

func (c *Console) drag(_ context.Context, args []string) (string, error) {
	if len(args) != 3 {
		return "", errors.New("usage: drag 1|2 X Y")
	}
	var id surface.AnchorID
	switch args[0] {
	case "1":
		id = surface.First
	case "2":
		id = surface.Second
	default:
		return "", fmt.Errorf("unknown anchor %q", args[0])
	}
	pt, err := parsePoint(args[1:])
	if err != nil {
		return "", err
	}
	c.pointer.Drag(id, pt)
	return c.pointer.State().String(), nil
}

func (c *Console) reset(context.Context, []string) (string, error) {
	c.pointer.Reset()
	return c.pointer.State().String(), nil
}

func (c *Console) state(context.Context, []string) (string, error) {
	return c.pointer.State().String(), nil
}

func (c *Console) export(context.Context, []string) (string, error) {
	box, ok := c.pointer.ExportBox()
	if !ok {
		return "no box", nil
	}
	data, err := json.Marshal(box)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Console) key(ctx context.Context, args []string) (string, error) {
	if c.handlers.Keys == nil {
		return "", errors.New("no session attached")
	}
	if len(args) != 1 {
		return "", errors.New("usage: key NAME")
	}
	res, handled, err := c.handlers.Keys.HandleKey(ctx, args[0])
	if !handled {
		return "ignored", nil
	}
	return describe(res), err
}

func (c *Console) push(context.Context, []string) (string, error) {
	if c.handlers.Button == nil {
		return "", errors.New("no button attached")
	}
	fired := c.handlers.Button.Press()
	c.handlers.Button.Release()
	if !fired {
		return "button already held", nil
	}
	return "pushed", nil
}

func (c *Console) suggest(ctx context.Context, _ []string) (string, error) {
	if c.handlers.Suggest == nil {
		return "", errors.New("assist is disabled")
	}
	ok, err := c.handlers.Suggest(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "no suggestion", nil
	}
	return c.pointer.State().String(), nil
}

func (c *Console) snapshot(context.Context, []string) (string, error) {
	if c.handlers.Snapshot == nil {
		return "", errors.New("no renderer attached")
	}
	return c.handlers.Snapshot()
}

func (c *Console) help(context.Context, []string) (string, error) {
	usages := make([]string, 0, len(c.commands))
	for name, cmd := range c.commands {
		if name == "exit" {
			continue
		}
		usages = append(usages, cmd.usage)
	}
	sort.Strings(usages)
	return strings.Join(usages, "\n"), nil
}

func describe(res session.Result) string {
	var b strings.Builder
	switch {
	case res.Submitted:
		b.WriteString("submitted")
	case res.SubmitErr != nil:
		fmt.Fprintf(&b, "submit failed (%v)", res.SubmitErr)
	default:
		b.WriteString("skipped")
	}
	if res.Next.URI != "" {
		fmt.Fprintf(&b, ", next %s", res.Next.URI)
	}
	return b.String()
}

func parsePoint(args []string) (types.Point, error) {
	if len(args) != 2 {
		return types.Point{}, errors.New("expected X Y")
	}
	x, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return types.Point{}, fmt.Errorf("bad x %q: %w", args[0], err)
	}
	y, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return types.Point{}, fmt.Errorf("bad y %q: %w", args[1], err)
	}
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return types.Point{}, fmt.Errorf("coordinates must be finite, got %s %s", args[0], args[1])
	}
	return types.Point{X: x, Y: y}, nil
}
