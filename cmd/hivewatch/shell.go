package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	jsoniter "github.com/json-iterator/go"

	"github.com/xtxerr/hivewatch/internal/client"
	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/event"
	"github.com/xtxerr/hivewatch/internal/wire"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// command is one shell command.
type command struct {
	name  string
	usage string
	help  string
	run   func(ctx context.Context, sh *shell, args []string) error
}

// shell executes commands against a connected client.
type shell struct {
	client  *client.Client
	out     io.Writer
	timeout time.Duration
	exited  bool

	commands []command
}

func newShell(c *client.Client, out io.Writer) *shell {
	sh := &shell{client: c, out: out, timeout: 30 * time.Second}
	sh.commands = []command{
		{"stats", "stats", "store totals, window counts and value distributions", cmdStats},
		{"species", "species <name> [limit]", "events of one species", cmdSpecies},
		{"habitat", "habitat <habitat> <event> [limit]", "events of one kind in a habitat", cmdHabitat},
		{"bloom", "bloom <window> <species> <role> <event>", "membership probe over a window", cmdBloom},
		{"minwise", "minwise <window> <species> <role> <age> [sample]", "similarity of a probe insect to a window", cmdMinWise},
		{"cantidad", "cantidad <window>", "distinct species in a window", cmdCantidad},
		{"dgim", "dgim <window> [event]", "approximate count of one event kind in a window", cmdDGIM},
		{"recent", "recent <seconds|duration>", "raw events from a trailing period", cmdRecent},
		{"raw", "raw <type> [json params]", "send any query and print the JSON reply", cmdRaw},
		{"help", "help", "list commands", cmdHelp},
		{"exit", "exit", "leave the shell", cmdExit},
	}
	return sh
}

func (sh *shell) lookup(name string) (command, bool) {
	if name == "quit" {
		name = "exit"
	}
	for _, c := range sh.commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// execute runs one input line.
func (sh *shell) execute(line string) error {
	args := splitArgs(line)
	if len(args) == 0 {
		return nil
	}
	cmd, ok := sh.lookup(strings.ToLower(args[0]))
	if !ok {
		return fmt.Errorf("unknown command %q (try help)", args[0])
	}

	if cmd.name == "raw" {
		args = rawArgs(line)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sh.timeout)
	defer cancel()
	return cmd.run(ctx, sh, args[1:])
}

// complete suggests command names for the first word.
func (sh *shell) complete(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	s := make([]prompt.Suggest, 0, len(sh.commands))
	for _, c := range sh.commands {
		s = append(s, prompt.Suggest{Text: c.name, Description: c.help})
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

// =============================================================================
// Argument Parsing
// =============================================================================

// splitArgs splits on whitespace, keeping double-quoted runs together.
func splitArgs(line string) []string {
	var (
		args  []string
		cur   strings.Builder
		quote bool
		have  bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quote = !quote
			have = true
		case !quote && (r == ' ' || r == '\t'):
			if have {
				args = append(args, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteRune(r)
			have = true
		}
	}
	if have {
		args = append(args, cur.String())
	}
	return args
}

// rawArgs splits "raw <type> <json>" into three parts and leaves the JSON
// untouched.
func rawArgs(line string) []string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fields
	}
	rest := strings.TrimSpace(line)
	for _, f := range fields[:2] {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, f))
	}
	if rest == "" {
		return fields[:2]
	}
	return []string{fields[0], fields[1], rest}
}

// parseKind accepts the wire spelling plus predator_attack and
// predator-attack, which need no quoting.
func parseKind(s string) (event.Kind, error) {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(s))
	return event.ParseKind(s)
}

func parseLimit(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, nil
	}
	n, err := strconv.Atoi(args[i])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer, got %q", args[i])
	}
	return n, nil
}

func parsePeriod(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("period must be seconds or a duration like 90s, got %q", s)
	}
	return d, nil
}

func need(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

// =============================================================================
// Commands
// =============================================================================

func cmdStats(ctx context.Context, sh *shell, args []string) error {
	st, err := sh.client.Stats(ctx)
	if err != nil {
		return err
	}
	renderStats(sh.out, st)
	return nil
}

func cmdSpecies(ctx context.Context, sh *shell, args []string) error {
	if err := need(args, 1, "species <name> [limit]"); err != nil {
		return err
	}
	limit, err := parseLimit(args, 1)
	if err != nil {
		return err
	}
	events, err := sh.client.Species(ctx, args[0], limit)
	if err != nil {
		return err
	}
	renderEvents(sh.out, events)
	return nil
}

func cmdHabitat(ctx context.Context, sh *shell, args []string) error {
	if err := need(args, 2, "habitat <habitat> <event> [limit]"); err != nil {
		return err
	}
	kind, err := parseKind(args[1])
	if err != nil {
		return err
	}
	limit, err := parseLimit(args, 2)
	if err != nil {
		return err
	}
	events, err := sh.client.HabitatEvent(ctx, args[0], kind, limit)
	if err != nil {
		return err
	}
	renderEvents(sh.out, events)
	return nil
}

func cmdBloom(ctx context.Context, sh *shell, args []string) error {
	if err := need(args, 4, "bloom <window> <species> <role> <event>"); err != nil {
		return err
	}
	kind, err := parseKind(args[3])
	if err != nil {
		return err
	}
	res, err := sh.client.Bloom(ctx, args[0], args[1], args[2], kind)
	if err != nil {
		return err
	}
	renderBloom(sh.out, res)
	return nil
}

func cmdMinWise(ctx context.Context, sh *shell, args []string) error {
	usage := "minwise <window> <species> <role> <age> [sample]"
	if err := need(args, 4, usage); err != nil {
		return err
	}
	age, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("age must be an integer, got %q", args[3])
	}
	sample, err := parseLimit(args, 4)
	if err != nil {
		return err
	}
	res, err := sh.client.MinWise(ctx, args[0], args[1], args[2], age, sample)
	if err != nil {
		return err
	}
	renderMinWise(sh.out, res)
	return nil
}

func cmdCantidad(ctx context.Context, sh *shell, args []string) error {
	if err := need(args, 1, "cantidad <window>"); err != nil {
		return err
	}
	res, err := sh.client.Cantidad(ctx, args[0])
	if err != nil {
		return err
	}
	renderCantidad(sh.out, res)
	return nil
}

func cmdDGIM(ctx context.Context, sh *shell, args []string) error {
	if err := need(args, 1, "dgim <window> [event]"); err != nil {
		return err
	}
	var kind event.Kind
	if len(args) > 1 {
		k, err := parseKind(strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		kind = k
	}
	res, err := sh.client.DGIM(ctx, args[0], kind)
	if err != nil {
		return err
	}
	renderDGIM(sh.out, res)
	return nil
}

func cmdRecent(ctx context.Context, sh *shell, args []string) error {
	if err := need(args, 1, "recent <seconds|duration>"); err != nil {
		return err
	}
	period, err := parsePeriod(args[0])
	if err != nil {
		return err
	}
	events, err := sh.client.Recent(ctx, period)
	if err != nil {
		return err
	}
	renderEvents(sh.out, events)
	return nil
}

func cmdRaw(ctx context.Context, sh *shell, args []string) error {
	if err := need(args, 1, "raw <type> [json params]"); err != nil {
		return err
	}
	var params map[string]any
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
			return fmt.Errorf("params must be a JSON object: %w", err)
		}
	}
	resp, err := sh.client.Query(ctx, args[0], params)
	if err != nil {
		return err
	}
	return renderRaw(sh.out, resp)
}

func cmdHelp(ctx context.Context, sh *shell, args []string) error {
	renderHelp(sh.out, sh.commands)
	return nil
}

func cmdExit(ctx context.Context, sh *shell, args []string) error {
	sh.exited = true
	return nil
}

// rawReply is what raw prints.
type rawReply struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

func renderRaw(w io.Writer, resp wire.Response) error {
	reply := rawReply{Status: resp.Status, Data: resp.Data, Message: resp.Message}
	if !resp.OK() && resp.Code != 0 {
		reply.Code = errors.CodeName(resp.Code)
	}
	data, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
