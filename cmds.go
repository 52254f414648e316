package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ogier/pflag"

	"github.com/jeffwilliams/hexcore/internal/app"
	"github.com/jeffwilliams/hexcore/internal/diff"
	"github.com/jeffwilliams/hexcore/internal/pl"
	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/region"
	"github.com/jeffwilliams/hexcore/internal/search"
	"github.com/jeffwilliams/hexcore/internal/task"
)

var (
	optMode       = pflag.StringP("mode", "m", "strings", "find: search mode: strings, sequence, regex, pattern or value")
	optType       = pflag.StringP("type", "t", "", "find: string type (ascii, utf8, utf16le, utf16be, ascii+utf16le, ascii+utf16be) or value type (u8..u64, s8..s64, f32, f64)")
	optMinLength  = pflag.IntP("min-length", "n", 0, "find: shortest string or regex match reported. 0 uses the settings")
	optHexNeedle  = pflag.BoolP("hex", "x", false, "find: the sequence is written as hex bytes")
	optIgnoreCase = pflag.BoolP("ignore-case", "i", false, "find: sequences match regardless of letter case")
	optFullMatch  = pflag.Bool("full-match", false, "find: a regex must match the whole string")
	optNullTerm   = pflag.Bool("null-terminated", false, "find: strings must be followed by a zero")
	optBigEndian  = pflag.Bool("big-endian", false, "find: values are big endian")
	optAligned    = pflag.Bool("aligned", false, "find: values are aligned to their size")
	optAlignment  = pflag.Int("alignment", 1, "find: binary pattern matches start at a multiple of this")
	optExport     = pflag.StringP("export", "e", "text", "find: output format: csv, tsv, json or text")
	optBookmark   = pflag.String("bookmark", "", "find: add each occurrence as a bookmark whose name starts with this")
	optRegion     = pflag.StringP("region", "r", "", "find: search only ADDRESS:SIZE")
	optAlgorithm  = pflag.StringP("algorithm", "a", "", "diff: bytewise, myers or semantic. Empty uses the settings")
	optWindowSize = pflag.Int("window-size", -1, "diff: compare in windows of this many bytes. -1 uses the settings")
	optBase       = pflag.String("base", "", "Base address of the files opened")
)

const progressInterval = 500 * time.Millisecond

type CmdContext struct {
	Args []string
	Out  io.Writer
}

type command struct {
	name      string
	do        func(ctx *CmdContext) error
	shortHelp string
	longHelp  string
}

type commandSet struct {
	commands map[string]command
}

func (c *commandSet) AddCommand(name string, do func(ctx *CmdContext) error, shortHelp, longHelp string) {
	if c.commands == nil {
		c.commands = map[string]command{}
	}

	c.commands[name] = command{
		name:      name,
		do:        do,
		shortHelp: shortHelp,
		longHelp:  longHelp,
	}
}

func (c *commandSet) Command(name string) (cmd command, ok bool) {
	cmd, ok = c.commands[name]
	return
}

// Commands returns the commands sorted by name.
func (c *commandSet) Commands() []command {
	var l []command
	for _, v := range c.commands {
		l = append(l, v)
	}
	sort.Slice(l, func(i, j int) bool { return l[i].name < l[j].name })
	return l
}

var commands commandSet

func init() {
	commands.AddCommand("find", CmdFind, "Search a file",
		"find <file> [what] [max] searches the file with the mode chosen by --mode. The strings mode needs no argument; sequence, regex and pattern take the text, expression or binary pattern to look for, and value takes a number or a min and max. Occurrences are written in the format chosen by --export.")
	commands.AddCommand("diff", CmdDiff, "Compare two files",
		fmt.Sprintf("diff <a> <b> compares two files with the algorithm chosen by --algorithm (%s) and lists the differing regions of each.", strings.Join(diff.Algorithms(), ", ")))
	commands.AddCommand("parse", CmdParse, "Check a pattern source file",
		"parse <source> parses a pattern language source file and prints it in canonical form, or prints the location of the first error.")
	commands.AddCommand("patch", CmdPatch, "Write bytes into a file",
		"patch <file> <address> <hexbytes> writes the bytes at the address and saves the file.")
	commands.AddCommand("project", CmdProject, "Describe a project",
		"project <archive> lists the providers of a project file, their unsaved changes and their bookmarks.")
	commands.AddCommand("help", CmdHelp, "Show help",
		"help [command] lists the commands, or describes one.")
}

type usageError struct {
	cmd string
}

func (e usageError) Error() string {
	c, _ := commands.Command(e.cmd)
	return fmt.Sprintf("usage: %s %s %s", programName, c.name, usageLine(c))
}

// usageLine is the argument synopsis at the start of a command's long help.
func usageLine(c command) string {
	words := strings.Fields(c.longHelp)
	var args []string
	for _, w := range words[1:] {
		if !strings.HasPrefix(w, "<") && !strings.HasPrefix(w, "[") {
			break
		}
		args = append(args, w)
	}
	return strings.Join(args, " ")
}

func parseAddress(s string) (uint64, error) {
	a, err := strconv.ParseUint(strings.ReplaceAll(s, "_", ""), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address '%s'", s)
	}
	return a, nil
}

// parseRegion parses ADDRESS:SIZE.
func parseRegion(s string) (region.Region, error) {
	a, sz, ok := strings.Cut(s, ":")
	if !ok {
		return region.Invalid, fmt.Errorf("invalid region '%s'. Expected ADDRESS:SIZE", s)
	}
	addr, err := parseAddress(a)
	if err != nil {
		return region.Invalid, err
	}
	size, err := parseAddress(sz)
	if err != nil {
		return region.Invalid, err
	}
	return region.Region{Address: addr, Size: size}, nil
}

func parseHexBytes(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", "_", "", "0x", "", "0X", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex bytes '%s': %w", s, err)
	}
	return b, nil
}

// openLocation opens the file at loc, or selects an already open provider when loc is #N.
func openLocation(loc string, readOnly bool) (*provider.Provider, error) {
	if strings.HasPrefix(loc, "#") {
		i, err := strconv.Atoi(loc[1:])
		ps := application.Providers()
		if err != nil || i < 0 || i >= len(ps) {
			return nil, fmt.Errorf("no open provider %s; %d are open", loc, len(ps))
		}
		return ps[i], nil
	}

	l, err := ParseLocation(loc)
	if err != nil {
		return nil, err
	}
	p, err := application.Open(l.Backend(readOnly))
	if err != nil {
		return nil, err
	}
	if *optBase != "" {
		base, err := parseAddress(*optBase)
		if err != nil {
			return nil, err
		}
		p.SetBaseAddress(base)
	}
	log(LogCatgProvider, "Opened %s as %s\n", l, p.TypeName())
	return p, nil
}

// reportProgress prints the progress of t to stderr until it finishes, if --progress is set.
func reportProgress(t *task.Task) {
	if !*optProgress {
		return
	}
	sched := application.Tasks.Scheduler()
	var tick func()
	tick = func() {
		if t.Status().Finished() {
			return
		}
		if f := t.Fraction(); f >= 0 {
			fmt.Fprintf(os.Stderr, "%s: %3.0f%%\n", t.Name(), f*100)
		}
		sched.AfterFunc("progress", progressInterval, tick)
	}
	sched.AfterFunc("progress", progressInterval, tick)
}

func await(t *task.Task) error {
	reportProgress(t)
	err := application.Tasks.Await(t)
	application.Tasks.Scheduler().Cancel("progress")
	return err
}

func CmdFind(ctx *CmdContext) error {
	if len(ctx.Args) < 1 {
		return usageError{"find"}
	}
	p, err := openLocation(ctx.Args[0], true)
	if err != nil {
		return err
	}
	s, err := findSettings(ctx.Args[1:])
	if err != nil {
		return err
	}
	var format search.ExportFormat
	if err = format.UnmarshalText([]byte(*optExport)); err != nil {
		return err
	}

	r := p.Region()
	if *optRegion != "" {
		if r, err = parseRegion(*optRegion); err != nil {
			return err
		}
	}

	run := application.StartSearch(p, r, s, nil)
	if err = await(run.Task); err != nil {
		return err
	}
	log(LogCatgSearch, "Found %d occurrences in %s\n", len(run.Occurrences), p.Name())

	if *optBookmark != "" {
		bs := application.Bookmarks(p)
		for i, o := range run.Occurrences {
			bs.Add(app.Bookmark{
				Region: o.Region,
				Name:   fmt.Sprintf("%s%d", *optBookmark, i),
				Color:  app.SearchColor,
			})
		}
	}
	return search.Export(ctx.Out, format, p, run.Occurrences)
}

// findSettings builds the search settings from the options and the arguments after the file.
func findSettings(args []string) (s search.Settings, err error) {
	if err = s.Mode.UnmarshalText([]byte(*optMode)); err != nil {
		return
	}
	if s.Mode != search.ModeStrings && len(args) < 1 {
		err = fmt.Errorf("find --mode %s needs something to look for", s.Mode)
		return
	}

	var st search.StringType
	if *optType != "" && s.Mode != search.ModeValue {
		if err = st.UnmarshalText([]byte(*optType)); err != nil {
			return
		}
	}

	switch s.Mode {
	case search.ModeStrings:
		s.Strings = search.DefaultStrings
		if settings.Search.MinStringLength > 0 {
			s.Strings.MinLength = settings.Search.MinStringLength
		}
		if *optMinLength > 0 {
			s.Strings.MinLength = *optMinLength
		}
		s.Strings.Type = st
		s.Strings.NullTermination = *optNullTerm
	case search.ModeSequence:
		b := []byte(args[0])
		if *optHexNeedle {
			if b, err = parseHexBytes(args[0]); err != nil {
				return
			}
		}
		s.Sequence = search.Sequence{Bytes: b, Type: st, IgnoreCase: *optIgnoreCase}
	case search.ModeRegex:
		s.Regex = search.Regex{
			Pattern:         args[0],
			FullMatch:       *optFullMatch,
			MinLength:       *optMinLength,
			NullTermination: *optNullTerm,
			Type:            st,
		}
	case search.ModeBinaryPattern:
		if s.Binary.Pattern, err = search.ParseBinaryPattern(args[0]); err != nil {
			return
		}
		s.Binary.Alignment = uint64(max(*optAlignment, 1))
	case search.ModeValue:
		if *optType != "" {
			if err = s.Value.Type.UnmarshalText([]byte(*optType)); err != nil {
				return
			}
		}
		s.Value.Min = args[0]
		if len(args) > 1 {
			s.Value.Max = args[1]
		}
		s.Value.BigEndian = *optBigEndian
		s.Value.Aligned = *optAligned
	}
	return
}

func CmdDiff(ctx *CmdContext) error {
	if len(ctx.Args) != 2 {
		return usageError{"diff"}
	}
	pa, err := openLocation(ctx.Args[0], true)
	if err != nil {
		return err
	}
	pb, err := openLocation(ctx.Args[1], true)
	if err != nil {
		return err
	}

	name := settings.Diff.Algorithm
	if *optAlgorithm != "" {
		name = *optAlgorithm
	}
	opts := settings.DiffOptions()
	if *optWindowSize >= 0 {
		opts.WindowSize = uint64(*optWindowSize)
	}
	alg, err := diff.New(name, opts)
	if err != nil {
		return err
	}

	run := application.StartDiff(pa, pb, alg)
	defer run.Close()
	if err = await(run.Task); err != nil {
		return err
	}
	res := run.Job.Result()
	if res == nil {
		return run.Job.Err()
	}
	writeDiff(ctx.Out, pa.Name(), pb.Name(), res)
	return nil
}

// writeDiff lists the differing regions of both sides ordered by address.
func writeDiff(w io.Writer, nameA, nameB string, res *diff.Result) {
	if res.A.Len() == 0 && res.B.Len() == 0 {
		fmt.Fprintf(w, "%s and %s are identical\n", nameA, nameB)
		return
	}
	fmt.Fprintf(w, "--- %s\n+++ %s\n", nameA, nameB)
	for _, side := range []struct {
		mark string
		s    *diff.Side
	}{{"-", &res.A}, {"+", &res.B}} {
		for _, e := range side.s.Entries() {
			fmt.Fprintf(w, "%s 0x%08x %d %s\n", side.mark, e.Region.Address, e.Region.Size, e.Kind)
		}
	}
}

func CmdParse(ctx *CmdContext) error {
	if len(ctx.Args) != 1 {
		return usageError{"parse"}
	}
	src, err := os.ReadFile(ctx.Args[0])
	if err != nil {
		return err
	}
	program, err := pl.ParseSource(string(src))
	if err != nil {
		return fmt.Errorf("%s:%w", ctx.Args[0], err)
	}
	_, err = io.WriteString(ctx.Out, pl.Print(program))
	return err
}

func CmdPatch(ctx *CmdContext) error {
	if len(ctx.Args) != 3 {
		return usageError{"patch"}
	}
	p, err := openLocation(ctx.Args[0], false)
	if err != nil {
		return err
	}
	addr, err := parseAddress(ctx.Args[1])
	if err != nil {
		return err
	}
	data, err := parseHexBytes(ctx.Args[2])
	if err != nil {
		return err
	}

	if err = p.Write(addr, data); err != nil {
		return err
	}
	if err = p.Save(); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "wrote %d bytes at 0x%08x of %s\n", len(data), addr, p.Name())
	return nil
}

func CmdProject(ctx *CmdContext) error {
	if len(ctx.Args) != 1 {
		return usageError{"project"}
	}
	return describeProject(ctx.Out, ctx.Args[0])
}

func CmdHelp(ctx *CmdContext) error {
	if len(ctx.Args) == 0 {
		for _, c := range commands.Commands() {
			fmt.Fprintf(ctx.Out, "%-8s %s\n", c.name, c.shortHelp)
		}
		file := *optSettings
		if file == "" {
			file = SettingsConfigFile()
		}
		fmt.Fprintf(ctx.Out, "\nSettings are read from %s", file)
		if !settingsLoadedFromFile {
			fmt.Fprintf(ctx.Out, " (not present)")
		}
		fmt.Fprintln(ctx.Out)
		return nil
	}
	c, ok := commands.Command(ctx.Args[0])
	if !ok {
		return fmt.Errorf("no help for '%s'", ctx.Args[0])
	}
	fmt.Fprintf(ctx.Out, "%s\n", c.longHelp)
	return nil
}
