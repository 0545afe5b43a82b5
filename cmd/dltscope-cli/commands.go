package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"

	"github.com/tinytelemetry/dltscope/internal/model"
	"github.com/tinytelemetry/dltscope/internal/plot"
)

// client is the slice of the socket RPC client the commands use.
type client interface {
	ListFiles() ([]model.FileInfo, error)
	GetFile(id string) (model.FileInfo, error)
	LoadFile(path string) (model.FileInfo, error)
	RemoveFile(id string) error
	Tree(id string) ([]model.AppTree, error)
	Paths(id, app, ctx string) ([]string, error)
	Fields(id, app, ctx, path string) ([]string, error)
	Series(req model.SeriesRequest) (model.Series, error)
	Export(id, format string) ([]byte, error)
	LoadSchema(path string) (model.SchemaInfo, error)
	Schema() (model.SchemaInfo, error)
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	GetSchemaDescription() (string, error)
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(c client, args []string, out io.Writer) error
}

var commands []command

func init() {
	commands = []command{
		{"files", "files", "list loaded files", runFiles},
		{"load", "load [--wait] <path>...", "load DLT files", runLoad},
		{"unload", "unload <file>", "drop a loaded file", runUnload},
		{"tree", "tree <file>", "show apps, contexts and message types", runTree},
		{"paths", "paths <file> <app> <ctx>", "list key paths", runPaths},
		{"fields", "fields <file> <app> <ctx> <path>", "list plottable fields", runFields},
		{"series", "series [flags] <file> <app> <ctx> <path> <field>", "print a time series", runSeries},
		{"plot", "plot [flags] <file> <app> <ctx> <path> <field>", "render a time series chart", runPlot},
		{"export", "export [-f format] [-o out] <file>", "export the decoded store", runExport},
		{"schema", "schema [path]", "show or load the message schema", runSchema},
		{"sql", "sql [--describe] <query>", "run read-only SQL on the record index", runSQL},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	greenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	redStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	yellowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

var errUsage = errors.New("usage")

func usageError(cmd string) error {
	c, _ := lookupCommand(cmd)
	return fmt.Errorf("%w: dltscope-cli %s", errUsage, c.usage)
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// resolveFile accepts a file id, a path, or an unambiguous base name.
func resolveFile(c client, arg string) (string, error) {
	files, err := c.ListFiles()
	if err != nil {
		return "", err
	}
	abs, _ := filepath.Abs(arg)
	var byName []string
	for _, f := range files {
		if f.ID == arg || f.Path == arg || f.Path == abs {
			return f.ID, nil
		}
		if filepath.Base(f.Path) == arg {
			byName = append(byName, f.ID)
		}
	}
	switch len(byName) {
	case 1:
		return byName[0], nil
	case 0:
		return "", fmt.Errorf("file not loaded: %s", arg)
	default:
		return "", fmt.Errorf("%q matches %d loaded files; use the file id", arg, len(byName))
	}
}

func statusText(s model.FileStatus) string {
	switch s {
	case model.FileReady:
		return greenStyle.Render(string(s))
	case model.FileFailed:
		return redStyle.Render(string(s))
	default:
		return yellowStyle.Render(string(s))
	}
}

func runFiles(c client, args []string, out io.Writer) error {
	if len(args) != 0 {
		return usageError("files")
	}
	files, err := c.ListFiles()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no files loaded"))
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATUS\tRECORDS\tROWS\tID")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", filepath.Base(f.Path), f.Status, f.Records, f.Stats.Rows, f.ID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, f := range files {
		if f.Error != "" {
			fmt.Fprintf(out, "%s %s: %s\n", redStyle.Render("●"), filepath.Base(f.Path), f.Error)
		}
		for _, w := range f.Warnings {
			fmt.Fprintf(out, "%s %s: %s\n", yellowStyle.Render("●"), filepath.Base(f.Path), w)
		}
	}
	return nil
}

// waitPoll is the GetFile polling interval of load --wait.
var waitPoll = 200 * time.Millisecond

func runLoad(c client, args []string, out io.Writer) error {
	fs := newFlagSet("load")
	wait := fs.BoolP("wait", "w", false, "wait until every file is decoded")
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		return usageError("load")
	}

	var failed int
	for _, path := range fs.Args() {
		info, err := c.LoadFile(path)
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", redStyle.Render("●"), path, err)
			failed++
			continue
		}
		if *wait {
			for info.Status == model.FileLoading {
				time.Sleep(waitPoll)
				if info, err = c.GetFile(info.ID); err != nil {
					return err
				}
			}
		}
		fmt.Fprintf(out, "%s %s  %s\n", statusText(info.Status), filepath.Base(info.Path), dimStyle.Render(info.ID))
		if info.Status == model.FileFailed {
			fmt.Fprintf(out, "  %s\n", info.Error)
			failed++
		}
		for _, w := range info.Warnings {
			fmt.Fprintf(out, "  %s\n", yellowStyle.Render(w))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, fs.NArg())
	}
	return nil
}

func runUnload(c client, args []string, out io.Writer) error {
	if len(args) != 1 {
		return usageError("unload")
	}
	id, err := resolveFile(c, args[0])
	if err != nil {
		return err
	}
	if err := c.RemoveFile(id); err != nil {
		return err
	}
	fmt.Fprintf(out, "removed %s\n", args[0])
	return nil
}

func runTree(c client, args []string, out io.Writer) error {
	if len(args) != 1 {
		return usageError("tree")
	}
	id, err := resolveFile(c, args[0])
	if err != nil {
		return err
	}
	tree, err := c.Tree(id)
	if err != nil {
		return err
	}
	for _, app := range tree {
		fmt.Fprintln(out, boldStyle.Render(app.AppID))
		for _, ctx := range app.Contexts {
			fmt.Fprintf(out, "  %s\n", ctx.ContextID)
			for _, t := range ctx.Types {
				fmt.Fprintf(out, "    %s %s\n", t.MessageType, dimStyle.Render(fmt.Sprintf("(%d)", t.Records)))
			}
		}
	}
	return nil
}

func runPaths(c client, args []string, out io.Writer) error {
	if len(args) != 3 {
		return usageError("paths")
	}
	id, err := resolveFile(c, args[0])
	if err != nil {
		return err
	}
	paths, err := c.Paths(id, args[1], args[2])
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
	return nil
}

func runFields(c client, args []string, out io.Writer) error {
	if len(args) != 4 {
		return usageError("fields")
	}
	id, err := resolveFile(c, args[0])
	if err != nil {
		return err
	}
	fields, err := c.Fields(id, args[1], args[2], args[3])
	if err != nil {
		return err
	}
	for _, f := range fields {
		fmt.Fprintln(out, f)
	}
	return nil
}

// seriesArgs parses the shared <file> <app> <ctx> <path> <field> arguments.
func seriesArgs(c client, cmd string, fs *pflag.FlagSet, args []string) (model.SeriesRequest, error) {
	maxPoints := fs.Int("max-points", 0, "downsample cap (0 uses the service default, -1 disables)")
	if err := fs.Parse(args); err != nil || fs.NArg() != 5 {
		return model.SeriesRequest{}, usageError(cmd)
	}
	id, err := resolveFile(c, fs.Arg(0))
	if err != nil {
		return model.SeriesRequest{}, err
	}
	return model.SeriesRequest{
		FileID:    id,
		AppID:     fs.Arg(1),
		ContextID: fs.Arg(2),
		Path:      fs.Arg(3),
		Field:     fs.Arg(4),
		MaxPoints: *maxPoints,
	}, nil
}

func runSeries(c client, args []string, out io.Writer) error {
	fs := newFlagSet("series")
	unix := fs.Bool("unix", false, "print x as unix seconds")
	req, err := seriesArgs(c, "series", fs, args)
	if err != nil {
		return err
	}
	s, err := c.Series(req)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TIME\t%s\n", strings.ToUpper(s.Field))
	for i := range s.X {
		x := strconv.FormatFloat(s.X[i], 'f', -1, 64)
		if !*unix {
			x = unixToTime(s.X[i]).Format("2006-01-02 15:04:05.000000")
		}
		fmt.Fprintf(tw, "%s\t%s\n", x, strconv.FormatFloat(s.Y[i], 'g', -1, 64))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if s.Total > s.Len() {
		fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("%d of %d points", s.Len(), s.Total)))
	}
	return nil
}

func unixToTime(sec float64) time.Time {
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9)).UTC()
}

func runPlot(c client, args []string, out io.Writer) error {
	fs := newFlagSet("plot")
	output := fs.StringP("output", "o", "", "output file (.png or .svg)")
	title := fs.String("title", "", "chart title (default: path and field)")
	width := fs.Int("width", 0, "chart width in pixels")
	height := fs.Int("height", 0, "chart height in pixels")
	req, err := seriesArgs(c, "plot", fs, args)
	if err != nil {
		return err
	}
	if *output == "" {
		*output = sanitizeFileName(req.Field) + ".png"
	}
	format, err := plot.FormatForPath(*output)
	if err != nil {
		return err
	}
	s, err := c.Series(req)
	if err != nil {
		return err
	}
	if *title == "" {
		*title = s.Path + " > " + s.Field
	}

	f, err := os.Create(*output)
	if err != nil {
		return err
	}
	if err := plot.Render(f, s, format, plot.Options{Title: *title, Width: *width, Height: *height}); err != nil {
		f.Close()
		os.Remove(*output)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s %s\n", *output, dimStyle.Render(fmt.Sprintf("(%d points)", s.Len())))
	return nil
}

func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, s)
}

func runExport(c client, args []string, out io.Writer) error {
	fs := newFlagSet("export")
	format := fs.StringP("format", "f", "", "json, yaml, json.zst or yaml.zst (default: from -o, else json)")
	output := fs.StringP("output", "o", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return usageError("export")
	}
	if *format == "" && *output != "" {
		*format = exportFormatFor(*output)
	}
	id, err := resolveFile(c, fs.Arg(0))
	if err != nil {
		return err
	}
	data, err := c.Export(id, *format)
	if err != nil {
		return err
	}
	if *output == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s %s\n", *output, dimStyle.Render(fmt.Sprintf("(%d bytes)", len(data))))
	return nil
}

// exportFormatFor guesses the export format from an output file name.
func exportFormatFor(path string) string {
	name := strings.ToLower(filepath.Base(path))
	var suffix string
	if strings.HasSuffix(name, ".zst") {
		suffix = ".zst"
		name = strings.TrimSuffix(name, ".zst")
	}
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return "yaml" + suffix
	default:
		return "json" + suffix
	}
}

func runSchema(c client, args []string, out io.Writer) error {
	var info model.SchemaInfo
	var err error
	switch len(args) {
	case 0:
		info, err = c.Schema()
	case 1:
		info, err = c.LoadSchema(args[0])
	default:
		return usageError("schema")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", boldStyle.Render("codec:"), info.Codec)
	if info.Path != "" {
		fmt.Fprintf(out, "%s %s\n", boldStyle.Render("path:"), info.Path)
	}
	fmt.Fprintf(out, "%s %s\n", boldStyle.Render("namespace:"), info.Namespace)
	if len(info.Types) == 0 {
		fmt.Fprintln(out, dimStyle.Render("no message types"))
		return nil
	}
	fmt.Fprintln(out, boldStyle.Render("types:"))
	for _, t := range info.Types {
		fmt.Fprintf(out, "  %s\n", t)
	}
	return nil
}

func runSQL(c client, args []string, out io.Writer) error {
	fs := newFlagSet("sql")
	fs.SetInterspersed(false)
	describe := fs.Bool("describe", false, "describe the SQL tables")
	if err := fs.Parse(args); err != nil {
		return usageError("sql")
	}
	if *describe {
		desc, err := c.GetSchemaDescription()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, desc)
		return nil
	}
	if fs.NArg() == 0 {
		return usageError("sql")
	}
	rows, err := c.ExecuteQuery(strings.Join(fs.Args(), " "))
	if err != nil {
		return err
	}
	return printRows(out, rows)
}

func printRows(out io.Writer, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		fmt.Fprintln(out, dimStyle.Render("(0 rows)"))
		return nil
	}
	// Column order is not preserved across JSON; sort for stable output.
	var cols []string
	seen := map[string]bool{}
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	for _, r := range rows {
		cells := make([]string, len(cols))
		for i, col := range cols {
			if v, ok := r[col]; ok && v != nil {
				cells[i] = fmt.Sprint(v)
			} else {
				cells[i] = "NULL"
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("(%d rows)", len(rows))))
	return nil
}
