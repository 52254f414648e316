package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	"github.com/ddkwork/golibrary/mylog"
	"github.com/ogier/pflag"

	"github.com/jeffwilliams/hexcore/internal/app"
	adebug "github.com/jeffwilliams/hexcore/internal/debug"
	"github.com/jeffwilliams/hexcore/internal/diff"
)

const programName = "hexcore"

var (
	optProfile        = pflag.StringP("profile", "p", "", "Profile the code (cpu or heap). The profile file location is printed to stdout.")
	optPprof          = pflag.Bool("pprof", false, "Serve net/http/pprof on localhost:6060 while running")
	optDebugStdout    = pflag.BoolP("dbg", "b", false, "Print debug logs to stdout")
	optSettings       = pflag.StringP("settings", "s", "", "Read settings from this file instead of the default settings file")
	optSampleSettings = pflag.Bool("sample-settings", false, "Print a sample settings file and exit")
	optLoadProject    = pflag.StringP("load", "l", "", "Open the providers and bookmarks of this project before running the command")
	optSaveProject    = pflag.StringP("save", "w", "", "Save the open providers and bookmarks to this project after running the command")
	optProgress       = pflag.Bool("progress", false, "Report the progress of long searches and comparisons on stderr")
	optDumpLog        = pflag.String("dump-log", "", "On exit, write the recent debug log of these comma separated categories, or 'all', to stderr")
)

var (
	application *app.App
	debugLog    *adebug.DebugLog = adebug.New(100)
	exitCode    int
)

func main() {
	pflag.Usage = usage
	// A panic inside run leaves the exit code at 1.
	exitCode = 1
	mylog.Call(func() { exitCode = run() })
	Exit(exitCode)
}

func run() int {
	parseAndValidateOptions()

	if *optSampleSettings {
		fmt.Print(GenerateSampleSettings())
		return 0
	}

	if *optProfile != "" {
		mylog.Check(startProfiling(ProfileCategory(*optProfile)))
	}
	if *optPprof {
		startPprofDebugServer()
	}
	if *optDebugStdout {
		debugLog.SetOutput(os.Stdout)
	}
	initDebugging()
	if *optDumpLog != "" {
		defer dumpDebugLog(*optDumpLog)
	}
	LoadSettings()
	LoadSshKeys()

	application = app.New(settings.AppOptions())
	defer func() {
		if err := application.Shutdown(); err != nil {
			log(LogCatgApp, "Shutdown: %v\n", err)
		}
	}()
	cancelOnInterrupt()

	if err := runCommandLine(pflag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		return 1
	}
	return 0
}

func runCommandLine(args []string) error {
	if *optLoadProject != "" {
		if err := loadProject(*optLoadProject); err != nil {
			return err
		}
	}

	if len(args) > 0 {
		cmd, ok := commands.Command(args[0])
		if !ok {
			return fmt.Errorf("unknown command '%s'. Run '%s help' for a list of commands", args[0], programName)
		}
		ctx := &CmdContext{Args: args[1:], Out: os.Stdout}
		if err := cmd.do(ctx); err != nil {
			return err
		}
	}

	if *optSaveProject != "" {
		return saveProject(*optSaveProject)
	}
	return nil
}

func parseAndValidateOptions() {
	pflag.Parse()

	if pflag.NArg() == 0 && !*optSampleSettings && *optLoadProject == "" {
		usage()
		Exit(2)
	}
}

// cancelOnInterrupt cancels the running tasks on the first interrupt. The command then fails with
// a cancellation error.
func cancelOnInterrupt() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		log(LogCatgApp, "Interrupted\n")
		application.Tasks.CancelAll()
	}()
}

var (
	settingsLoadedFromFile bool
	settings               = Settings{
		Provider: ProviderSettings{},
		Search: SearchSettings{
			MinStringLength: 5,
		},
		Diff: DiffSettings{
			Algorithm: diff.DefaultAlgorithm,
		},
		Ssh: SshSettings{
			Shell:     "sh",
			CacheSize: 5,
		},
	}
)

// LoadSettings reads the settings file named by --settings, or the default one if it exists.
func LoadSettings() {
	path := *optSettings
	if path == "" {
		path = SettingsConfigFile()
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			log(LogCatgConf, "No settings file %s; using defaults\n", path)
			settings.Apply()
			return
		}
	}

	mylog.Check(LoadSettingsFromFile(path, &settings))
	log(LogCatgConf, "Loaded settings from config file %s\n", path)
	settingsLoadedFromFile = true
	settings.Apply()
}

func Exit(code int) {
	stopProfiling()
	os.Exit(code)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Inspect, search, compare and patch binary data.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands.Commands() {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.shortHelp)
	}
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	pflag.PrintDefaults()
}

func log(category, message string, args ...interface{}) {
	debugLog.Addf(category, message, args...)
}
