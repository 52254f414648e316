package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	_ "net/http/pprof"

	"github.com/ddkwork/golibrary/mylog"

	"github.com/jeffwilliams/hexcore/internal/app"
	"github.com/jeffwilliams/hexcore/internal/diff"
	"github.com/jeffwilliams/hexcore/internal/pattern"
	"github.com/jeffwilliams/hexcore/internal/pl"
	"github.com/jeffwilliams/hexcore/internal/project"
	"github.com/jeffwilliams/hexcore/internal/provider"
	"github.com/jeffwilliams/hexcore/internal/search"
	"github.com/jeffwilliams/hexcore/internal/task"
)

const (
	LogCatgApp      = "Application"
	LogCatgConf     = "Config"
	LogCatgProvider = "Provider"
	LogCatgSearch   = "Search"
	LogCatgDiff     = "Diff"
	LogCatgPattern  = "Pattern"
	LogCatgTasks    = "Tasks"
	LogCatgProject  = "Project"
	LogCatgSsh      = "SSH"
)

var debugLogCategories = []string{
	LogCatgApp,
	LogCatgConf,
	LogCatgProvider,
	LogCatgSearch,
	LogCatgDiff,
	LogCatgPattern,
	LogCatgTasks,
	LogCatgProject,
	LogCatgSsh,
}

func initDebugging() {
	app.Debug = debugLog.Logger(LogCatgApp)
	provider.Debug = debugLog.Logger(LogCatgProvider)
	search.Debug = debugLog.Logger(LogCatgSearch)
	diff.Debug = debugLog.Logger(LogCatgDiff)
	pl.Debug = debugLog.Logger(LogCatgPattern)
	pattern.Debug = debugLog.Logger(LogCatgPattern)
	task.Debug = debugLog.Logger(LogCatgTasks)
	project.Debug = debugLog.Logger(LogCatgProject)
}

func startPprofDebugServer() {
	go func() {
		mylog.Check(http.ListenAndServe("localhost:6060", nil))
	}()
}

// dumpDebugLog writes the retained entries of the named categories to stderr.
func dumpDebugLog(which string) {
	catgs := debugLogCategories
	if which != "all" {
		catgs = strings.Split(which, ",")
	}
	fmt.Fprint(os.Stderr, debugLog.String(catgs...))
}
