package main

import (
	"fmt"
	"io"

	"github.com/jeffwilliams/hexcore/internal/project"
)

// projectLayout is stored in the projects this program saves. A project loaded with --load keeps
// its own layout when saved again.
var projectLayout = "cli"

func loadProject(file string) error {
	ar, err := project.Load(application, file)
	if ar == nil {
		return err
	}
	if err != nil {
		return fmt.Errorf("loading project %s: %w", file, err)
	}
	if ar.Manifest.Layout != "" {
		projectLayout = ar.Manifest.Layout
	}
	log(LogCatgProject, "Loaded %d providers from %s\n", len(application.Providers()), file)
	return nil
}

func saveProject(file string) error {
	if err := project.Save(application, file, projectLayout); err != nil {
		return fmt.Errorf("saving project %s: %w", file, err)
	}
	log(LogCatgProject, "Saved %d providers to %s\n", len(application.Providers()), file)
	return nil
}

func describeProject(w io.Writer, file string) error {
	ar, err := project.Open(file)
	if err != nil {
		return err
	}
	writeProject(w, ar)
	return nil
}

func writeProject(w io.Writer, ar *project.Archive) {
	fmt.Fprintf(w, "version %d, layout '%s'\n", ar.Manifest.Version, ar.Manifest.Layout)
	for i, e := range ar.Manifest.Providers {
		ps := ar.Providers[i]
		cur := " "
		if i == ar.Manifest.Current {
			cur = "*"
		}

		var changed int
		for _, r := range ps.Overlay {
			changed += len(r.Bytes)
		}
		fmt.Fprintf(w, "%s#%d %s (%s) base 0x%08x, %d unsaved bytes in %d runs\n",
			cur, i, e.Name, e.Type, ps.Config.BaseAddress, changed, len(ps.Overlay))

		for _, b := range ps.Bookmarks {
			fmt.Fprintf(w, "    %s %s", b.Region, b.Name)
			if b.Comment != "" {
				fmt.Fprintf(w, ": %s", b.Comment)
			}
			if b.Locked {
				fmt.Fprintf(w, " (locked)")
			}
			fmt.Fprintln(w)
		}
	}
}
