package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// TargetInfo describes a target as resolved for a profile.
type TargetInfo struct {
	Name        string `json:"name" yaml:"name"`
	Mode        string `json:"mode" yaml:"mode"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Run         string `json:"run" yaml:"run"`
}

// TaskInfo describes a registered task and its declaration, if any.
type TaskInfo struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Src         []string `json:"src,omitempty" yaml:"src,omitempty"`
	Watch       bool     `json:"watch" yaml:"watch"`
}

// Listing is everything `gridpipe tasks` shows.
type Listing struct {
	Profile  string       `json:"profile" yaml:"profile"`
	Dest     string       `json:"dest" yaml:"dest"`
	Profiles []string     `json:"profiles" yaml:"profiles"`
	Targets  []TargetInfo `json:"targets" yaml:"targets"`
	Tasks    []TaskInfo   `json:"tasks" yaml:"tasks"`
}

// Describe lists the targets visible from the named profile and every
// registered task.
func (a *App) Describe(profileName string) (*Listing, error) {
	profile, err := a.model.Profile(profileName)
	if err != nil {
		return nil, err
	}
	l := &Listing{Profile: profile.Name, Dest: profile.Dest, Profiles: a.model.ProfileNames()}
	for _, name := range a.model.TargetNames(profile) {
		t, _ := a.model.Target(profile, name)
		info := TargetInfo{Name: name, Mode: string(t.Mode), Description: t.Description}
		if t.Run != nil {
			info.Run = t.Run.String()
		}
		l.Targets = append(l.Targets, info)
	}
	for _, name := range a.registry.Names() {
		rt, _ := a.registry.Lookup(name)
		decl := a.model.Task(name)
		l.Tasks = append(l.Tasks, TaskInfo{Name: name, Description: rt.Description, Src: decl.Src, Watch: decl.Watch})
	}
	return l, nil
}

var heading = color.New(color.Bold).SprintFunc()

// WriteListing renders l as a table, json or yaml.
func WriteListing(w io.Writer, l *Listing, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(l); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
	default:
		return fmt.Errorf("unknown format %q: must be 'table', 'json' or 'yaml'", format)
	}

	fmt.Fprintf(w, "%s %s (dest %s; profiles: %s)\n\n", heading("Profile:"), l.Profile, l.Dest, strings.Join(l.Profiles, ", "))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, heading("TARGET")+"\t"+heading("MODE")+"\t"+heading("RUN"))
	for _, t := range l.Targets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Mode, t.Run)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, heading("TASK")+"\t"+heading("SRC")+"\t"+heading("DESCRIPTION"))
	for _, t := range l.Tasks {
		src := strings.Join(t.Src, " ")
		if src == "" {
			src = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, src, t.Description)
	}
	return tw.Flush()
}
