package hcl

import "github.com/hashicorp/hcl/v2"

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Server   *serverBlock    `hcl:"server,block"`
	Profiles []*profileBlock `hcl:"profile,block"`
	Tasks    []*taskBlock    `hcl:"task,block"`
	Targets  []*targetBlock  `hcl:"target,block"`
	Remain   hcl.Body        `hcl:",remain"`
}

type serverBlock struct {
	Host   *string `hcl:"host,optional"`
	Port   *int    `hcl:"port,optional"`
	Inject *bool   `hcl:"inject,optional"`
}

type profileBlock struct {
	Name      string         `hcl:"name,label"`
	Dest      string         `hcl:"dest,optional"`
	CacheBust bool           `hcl:"cache_bust,optional"`
	Targets   []*targetBlock `hcl:"target,block"`
}

type taskBlock struct {
	Name    string        `hcl:"name,label"`
	Src     []string      `hcl:"src,optional"`
	Dest    string        `hcl:"dest,optional"`
	Output  string        `hcl:"output,optional"`
	Watch   *bool         `hcl:"watch,optional"`
	Reload  string        `hcl:"reload,optional"`
	Options *optionsBlock `hcl:"options,block"`
}

// optionsBlock keeps the raw body; its attributes are module specific.
type optionsBlock struct {
	Body hcl.Body `hcl:",remain"`
}

type targetBlock struct {
	Name        string         `hcl:"name,label"`
	Description string         `hcl:"description,optional"`
	Mode        string         `hcl:"mode,optional"`
	Run         hcl.Expression `hcl:"run"`
}
