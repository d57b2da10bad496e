// Package bundler holds the esbuild settings shared by the styles and
// scripts tasks: browser engine targets, mode-dependent minification and
// source maps, and error formatting.
package bundler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/vk/gridpipe/internal/config"
)

// DefaultEngines is the browser baseline output is lowered to.
var DefaultEngines = []string{"chrome58", "edge16", "firefox57", "safari11"}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// ParseEngines converts names such as "chrome58" or "safari11.1" into esbuild
// engine targets.
func ParseEngines(specs []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(specs))
	for _, s := range specs {
		s = strings.ToLower(strings.TrimSpace(s))
		i := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
		if i <= 0 {
			return nil, fmt.Errorf("invalid engine %q: expected a name followed by a version, e.g. chrome58", s)
		}
		name, ok := engineNames[s[:i]]
		if !ok {
			return nil, fmt.Errorf("invalid engine %q: unknown browser %q", s, s[:i])
		}
		engines = append(engines, api.Engine{Name: name, Version: s[i:]})
	}
	return engines, nil
}

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// ParseTarget converts a language level name such as "es2015".
func ParseTarget(s string) (api.Target, error) {
	t, ok := targets[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown target %q", s)
	}
	return t, nil
}

var formats = map[string]api.Format{
	"iife": api.FormatIIFE,
	"esm":  api.FormatESModule,
	"cjs":  api.FormatCommonJS,
}

// ParseFormat converts an output format name: iife, esm or cjs.
func ParseFormat(s string) (api.Format, error) {
	f, ok := formats[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown format %q", s)
	}
	return f, nil
}

// Settings are the mode-dependent output settings.
type Settings struct {
	Minify    bool
	Sourcemap api.SourceMap
}

// ForMode returns minified output with an external map for production and
// unminified output with an inline map for development.
func ForMode(mode config.Mode) Settings {
	if mode.IsProduction() {
		return Settings{Minify: true, Sourcemap: api.SourceMapExternal}
	}
	return Settings{Sourcemap: api.SourceMapInline}
}

// FormatMessages joins esbuild messages into one error, one
// "file:line:col: text" line per message. It returns nil for no messages.
func FormatMessages(msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	errs := make([]error, 0, len(msgs))
	for _, m := range msgs {
		errs = append(errs, errors.New(FormatMessage(m)))
	}
	return errors.Join(errs...)
}

// FormatMessage renders a single esbuild message.
func FormatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
}
