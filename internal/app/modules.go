package app

import (
	"github.com/vk/gridpipe/internal/registry"
	"github.com/vk/gridpipe/modules/archive"
	"github.com/vk/gridpipe/modules/clean"
	"github.com/vk/gridpipe/modules/fonts"
	"github.com/vk/gridpipe/modules/html"
	"github.com/vk/gridpipe/modules/images"
	"github.com/vk/gridpipe/modules/publish"
	"github.com/vk/gridpipe/modules/scripts"
	"github.com/vk/gridpipe/modules/serve"
	"github.com/vk/gridpipe/modules/styles"
	"github.com/vk/gridpipe/modules/watch"
)

// coreModules is the definitive list of all modules that are compiled into
// the gridpipe binary.
var coreModules = []registry.Module{
	&clean.Module{},
	&styles.Module{},
	&scripts.Module{},
	&images.Module{},
	&fonts.Module{},
	&html.Module{},
	&serve.Module{},
	&watch.Module{},
	&archive.Module{},
	&publish.Module{},
}
