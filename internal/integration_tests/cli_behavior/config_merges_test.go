package integration_tests

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vk/gridpipe/internal/app"
	"github.com/vk/gridpipe/internal/testutil"
)

// Test for: A pipeline split across a directory of .hcl files is merged.
func TestCLIBehavior_ConfigDirectoryMerges(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := testutil.WriteProject(t, map[string]string{
		"pipeline/profiles.hcl": `
			profile "site" {
				dest = "public"
			}
		`,
		"pipeline/tasks.hcl": `
			task "fonts" {
				src  = ["assets/fonts/*"]
				dest = "fonts"
			}
		`,
		"pipeline/targets.hcl": `
			target "build" {
				mode = "production"
				run  = series(task.clean, task.fonts)
			}
		`,
		"assets/fonts/body.woff2": "font-bytes",
		"public/stale.txt":        "left over from an earlier build",
	})
	cfg, err := app.NewConfig(app.Config{Root: root, ConfigPath: "pipeline", Profile: "site", Target: "build"})
	if err != nil {
		t.Fatalf("NewConfig() returned an unexpected error: %v", err)
	}
	testApp, _ := app.SetupAppTest(t, cfg)

	// --- Act ---
	if err := testApp.Run(context.Background(), cfg); err != nil {
		t.Fatalf("app.Run() returned an unexpected error: %v", err)
	}

	// --- Assert ---
	tree := testutil.ReadTree(t, filepath.Join(root, "public"))
	if len(tree) != 1 || tree["fonts/body.woff2"] != "font-bytes" {
		t.Errorf("unexpected output tree: %v", tree)
	}
	if _, err := os.Stat(filepath.Join(root, "public", "stale.txt")); !os.IsNotExist(err) {
		t.Errorf("expected clean to remove stale output, stat err: %v", err)
	}
}

// Test for: Describe reports targets and tasks from the merged pipeline.
func TestCLIBehavior_DescribeListsMergedPipeline(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := testutil.WriteProject(t, map[string]string{
		"pipeline/a.hcl": `
			task "fonts" {
				src = ["assets/fonts/*"]
			}
		`,
		"pipeline/b.hcl": `
			target "fonts_only" {
				description = "Copy fonts."
				run         = series(task.fonts)
			}
		`,
	})
	cfg, err := app.NewConfig(app.Config{Root: root, ConfigPath: "pipeline"})
	if err != nil {
		t.Fatalf("NewConfig() returned an unexpected error: %v", err)
	}
	testApp, _ := app.SetupAppTest(t, cfg)

	// --- Act ---
	listing, err := testApp.Describe(cfg.Profile)

	// --- Assert ---
	if err != nil {
		t.Fatalf("Describe() returned an unexpected error: %v", err)
	}
	if len(listing.Targets) != 1 || listing.Targets[0].Name != "fonts_only" {
		t.Fatalf("unexpected targets: %+v", listing.Targets)
	}
	if listing.Targets[0].Description != "Copy fonts." {
		t.Errorf("unexpected description: %q", listing.Targets[0].Description)
	}
	var fonts *app.TaskInfo
	for i := range listing.Tasks {
		if listing.Tasks[i].Name == "fonts" {
			fonts = &listing.Tasks[i]
		}
	}
	if fonts == nil || len(fonts.Src) != 1 || !fonts.Watch {
		t.Errorf("unexpected fonts entry: %+v", fonts)
	}
}
