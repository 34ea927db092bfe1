//go:build integration
// +build integration

package integration

import (
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/scenesmith/scenepilot/internal/catalog"
)

// TestCLIBuild tests that the CLI binary builds successfully
func TestCLIBuild(t *testing.T) {
	cmd := exec.Command("go", "build", "-o", "scenepilot-test", "./cmd/scenepilot")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Build failed: %v\nOutput: %s", err, output)
	}
	defer os.Remove("scenepilot-test")

	if _, err := os.Stat("scenepilot-test"); os.IsNotExist(err) {
		t.Fatal("Binary was not created")
	}
}

// TestCLIVersion tests that the CLI --version flag works
func TestCLIVersion(t *testing.T) {
	cmd := exec.Command("go", "build", "-o", "scenepilot-test", "./cmd/scenepilot")
	if err := cmd.Run(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer os.Remove("scenepilot-test")

	cmd = exec.Command("./scenepilot-test", "--version")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Version command failed: %v", err)
	}
	if !strings.Contains(string(output), "ScenePilot") {
		t.Errorf("Version output doesn't look right: %s", output)
	}
}

// TestShippedCatalogLoads verifies the bundled workflow definitions
// pass validation.
func TestShippedCatalogLoads(t *testing.T) {
	cat, err := catalog.Load("workflows")
	if err != nil {
		t.Fatalf("Failed to load shipped catalog: %v", err)
	}
	if cat.Len() == 0 {
		t.Fatal("Shipped catalog is empty")
	}
	for _, wf := range cat.List() {
		if wf.Description == "" {
			t.Errorf("Workflow %s has no description for semantic matching", wf.ID)
		}
	}
}
