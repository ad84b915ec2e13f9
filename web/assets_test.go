package webassets

import "testing"

func TestEmbeddedWebAssetsIncludeDashboard(t *testing.T) {
	b, err := Files.ReadFile("index.html")
	if err != nil {
		t.Fatalf("embedded asset missing index.html: %v", err)
	}
	if len(b) == 0 {
		t.Fatalf("embedded asset index.html is empty")
	}
}
