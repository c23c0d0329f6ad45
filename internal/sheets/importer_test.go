package sheets

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xpost-agent/internal/queue"
	"github.com/xpost-agent/pkg/logger"
)

type fakeIntake struct {
	pending []PendingURL
	updates []URLUpdate
}

func (f *fakeIntake) PendingURLs(ctx context.Context) ([]PendingURL, error) {
	return f.pending, nil
}

func (f *fakeIntake) MarkURLsBatch(ctx context.Context, updates []URLUpdate) error {
	f.updates = updates
	return nil
}

func newTestImporter(t *testing.T) (*URLImporter, *fakeIntake, *queue.Store) {
	t.Helper()
	dir := t.TempDir()
	store := queue.NewStore(dir, filepath.Join(dir, "feedback.json"), logger.Default())
	api := &fakeIntake{}
	return NewURLImporter(api, store, logger.Default()), api, store
}

func TestImportAddsValidURLs(t *testing.T) {
	importer, api, store := newTestImporter(t)
	api.pending = []PendingURL{
		{Row: 2, URL: "https://x.com/someone/status/111", Memo: "good one"},
		{Row: 3, URL: "https://example.com/not-a-tweet"},
		{Row: 4, URL: "https://twitter.com/other/status/222"},
	}

	result, err := importer.Import(context.Background(), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Total != 3 || result.Added != 2 || result.Invalid != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(store.Pending()) != 2 {
		t.Errorf("queue pending = %d", len(store.Pending()))
	}

	if len(api.updates) != 3 {
		t.Fatalf("updates = %d rows", len(api.updates))
	}
	if api.updates[0].Status != URLStatusDone || api.updates[0].TweetID != "111" {
		t.Errorf("row 2 update = %+v", api.updates[0])
	}
	if api.updates[1].Status != URLStatusError {
		t.Errorf("row 3 update = %+v", api.updates[1])
	}
}

func TestImportMarksDuplicates(t *testing.T) {
	importer, api, _ := newTestImporter(t)
	api.pending = []PendingURL{
		{Row: 2, URL: "https://x.com/someone/status/111"},
		{Row: 3, URL: "https://x.com/someone/status/111"},
	}

	result, err := importer.Import(context.Background(), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Added != 1 || result.SkippedDup != 1 {
		t.Errorf("result = %+v", result)
	}
	if api.updates[1].Status != URLStatusDuplicate {
		t.Errorf("duplicate row update = %+v", api.updates[1])
	}
}

func TestImportAutoApprove(t *testing.T) {
	importer, api, store := newTestImporter(t)
	api.pending = []PendingURL{{Row: 2, URL: "https://x.com/someone/status/111"}}

	if _, err := importer.Import(context.Background(), true); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(store.Approved()) != 1 {
		t.Errorf("approved = %d, want 1", len(store.Approved()))
	}
}

func TestImportEmptySheet(t *testing.T) {
	importer, api, _ := newTestImporter(t)

	result, err := importer.Import(context.Background(), false)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Total != 0 {
		t.Errorf("result = %+v", result)
	}
	if api.updates != nil {
		t.Errorf("unexpected write-back: %+v", api.updates)
	}
}

func TestFormatResult(t *testing.T) {
	out := FormatResult(&ImportResult{Total: 3, Added: 2, SkippedDup: 1, Errors: []string{"boom"}})
	for _, want := range []string{"スプシ未処理: 3件", "キュー追加:   2件", "エラー:      1件"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
