package curator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xpost-agent/internal/generate"
	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/internal/notify"
	"github.com/xpost-agent/internal/planner"
	"github.com/xpost-agent/internal/queue"
	"github.com/xpost-agent/internal/safety"
	"github.com/xpost-agent/internal/twitter"
	"github.com/xpost-agent/pkg/logger"
)

const goodQuote = "ぶっちゃけこのツール、3日使っただけで作業時間が2時間減った。\nやばいくらい便利なんだよね。\n迷ってる人はこれ一択。"

type fakeLLM struct {
	reply string
	calls int
	err   error
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeLister struct {
	tweets []twitter.RecentTweet
	err    error
	calls  int
}

func (f *fakeLister) RecentTweets(ctx context.Context, maxResults int) ([]twitter.RecentTweet, error) {
	f.calls++
	return f.tweets, f.err
}

func newTestAgent(t *testing.T, llm *fakeLLM, lister *fakeLister) (*Agent, *queue.Store) {
	t.Helper()
	dir := t.TempDir()
	log := logger.Default()

	store := queue.NewStore(dir, filepath.Join(dir, "feedback.json"), log)
	gate := safety.NewGate(safety.DefaultRules(), log)
	gen := generate.New(llm, gate, log)
	pl := planner.New(planner.MixConfig{}, log)
	notifier := notify.NewNotifier("", nil, log)

	return NewAgent(store, gen, pl, notifier, lister, "テストアカウント", log), store
}

func addApproved(t *testing.T, store *queue.Store, tweetID, author, text string) {
	t.Helper()
	if _, err := store.Add(models.CandidateRecord{
		TweetID:        tweetID,
		AuthorUsername: author,
		Text:           text,
		Likes:          800,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Approve(tweetID); err != nil {
		t.Fatal(err)
	}
}

func TestCurateGeneratesForApproved(t *testing.T) {
	llm := &fakeLLM{reply: goodQuote}
	lister := &fakeLister{}
	agent, store := newTestAgent(t, llm, lister)

	addApproved(t, store, "111", "alice", "New agent framework with tool use support.")
	addApproved(t, store, "222", "bob", "Vector search latency down by 10x in our benchmark.")

	result, err := agent.Curate(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Generated != 2 {
		t.Fatalf("generated = %d, want 2", result.Generated)
	}
	if len(store.Generated()) != 2 {
		t.Errorf("queue generated = %d", len(store.Generated()))
	}
	rec, _ := store.Get("111")
	if rec.GeneratedText != goodQuote || rec.TemplateID == "" || rec.Score == nil {
		t.Errorf("record not updated: %+v", rec)
	}
	if len(result.Plan.Slots) == 0 {
		t.Error("daily plan missing")
	}
	if lister.calls != 1 {
		t.Errorf("recent posts fetched %d times, want 1", lister.calls)
	}
}

func TestCurateSkipsAlreadyGenerated(t *testing.T) {
	llm := &fakeLLM{reply: goodQuote}
	agent, store := newTestAgent(t, llm, &fakeLister{})

	addApproved(t, store, "111", "alice", "Some buzzing tweet about LLM evals.")
	if _, err := store.SetGenerated("111", "既存コメント", "tpl", nil); err != nil {
		t.Fatal(err)
	}

	result, err := agent.Curate(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Generated != 0 || llm.calls != 0 {
		t.Fatalf("generated = %d, llm calls = %d", result.Generated, llm.calls)
	}
}

func TestCurateEmptyQueue(t *testing.T) {
	llm := &fakeLLM{reply: goodQuote}
	agent, _ := newTestAgent(t, llm, &fakeLister{})

	result, err := agent.Curate(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Generated != 0 || len(result.Plan.Slots) == 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestCurateToleratesRecentPostsFailure(t *testing.T) {
	llm := &fakeLLM{reply: goodQuote}
	lister := &fakeLister{err: errors.New("429 rate limited")}
	agent, store := newTestAgent(t, llm, lister)

	addApproved(t, store, "111", "alice", "Tweet about context windows.")

	result, err := agent.Curate(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Generated != 1 {
		t.Fatalf("generated = %d, want 1", result.Generated)
	}
}

func TestCurateCountsGenerationFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("529 overloaded")}
	agent, store := newTestAgent(t, llm, &fakeLister{})

	addApproved(t, store, "111", "alice", "Tweet about prompt caching.")

	result, err := agent.Curate(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Generated != 0 || result.Failed != 1 {
		t.Fatalf("generated = %d, failed = %d", result.Generated, result.Failed)
	}
	if len(store.Generated()) != 0 {
		t.Error("failed candidate must stay without generated text")
	}
}

func TestCurateDryRunDoesNotPersist(t *testing.T) {
	llm := &fakeLLM{reply: goodQuote}
	lister := &fakeLister{}
	agent, store := newTestAgent(t, llm, lister)

	addApproved(t, store, "111", "alice", "Tweet about multimodal models.")

	result, err := agent.Curate(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Generated != 1 {
		t.Fatalf("generated = %d, want 1", result.Generated)
	}
	if lister.calls != 0 {
		t.Error("dry run must not hit the posting API")
	}
	if len(store.Generated()) != 0 {
		t.Error("dry run must not write to the queue")
	}
}
