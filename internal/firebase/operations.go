package firebase

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/xpost-agent/pkg/logger"
)

// Per-operation subprocess timeouts
const (
	addTweetTimeout  = 60 * time.Second
	defaultOpTimeout = 300 * time.Second
)

// OpsBackend is the slice of the Firestore client the processor needs
type OpsBackend interface {
	PendingOperations(ctx context.Context, uid string) ([]Operation, error)
	UpdateOperationStatus(ctx context.Context, uid, docID, status, result string) error
	APIKeys(ctx context.Context, uid string) (map[string]string, error)
}

// Runner executes one operation command. The default runner shells out to
// this binary; tests swap it for a fake.
type Runner func(ctx context.Context, args []string, env []string) (string, error)

// OpResult records the outcome of one processed operation
type OpResult struct {
	ID      string
	Command string
	Status  string
	Detail  string
}

// Processor drains operation requests submitted from the dashboard by
// re-invoking this binary with the user's credentials in the environment.
type Processor struct {
	backend OpsBackend
	binPath string
	log     *logger.Logger
	run     Runner
}

func NewProcessor(backend OpsBackend, binPath string, log *logger.Logger) *Processor {
	p := &Processor{
		backend: backend,
		binPath: binPath,
		log:     log.WithComponent("operations"),
	}
	p.run = p.execBinary
	return p
}

// Process pulls pending operations and executes each one, recording the
// running/completed/failed transitions back to Firestore.
func (p *Processor) Process(ctx context.Context, uid string) ([]OpResult, error) {
	ops, err := p.backend.PendingOperations(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("pull operations: %w", err)
	}
	if len(ops) == 0 {
		return nil, nil
	}

	var results []OpResult
	for _, op := range ops {
		results = append(results, p.processOne(ctx, op))
	}
	return results, nil
}

func (p *Processor) processOne(ctx context.Context, op Operation) OpResult {
	log := p.log.With().Str("uid", op.UID).Str("op_id", op.ID).Str("command", op.Command).Logger()

	args, timeout, err := p.commandArgs(op)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected operation")
		p.setStatus(ctx, op, OpStatusFailed, err.Error())
		return OpResult{ID: op.ID, Command: op.Command, Status: OpStatusFailed, Detail: err.Error()}
	}

	env, err := p.userEnv(ctx, op.UID)
	if err != nil {
		log.Error().Err(err).Msg("Credential lookup failed")
		p.setStatus(ctx, op, OpStatusFailed, "credential lookup failed")
		return OpResult{ID: op.ID, Command: op.Command, Status: OpStatusFailed, Detail: err.Error()}
	}

	p.setStatus(ctx, op, OpStatusRunning, "")
	log.Info().Msg("Operation started")

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	output, err := p.run(runCtx, args, env)
	if err != nil {
		detail := fmt.Sprintf("%v: %s", err, truncateTail(output, 500))
		log.Error().Err(err).Msg("Operation failed")
		p.setStatus(ctx, op, OpStatusFailed, detail)
		return OpResult{ID: op.ID, Command: op.Command, Status: OpStatusFailed, Detail: detail}
	}

	log.Info().Msg("Operation completed")
	p.setStatus(ctx, op, OpStatusCompleted, truncateTail(output, 500))
	return OpResult{ID: op.ID, Command: op.Command, Status: OpStatusCompleted}
}

// commandArgs maps a dashboard command to CLI arguments and a timeout
func (p *Processor) commandArgs(op Operation) ([]string, time.Duration, error) {
	switch op.Command {
	case "collect":
		return []string{"collect", "--auto-approve", "--min-likes", "500"}, defaultOpTimeout, nil
	case "curate":
		return []string{"curate"}, defaultOpTimeout, nil
	case "curate-post":
		return []string{"curate-post"}, defaultOpTimeout, nil
	case "post":
		return []string{"post"}, defaultOpTimeout, nil
	case "metrics":
		return []string{"metrics"}, defaultOpTimeout, nil
	case "export-dashboard":
		return []string{"export-dashboard"}, defaultOpTimeout, nil
	case "add-tweet":
		if op.TweetURL == "" {
			return nil, 0, fmt.Errorf("add-tweet request has no tweet_url")
		}
		return []string{"add-tweet", "--url", op.TweetURL}, addTweetTimeout, nil
	default:
		return nil, 0, fmt.Errorf("unknown command %q", op.Command)
	}
}

// userEnv builds the subprocess environment with the user's own credentials
// overriding the daemon's.
func (p *Processor) userEnv(ctx context.Context, uid string) ([]string, error) {
	keys, err := p.backend.APIKeys(ctx, uid)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, fmt.Errorf("no api keys registered for user %s", uid)
	}

	env := os.Environ()
	overlay := map[string]string{
		"x_api_key":             "X_API_KEY",
		"x_api_secret":          "X_API_SECRET",
		"x_bearer_token":        "TWITTER_BEARER_TOKEN",
		"x_access_token":        "X_ACCOUNT_1_ACCESS_TOKEN",
		"x_access_token_secret": "X_ACCOUNT_1_ACCESS_SECRET",
		"anthropic_api_key":     "ANTHROPIC_API_KEY",
		"discord_webhook_url":   "DISCORD_WEBHOOK_X_ACCOUNT_1",
	}
	for field, envName := range overlay {
		if v := keys[field]; v != "" {
			env = append(env, envName+"="+v)
		}
	}
	return env, nil
}

func (p *Processor) setStatus(ctx context.Context, op Operation, status, result string) {
	if err := p.backend.UpdateOperationStatus(ctx, op.UID, op.ID, status, result); err != nil {
		p.log.Warn().Err(err).Str("op_id", op.ID).Str("status", status).Msg("Status update failed")
	}
}

func (p *Processor) execBinary(ctx context.Context, args []string, env []string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, args...)
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func truncateTail(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[len(runes)-max:])
}
