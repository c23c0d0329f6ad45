// Package firebase connects the pipeline to its Firestore control plane:
// per-user API keys, dashboard data, queue decisions and operation requests
// submitted from the hosted dashboard.
package firebase

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/xpost-agent/pkg/logger"
	"github.com/xpost-agent/pkg/ratelimit"
)

// Firestore collections
const (
	colUsers           = "users"
	colAPIKeys         = "api_keys"
	colDashboard       = "dashboard_data"
	colPersona         = "persona_profiles"
	colSelectionPrefs  = "selection_preferences"
	subQueueDecisions  = "queue_decisions"
	subOperationQueue  = "operation_requests"
	maxPendingOpsFetch = 10
)

// Config holds Firebase project access configuration
type Config struct {
	ProjectID         string `mapstructure:"project_id"`
	CredentialsBase64 string `mapstructure:"credentials_base64"`
	CredentialsFile   string `mapstructure:"credentials_file"`
}

// Client wraps the Firestore API for the control-plane collections
type Client struct {
	fs      *firestore.Client
	limiter *ratelimit.MultiLimiter
	log     *logger.Logger
}

func NewClient(ctx context.Context, cfg Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("firebase project_id is not configured")
	}

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsBase64 != "":
		raw, err := decodeCredentials(cfg.CredentialsBase64)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithCredentialsJSON(raw))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	// No explicit credentials: fall through to application default

	fs, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Client{
		fs:      fs,
		limiter: limiter,
		log:     log.WithComponent("firebase"),
	}, nil
}

// Close releases the underlying gRPC connection
func (c *Client) Close() error {
	return c.fs.Close()
}

func decodeCredentials(b64 string) ([]byte, error) {
	cleaned := regexp.MustCompile(`\s+`).ReplaceAllString(b64, "")
	cleaned = strings.TrimRight(cleaned, "=")
	if pad := len(cleaned) % 4; pad != 0 {
		cleaned += strings.Repeat("=", 4-pad)
	}
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("decode firebase credentials: %w", err)
	}
	return raw, nil
}

// User is one dashboard account
type User struct {
	UID         string `firestore:"-"`
	Email       string `firestore:"email"`
	DisplayName string `firestore:"displayName"`
	Role        string `firestore:"role"`
}

// Users lists every registered dashboard user
func (c *Client) Users(ctx context.Context) ([]User, error) {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterFirestore); err != nil {
		return nil, err
	}
	var users []User
	iter := c.fs.Collection(colUsers).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		var u User
		if err := doc.DataTo(&u); err != nil {
			c.log.Warn().Err(err).Str("uid", doc.Ref.ID).Msg("Malformed user document")
			continue
		}
		u.UID = doc.Ref.ID
		users = append(users, u)
	}
	return users, nil
}

// XCredentials are the per-user X API secrets held in Firestore
type XCredentials struct {
	APIKey       string
	APISecret    string
	BearerToken  string
	AccessToken  string
	AccessSecret string
}

// APIKeys fetches a user's raw key document. Returns nil when absent.
func (c *Client) APIKeys(ctx context.Context, uid string) (map[string]string, error) {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterFirestore); err != nil {
		return nil, err
	}
	doc, err := c.fs.Collection(colAPIKeys).Doc(uid).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api keys: %w", err)
	}

	keys := map[string]string{}
	for k, v := range doc.Data() {
		if k == "uid" || k == "updatedAt" {
			continue
		}
		if s, ok := v.(string); ok {
			keys[k] = s
		}
	}
	return keys, nil
}

// UserXCredentials assembles a user's X API credential set
func (c *Client) UserXCredentials(ctx context.Context, uid string) (*XCredentials, error) {
	keys, err := c.APIKeys(ctx, uid)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		return nil, nil
	}
	return &XCredentials{
		APIKey:       keys["x_api_key"],
		APISecret:    keys["x_api_secret"],
		BearerToken:  keys["x_bearer_token"],
		AccessToken:  keys["x_access_token"],
		AccessSecret: keys["x_access_token_secret"],
	}, nil
}

// Decision is one approve/skip action submitted from the dashboard
type Decision struct {
	TweetID    string
	UID        string
	Action     string
	SkipReason string
}

// QueueDecisions pulls dashboard decisions. With an empty uid every user's
// subcollection is scanned.
func (c *Client) QueueDecisions(ctx context.Context, uid string) ([]Decision, error) {
	if uid != "" {
		return c.userDecisions(ctx, uid)
	}

	users, err := c.Users(ctx)
	if err != nil {
		return nil, err
	}
	var all []Decision
	for _, u := range users {
		decisions, err := c.userDecisions(ctx, u.UID)
		if err != nil {
			c.log.Warn().Err(err).Str("uid", u.UID).Msg("Decision pull failed for user")
			continue
		}
		all = append(all, decisions...)
	}
	return all, nil
}

func (c *Client) userDecisions(ctx context.Context, uid string) ([]Decision, error) {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterFirestore); err != nil {
		return nil, err
	}
	var decisions []Decision
	iter := c.fs.Collection(colUsers).Doc(uid).Collection(subQueueDecisions).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list queue decisions: %w", err)
		}
		data := doc.Data()
		decisions = append(decisions, Decision{
			TweetID:    doc.Ref.ID,
			UID:        uid,
			Action:     str(data["action"]),
			SkipReason: str(data["skip_reason"]),
		})
	}
	return decisions, nil
}

// MarkDecisionsProcessed deletes applied decisions from the user's
// subcollection. Returns the number of deletions issued.
func (c *Client) MarkDecisionsProcessed(ctx context.Context, uid string, tweetIDs []string) (int, error) {
	if uid == "" || len(tweetIDs) == 0 {
		return 0, nil
	}
	if err := c.limiter.Wait(ctx, ratelimit.LimiterFirestore); err != nil {
		return 0, err
	}

	bw := c.fs.BulkWriter(ctx)
	count := 0
	for _, tweetID := range tweetIDs {
		ref := c.fs.Collection(colUsers).Doc(uid).Collection(subQueueDecisions).Doc(tweetID)
		if _, err := bw.Delete(ref); err != nil {
			bw.End()
			return count, fmt.Errorf("delete decision %s: %w", tweetID, err)
		}
		count++
	}
	bw.End()
	return count, nil
}

// SelectionPreferences pulls the user's dashboard preference document as
// flat strings. Timestamps and other non-scalar values are dropped.
func (c *Client) SelectionPreferences(ctx context.Context, uid string) (map[string]string, error) {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterFirestore); err != nil {
		return nil, err
	}
	doc, err := c.fs.Collection(colSelectionPrefs).Doc(uid).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get selection preferences: %w", err)
	}

	out := map[string]string{}
	for k, v := range doc.Data() {
		switch val := v.(type) {
		case string:
			out[k] = val
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	return out, nil
}

// UpdateDashboard merges the pipeline's status block into the user's
// dashboard document.
func (c *Client) UpdateDashboard(ctx context.Context, uid string, data map[string]interface{}) error {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterFirestore); err != nil {
		return err
	}
	data["uid"] = uid
	data["updatedAt"] = firestore.ServerTimestamp
	_, err := c.fs.Collection(colDashboard).Doc(uid).Set(ctx, data, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("update dashboard: %w", err)
	}
	return nil
}

// SavePersonaProfile stores a style analysis result for the user
func (c *Client) SavePersonaProfile(ctx context.Context, uid string, profile map[string]interface{}) error {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterFirestore); err != nil {
		return err
	}
	profile["uid"] = uid
	profile["updatedAt"] = firestore.ServerTimestamp
	_, err := c.fs.Collection(colPersona).Doc(uid).Set(ctx, profile, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("save persona profile: %w", err)
	}
	return nil
}

// Operation is one command request submitted from the dashboard
type Operation struct {
	ID       string
	UID      string
	Command  string
	TweetURL string
}

// Operation statuses
const (
	OpStatusPending   = "pending"
	OpStatusRunning   = "running"
	OpStatusCompleted = "completed"
	OpStatusFailed    = "failed"
)

// PendingOperations pulls unprocessed operation requests, oldest first.
// With an empty uid every user's subcollection is scanned.
func (c *Client) PendingOperations(ctx context.Context, uid string) ([]Operation, error) {
	if uid != "" {
		return c.userOperations(ctx, uid)
	}

	users, err := c.Users(ctx)
	if err != nil {
		return nil, err
	}
	var all []Operation
	for _, u := range users {
		ops, err := c.userOperations(ctx, u.UID)
		if err != nil {
			c.log.Warn().Err(err).Str("uid", u.UID).Msg("Operation pull failed for user")
			continue
		}
		all = append(all, ops...)
	}
	return all, nil
}

func (c *Client) userOperations(ctx context.Context, uid string) ([]Operation, error) {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterFirestore); err != nil {
		return nil, err
	}
	query := c.fs.Collection(colUsers).Doc(uid).Collection(subOperationQueue).
		Where("status", "==", OpStatusPending).
		OrderBy("requested_at", firestore.Asc).
		Limit(maxPendingOpsFetch)

	var ops []Operation
	iter := query.Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list operations: %w", err)
		}
		data := doc.Data()
		ops = append(ops, Operation{
			ID:       doc.Ref.ID,
			UID:      uid,
			Command:  str(data["command"]),
			TweetURL: str(data["tweet_url"]),
		})
	}
	return ops, nil
}

// UpdateOperationStatus records an operation's lifecycle transition
func (c *Client) UpdateOperationStatus(ctx context.Context, uid, docID, status, result string) error {
	if err := c.limiter.Wait(ctx, ratelimit.LimiterFirestore); err != nil {
		return err
	}
	_, err := c.fs.Collection(colUsers).Doc(uid).Collection(subOperationQueue).Doc(docID).Update(ctx, []firestore.Update{
		{Path: "status", Value: status},
		{Path: "result", Value: result},
		{Path: "processed_at", Value: time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("update operation %s: %w", docID, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
