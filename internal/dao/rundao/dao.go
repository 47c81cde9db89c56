package rundao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"

	"github.com/teamfirst/deploy-dispatcher/internal/errors"
)

// TableName returns the runs table name for the given environment
func TableName(env string) string {
	return fmt.Sprintf("deploy-dispatcher-%s-runs", env)
}

// PK represents a DynamoDB partition key in format {repo}/{branch}
// Example: teamfirst/data-pipeline/main
type PK string

// NewPK creates a new partition key from repo and branch
func NewPK(repo, branch string) PK {
	return PK(fmt.Sprintf("%s/%s", repo, branch))
}

// String returns the string representation of the partition key
func (pk PK) String() string {
	return string(pk)
}

// ID represents a run ID in format {repo}/{branch}:{ksuid}
type ID string

func (id ID) String() string {
	return string(id)
}

// NewID constructs an ID from partition key and sort key
func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// ParseID parses a run ID into its partition key (pk) and sort key (sk) components
func ParseID(id ID) (pk PK, sk string, err error) {
	s := string(id)
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("invalid run ID format: %s, expected {repo}/{branch}:{ksuid}", s)
	}
	return PK(s[:idx]), s[idx+1:], nil
}

// RunStatus represents the current status of a dispatch run
type RunStatus string

const (
	RunStatusInProgress RunStatus = "IN_PROGRESS"
	RunStatusSuccess    RunStatus = "SUCCESS"
	RunStatusFailed     RunStatus = "FAILED"
)

// ActionStatus represents the status of one fan-out action within a run
type ActionStatus string

const (
	ActionStatusPending    ActionStatus = "PENDING"
	ActionStatusInProgress ActionStatus = "IN_PROGRESS"
	ActionStatusSuccess    ActionStatus = "SUCCESS"
	ActionStatusFailed     ActionStatus = "FAILED"
	ActionStatusSkipped    ActionStatus = "SKIPPED"
)

// Record represents a dispatch run in DynamoDB
type Record struct {
	PK         PK                      `ddb:"hash" dynamodbav:"pk"`  // {repo}/{branch} - DynamoDB partition key
	SK         string                  `ddb:"range" dynamodbav:"sk"` // KSUID - DynamoDB sort key
	Repo       string                  `dynamodbav:"repo,omitempty"`
	Branch     string                  `dynamodbav:"branch,omitempty"`
	PRNumber   int                     `dynamodbav:"pr_number,omitempty"`
	CommitSHA  string                  `dynamodbav:"commit_sha,omitempty"`
	Status     RunStatus               `dynamodbav:"status,omitempty"`
	Actions    map[string]ActionStatus `dynamodbav:"actions,omitempty"`
	ErrorMsg   *string                 `dynamodbav:"error_msg,omitempty"`
	CreatedAt  int64                   `dynamodbav:"created_at,omitempty"`
	FinishedAt *int64                  `dynamodbav:"finished_at,omitempty"`
	UpdatedAt  int64                   `dynamodbav:"updated_at,omitempty"`
}

// GetID returns the full run ID in format: {repo}/{branch}:{ksuid}
func (r *Record) GetID() ID {
	return NewID(r.PK, r.SK)
}

// CreateInput contains the fields needed to create a new run record
type CreateInput struct {
	Repo      string   // Repository full name
	Branch    string   // Integration branch the PR merged into
	SK        string   // KSUID sort key
	PRNumber  int      // Pull request number
	CommitSHA string   // Merge commit SHA
	Actions   []string // Action names, all initialized PENDING
}

// DAO provides data access operations for dispatch run records
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create creates a new run record with status IN_PROGRESS and every action PENDING
func (d *DAO) Create(ctx context.Context, input CreateInput) (Record, error) {
	pk := NewPK(input.Repo, input.Branch)
	now := time.Now().Unix()

	actions := make(map[string]ActionStatus, len(input.Actions))
	for _, name := range input.Actions {
		actions[name] = ActionStatusPending
	}

	record := Record{
		PK:        pk,
		SK:        input.SK,
		Repo:      input.Repo,
		Branch:    input.Branch,
		PRNumber:  input.PRNumber,
		CommitSHA: input.CommitSHA,
		Status:    RunStatusInProgress,
		Actions:   actions,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := d.table.Put(&record).RunWithContext(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("failed to create run record: %w", err)
	}

	return record, nil
}

// Find retrieves a run record by ID
// Returns an error if not found or if there's a database error
func (d *DAO) Find(ctx context.Context, id ID) (Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return Record{}, err
	}

	var record Record

	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return Record{}, fmt.Errorf("%w: %s", errors.ErrRunNotFound, id)
		}
		return Record{}, fmt.Errorf("failed to find run record: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return Record{}, fmt.Errorf("%w: %s", errors.ErrRunNotFound, id)
	}

	return record, nil
}

// Delete removes a run record by ID
func (d *DAO) Delete(ctx context.Context, id ID) error {
	pk, sk, err := ParseID(id)
	if err != nil {
		return err
	}

	err = d.table.Delete(pk).
		Range(sk).
		RunWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete run record: %w", err)
	}

	return nil
}

// SetActionStatus updates the status of one action within a run
func (d *DAO) SetActionStatus(ctx context.Context, pk PK, sk, action string, status ActionStatus) error {
	record, err := d.Find(ctx, NewID(pk, sk))
	if err != nil {
		return err
	}
	if record.Actions == nil {
		record.Actions = make(map[string]ActionStatus)
	}
	record.Actions[action] = status
	record.UpdatedAt = time.Now().Unix()

	if err := d.table.Put(&record).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to update action status: %w", err)
	}
	return nil
}

// Finish marks a run as SUCCESS or FAILED and records the finish time
func (d *DAO) Finish(ctx context.Context, pk PK, sk string, status RunStatus, errorMsg *string) error {
	now := time.Now().Unix()

	update := d.table.Update(pk.String()).
		Range(sk).
		Set("#Status = ?", string(status)).
		Set("#FinishedAt = ?", now).
		Set("#UpdatedAt = ?", now)

	if errorMsg != nil {
		update = update.Set("#ErrorMsg = ?", *errorMsg)
	}

	if err := update.RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return nil
}

// Query returns all runs for a given repo/branch partition key
func (d *DAO) Query(ctx context.Context, pk PK) ([]Record, error) {
	var records []Record

	err := d.table.Query("#PK = ?", pk.String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	return records, nil
}

// QueryRecent returns up to limit runs for a repo/branch, most recent first.
// KSUID sort keys are time-ordered, so sort order follows creation order.
func (d *DAO) QueryRecent(ctx context.Context, pk PK, limit int) ([]Record, error) {
	records, err := d.Query(ctx, pk)
	if err != nil {
		return nil, err
	}

	for i := 0; i < len(records)-1; i++ {
		for j := i + 1; j < len(records); j++ {
			if records[j].SK > records[i].SK {
				records[i], records[j] = records[j], records[i]
			}
		}
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
