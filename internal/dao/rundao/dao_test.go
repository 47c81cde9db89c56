package rundao

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/savaki/ddb/v2/ddbtest"
	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
)

type Data struct {
	DAO *DAO
}

func setup(t *testing.T) (ctx context.Context, data Data, cleanup func()) {
	ctx = context.Background()

	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion("us-west-2"),
		config.WithBaseEndpoint("http://localhost:8000"),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("blah", "blah", ""),
		),
	)
	assert.NoError(t, err)

	var (
		client    = dynamodb.NewFromConfig(cfg)
		db        = ddb.New(client)
		tableName = fmt.Sprintf("runs-test-%v", ksuid.New().String())
		table     = db.MustTable(tableName, Record{})
		dao       = New(client, tableName)
	)

	err = table.CreateTableIfNotExists(ctx)
	assert.NoError(t, err)

	return ctx, Data{DAO: dao}, func() {
		_ = table.DeleteTableIfExists(ctx)
	}
}

func TestDAO(t *testing.T) {
	ddbtest.WithTable[Data](t, setup, func(t *testing.T, ctx context.Context, data Data) {
		dao := data.DAO
		actions := []string{"dags-sync", "dbt-config-sync", "glue-jobs-sync"}

		t.Run("Create", func(t *testing.T) {
			sk := ksuid.New().String()
			record, err := dao.Create(ctx, CreateInput{
				Repo:      "teamfirst/data-pipeline",
				Branch:    "main",
				SK:        sk,
				PRNumber:  42,
				CommitSHA: "abc1234",
				Actions:   actions,
			})
			assert.NoError(t, err)
			assert.Equal(t, RunStatusInProgress, record.Status)
			assert.Equal(t, fmt.Sprintf("teamfirst/data-pipeline/main:%s", sk), record.GetID().String())
			for _, name := range actions {
				assert.Equal(t, ActionStatusPending, record.Actions[name])
			}
		})

		t.Run("FindAndActionStatus", func(t *testing.T) {
			sk := ksuid.New().String()
			created, err := dao.Create(ctx, CreateInput{
				Repo:    "teamfirst/data-pipeline",
				Branch:  "main",
				SK:      sk,
				Actions: actions,
			})
			assert.NoError(t, err)

			err = dao.SetActionStatus(ctx, created.PK, sk, "dags-sync", ActionStatusSuccess)
			assert.NoError(t, err)

			record, err := dao.Find(ctx, created.GetID())
			assert.NoError(t, err)
			assert.Equal(t, ActionStatusSuccess, record.Actions["dags-sync"])
			assert.Equal(t, ActionStatusPending, record.Actions["glue-jobs-sync"])
		})

		t.Run("Finish", func(t *testing.T) {
			sk := ksuid.New().String()
			created, err := dao.Create(ctx, CreateInput{
				Repo:    "teamfirst/data-pipeline",
				Branch:  "main",
				SK:      sk,
				Actions: actions,
			})
			assert.NoError(t, err)

			errMsg := "rsync to airflow.internal failed"
			err = dao.Finish(ctx, created.PK, sk, RunStatusFailed, &errMsg)
			assert.NoError(t, err)

			record, err := dao.Find(ctx, created.GetID())
			assert.NoError(t, err)
			assert.Equal(t, RunStatusFailed, record.Status)
			assert.NotNil(t, record.FinishedAt)
			assert.Equal(t, errMsg, *record.ErrorMsg)
		})

		t.Run("QueryRecent", func(t *testing.T) {
			pk := NewPK("teamfirst/other-repo", "main")
			var last string
			for i := 0; i < 3; i++ {
				last = ksuid.New().String()
				_, err := dao.Create(ctx, CreateInput{
					Repo:    "teamfirst/other-repo",
					Branch:  "main",
					SK:      last,
					Actions: actions,
				})
				assert.NoError(t, err)
			}

			records, err := dao.QueryRecent(ctx, pk, 2)
			assert.NoError(t, err)
			assert.Len(t, records, 2)
			assert.Equal(t, last, records[0].SK)
		})

		t.Run("Delete", func(t *testing.T) {
			sk := ksuid.New().String()
			created, err := dao.Create(ctx, CreateInput{
				Repo:    "teamfirst/data-pipeline",
				Branch:  "main",
				SK:      sk,
				Actions: actions,
			})
			assert.NoError(t, err)

			err = dao.Delete(ctx, created.GetID())
			assert.NoError(t, err)

			_, err = dao.Find(ctx, created.GetID())
			assert.Error(t, err)
		})
	})
}

func TestParseID(t *testing.T) {
	pk, sk, err := ParseID("teamfirst/data-pipeline/main:2HFj3kLmNoPqRsTuVwXy")
	assert.NoError(t, err)
	assert.Equal(t, PK("teamfirst/data-pipeline/main"), pk)
	assert.Equal(t, "2HFj3kLmNoPqRsTuVwXy", sk)

	_, _, err = ParseID("missing-separator")
	assert.Error(t, err)
}
