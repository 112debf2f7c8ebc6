package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type PostgreSQLFlowStoreTestSuite struct {
	suite.Suite
	mockDB   *sql.DB
	mock     sqlmock.Sqlmock
	provider *PostgreSQLProvider
	ctx      context.Context
}

func TestPostgreSQLFlowStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgreSQLFlowStoreTestSuite))
}

func (suite *PostgreSQLFlowStoreTestSuite) SetupTest() {
	var err error
	suite.mockDB, suite.mock, err = sqlmock.New()
	if err != nil {
		suite.T().Fatalf("Failed to create mock database: %v", err)
	}
	suite.provider = NewPostgreSQLProviderWithDB(suite.mockDB)
	suite.ctx = context.Background()
}

func (suite *PostgreSQLFlowStoreTestSuite) TearDownTest() {
	if err := suite.mock.ExpectationsWereMet(); err != nil {
		suite.T().Fatalf("There were unfulfilled expectations: %v", err)
	}
}

func (suite *PostgreSQLFlowStoreTestSuite) TestInitializeCreatesTable() {
	suite.mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS flows")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(suite.T(), suite.provider.Initialize(suite.ctx))
}

func (suite *PostgreSQLFlowStoreTestSuite) TestGetFlowDecodesRow() {
	steps, err := json.Marshal(sampleFlow("pg").Steps)
	require.NoError(suite.T(), err)

	rows := sqlmock.NewRows([]string{"flow_id", "name", "description", "steps", "is_active", "created_at", "updated_at"}).
		AddRow("pg", "Sample pg", "two step sample", string(steps), true, int64(1700000000), int64(1700000100))
	suite.mock.ExpectQuery(regexp.QuoteMeta("FROM flows WHERE flow_id = $1")).
		WithArgs("pg").
		WillReturnRows(rows)

	f, err := suite.provider.GetFlowStore().GetFlow(suite.ctx, "pg")

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Sample pg", f.Name)
	assert.Equal(suite.T(), sampleFlow("pg").Steps, f.Steps)
	assert.Equal(suite.T(), time.Unix(1700000000, 0).UTC(), f.CreatedAt)
	assert.Equal(suite.T(), time.Unix(1700000100, 0).UTC(), f.UpdatedAt)
}

func (suite *PostgreSQLFlowStoreTestSuite) TestGetFlowNotFound() {
	suite.mock.ExpectQuery(regexp.QuoteMeta("FROM flows WHERE flow_id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := suite.provider.GetFlowStore().GetFlow(suite.ctx, "missing")
	assert.ErrorIs(suite.T(), err, ErrFlowNotFound)
}

func (suite *PostgreSQLFlowStoreTestSuite) TestInsertFlowUsesNumberedPlaceholders() {
	suite.mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (flow_id) DO NOTHING")).
		WithArgs("pg", "Sample pg", "two step sample", sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(suite.T(), suite.provider.GetFlowStore().InsertFlow(suite.ctx, sampleFlow("pg")))
}

func (suite *PostgreSQLFlowStoreTestSuite) TestInsertFlowConflict() {
	suite.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO flows")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := suite.provider.GetFlowStore().InsertFlow(suite.ctx, sampleFlow("pg"))
	assert.ErrorIs(suite.T(), err, ErrFlowExists)
}

func (suite *PostgreSQLFlowStoreTestSuite) TestReplaceFlowMissing() {
	suite.mock.ExpectExec(regexp.QuoteMeta("UPDATE flows SET name = $1, description = $2, steps = $3, is_active = $4, updated_at = $5 WHERE flow_id = $6")).
		WithArgs("Sample pg", "two step sample", sqlmock.AnyArg(), true, sqlmock.AnyArg(), "pg").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := suite.provider.GetFlowStore().ReplaceFlow(suite.ctx, sampleFlow("pg"))
	assert.ErrorIs(suite.T(), err, ErrFlowNotFound)
}

func (suite *PostgreSQLFlowStoreTestSuite) TestDeleteFlowReturnsRowsAffected() {
	suite.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM flows WHERE flow_id = $1")).
		WithArgs("pg").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := suite.provider.GetFlowStore().DeleteFlow(suite.ctx, "pg")
	assert.NoError(suite.T(), err)
	assert.EqualValues(suite.T(), 1, n)
}

func (suite *PostgreSQLFlowStoreTestSuite) TestListFlowsCountsSteps() {
	steps, err := json.Marshal(sampleFlow("a").Steps)
	require.NoError(suite.T(), err)

	rows := sqlmock.NewRows([]string{"flow_id", "name", "description", "steps", "is_active"}).
		AddRow("a", "Sample a", "", string(steps), true).
		AddRow("b", "Sample b", "", "[]", false)
	suite.mock.ExpectQuery(regexp.QuoteMeta("FROM flows ORDER BY flow_id")).WillReturnRows(rows)

	summaries, err := suite.provider.GetFlowStore().ListFlows(suite.ctx)

	require.NoError(suite.T(), err)
	require.Len(suite.T(), summaries, 2)
	assert.Equal(suite.T(), 2, summaries[0].StepsCount)
	assert.Equal(suite.T(), 0, summaries[1].StepsCount)
	assert.False(suite.T(), summaries[1].IsActive)
}

func (suite *PostgreSQLFlowStoreTestSuite) TestDatabaseErrorIsWrapped() {
	dbErr := errors.New("connection reset")
	suite.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM flows")).WillReturnError(dbErr)

	_, err := suite.provider.GetFlowStore().DeleteFlow(suite.ctx, "pg")
	assert.ErrorIs(suite.T(), err, dbErr)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = $1 AND b = $2", dialectPostgres.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = ? AND b = ?", dialectSQLite.rebind("a = ? AND b = ?"))
}

func TestPostgreSQLConnectionStringDefaults(t *testing.T) {
	cfg := PostgreSQLProviderConfig{Host: "db", User: "u", Password: "p", Database: "flows"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=flows sslmode=disable", cfg.ConnectionString())
}

// TestPostgreSQLProvider runs the store contract against a live server.
// It will be skipped if the required environment variables are not set
func TestPostgreSQLProvider(t *testing.T) {
	host := os.Getenv("POSTGRES_HOST")
	user := os.Getenv("POSTGRES_USER")
	password := os.Getenv("POSTGRES_PASSWORD")
	dbName := os.Getenv("POSTGRES_DB")

	if host == "" || user == "" || password == "" || dbName == "" {
		t.Skip("Skipping PostgreSQL tests as credentials are not set")
	}

	port := 5432
	if p, err := strconv.Atoi(os.Getenv("POSTGRES_PORT")); err == nil {
		port = p
	}

	suite.Run(t, &FlowStoreSuite{newStore: func(t *testing.T) FlowStore {
		provider, err := NewPostgreSQLProvider(PostgreSQLProviderConfig{
			Host:     host,
			Port:     port,
			User:     user,
			Password: password,
			Database: dbName,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = provider.Close() })

		require.NoError(t, provider.Initialize(context.Background()))
		_, err = provider.db.Exec("DELETE FROM flows")
		require.NoError(t, err)
		return provider.GetFlowStore()
	}})
}
