package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"confgive/internal/infrastructure/persistence/models"
	apperrors "confgive/internal/shared/errors"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.GivingModel{}))

	return db
}

func productionRecord(tradeID string, amount int64) *models.GivingModel {
	id := tradeID
	return &models.GivingModel{
		Name:      "王小明",
		Amount:    amount,
		Currency:  "TWD",
		Date:      "2024-01-01",
		TPTradeID: &id,
		IsSuccess: true,
		Env:       "production",
	}
}

func TestCreateAndDuplicateTradeID(t *testing.T) {
	repo := NewGivingRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, productionRecord("T123", 1000)))

	err := repo.Create(ctx, productionRecord("T123", 1000))
	require.Error(t, err)
	assert.True(t, apperrors.IsDuplicateError(err))

	var count int64
	require.NoError(t, repo.db.Model(&models.GivingModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateDistinctTradeIDs(t *testing.T) {
	repo := NewGivingRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, productionRecord("T1", 100)))
	require.NoError(t, repo.Create(ctx, productionRecord("T2", 100)))

	var count int64
	require.NoError(t, repo.db.Model(&models.GivingModel{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCreateAllowsMultipleNullTradeIDs(t *testing.T) {
	repo := NewGivingRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.GivingModel{Name: "a", Amount: 10, Currency: "TWD", Date: "2024-01-01", Env: "production"}))
	require.NoError(t, repo.Create(ctx, &models.GivingModel{Name: "b", Amount: 20, Currency: "TWD", Date: "2024-01-01", Env: "production"}))

	var count int64
	require.NoError(t, repo.db.Model(&models.GivingModel{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCreateBatchAllOrNothing(t *testing.T) {
	repo := NewGivingRepository(setupTestDB(t))
	ctx := context.Background()

	dupID := "SY001"
	otherID := "SY002"
	t1, t2, t3 := "siyuan-SY001", "siyuan-SY002", "siyuan-SY001b"
	batch := []*models.GivingModel{
		{Name: "Siyuan-SY001", Amount: 100, Currency: "TWD", Date: "2024-01-01", Env: "production", Imported: true, SiyuanID: &dupID, TPTradeID: &t1},
		{Name: "Siyuan-SY002", Amount: 200, Currency: "TWD", Date: "2024-01-01", Env: "production", Imported: true, SiyuanID: &otherID, TPTradeID: &t2},
	}
	dupAgain := dupID
	batch = append(batch, &models.GivingModel{
		Name: "Siyuan-dup", Amount: 300, Currency: "TWD", Date: "2024-01-01", Env: "production", Imported: true, SiyuanID: &dupAgain, TPTradeID: &t3,
	})

	inserted, err := repo.CreateBatch(ctx, batch)

	require.Error(t, err)
	assert.Equal(t, 0, inserted)

	var count int64
	require.NoError(t, repo.db.Model(&models.GivingModel{}).Count(&count).Error)
	assert.Equal(t, int64(0), count, "failed batch must commit nothing")
}

func TestCreateBatchCommitsAllRows(t *testing.T) {
	repo := NewGivingRepository(setupTestDB(t))
	ctx := context.Background()

	var batch []*models.GivingModel
	for i := 1; i <= 3; i++ {
		sid := fmt.Sprintf("SY%03d", i)
		tid := "siyuan-" + sid
		batch = append(batch, &models.GivingModel{
			Name: "Siyuan-" + sid, Amount: int64(i * 100), Currency: "TWD", Date: "2024-01-01",
			Env: "production", Imported: true, SiyuanID: &sid, TPTradeID: &tid,
		})
	}

	inserted, err := repo.CreateBatch(ctx, batch)

	require.NoError(t, err)
	assert.Equal(t, 3, inserted)
}

func TestCreateBatchEmpty(t *testing.T) {
	repo := NewGivingRepository(setupTestDB(t))

	inserted, err := repo.CreateBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func TestListAfterFiltersAndOrders(t *testing.T) {
	repo := NewGivingRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, productionRecord("T1", 100)))

	sandbox := productionRecord("T2", 100)
	sandbox.Env = "sandbox"
	require.NoError(t, repo.Create(ctx, sandbox))

	// Amount 1 is the placeholder used by test charges; excluded from exports.
	tiny := productionRecord("T3", 1)
	require.NoError(t, repo.Create(ctx, tiny))

	require.NoError(t, repo.Create(ctx, productionRecord("T4", 500)))
	require.NoError(t, repo.Create(ctx, productionRecord("T5", 800)))

	records, err := repo.ListAfter(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "T1", *records[0].TPTradeID)
	assert.Equal(t, "T4", *records[1].TPTradeID)
	assert.Equal(t, "T5", *records[2].TPTradeID)

	records, err = repo.ListAfter(ctx, records[0].ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "T4", *records[0].TPTradeID)
}

func TestListProductionSuccessful(t *testing.T) {
	repo := NewGivingRepository(setupTestDB(t))
	ctx := context.Background()

	later := productionRecord("T1", 100)
	later.Date = "2024-03-01"
	require.NoError(t, repo.Create(ctx, later))

	earlier := productionRecord("T2", 200)
	earlier.Date = "2024-01-15"
	require.NoError(t, repo.Create(ctx, earlier))

	failed := productionRecord("T3", 300)
	failed.IsSuccess = false
	require.NoError(t, repo.Create(ctx, failed))

	sandbox := productionRecord("T4", 400)
	sandbox.Env = "sandbox"
	require.NoError(t, repo.Create(ctx, sandbox))

	records, err := repo.ListProductionSuccessful(ctx)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "2024-01-15", records[0].Date)
	assert.Equal(t, "2024-03-01", records[1].Date)
}
