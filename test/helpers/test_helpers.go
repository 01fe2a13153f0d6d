package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/repository"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/pg"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupTestDB returns a migrated in-memory database behind both handles of a pg.DB.
func SetupTestDB(t *testing.T) *pg.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(
		&repository.XrefEntity{},
		&repository.AccountEntity{},
		&repository.CustomerEntity{},
	)
	require.NoError(t, err)

	return pg.New(db, db)
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()
	mr := miniredis.RunT(t)

	adapter, err := redis.NewRedisAdapter(t.Name(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	return mr, adapter
}

func CreateTestAccount(t *testing.T, db *pg.DB, id int64) *repository.AccountEntity {
	t.Helper()
	account := &repository.AccountEntity{ID: id, Status: "Y"}
	err := db.Write(context.Background()).Create(account).Error
	require.NoError(t, err)
	return account
}

func CreateTestCustomer(t *testing.T, db *pg.DB, id int64) *repository.CustomerEntity {
	t.Helper()
	customer := &repository.CustomerEntity{ID: id, FirstName: "Test", LastName: "Customer"}
	err := db.Write(context.Background()).Create(customer).Error
	require.NoError(t, err)
	return customer
}

// InsertRawXref writes a row without validation, the way legacy data may look.
func InsertRawXref(t *testing.T, db *pg.DB, cardNumber string, customerID, accountID int64) {
	t.Helper()
	err := db.Write(context.Background()).Create(&repository.XrefEntity{
		CardNumber: cardNumber,
		CustomerID: customerID,
		AccountID:  accountID,
	}).Error
	require.NoError(t, err)
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func Ptr[T any](v T) *T {
	return &v
}
