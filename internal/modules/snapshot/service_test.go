package snapshot

import (
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamscryps/backend/internal/database"
	"github.com/teamscryps/backend/internal/domain"
	"github.com/teamscryps/backend/internal/modules/accounts"
	"github.com/teamscryps/backend/internal/modules/holdings"
	"github.com/teamscryps/backend/internal/modules/orders"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano()),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	require.NoError(t, database.InitSchema(db.Conn()))
	t.Cleanup(func() { _ = db.Close() })
	return db.Conn()
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func buyFill(symbol string, qty int64, price string, at time.Time) orders.UserFill {
	return orders.UserFill{
		Fill:   domain.OrderFill{Quantity: qty, Price: dec(price), CreatedAt: at},
		Symbol: symbol,
		Side:   domain.SideBuy,
	}
}

func sellFill(symbol string, qty int64, price string, at time.Time) orders.UserFill {
	return orders.UserFill{
		Fill:   domain.OrderFill{Quantity: qty, Price: dec(price), CreatedAt: at},
		Symbol: symbol,
		Side:   domain.SideSell,
	}
}

func TestRealizedPnLMatchesFIFOLots(t *testing.T) {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	fills := []orders.UserFill{
		buyFill("ABC", 10, "100", base),
		buyFill("ABC", 10, "110", base.Add(time.Minute)),
		// Sells 15: 10 from the 100-lot, 5 from the 110-lot.
		sellFill("ABC", 15, "120", base.Add(2*time.Minute)),
	}

	// 10*(120-100) + 5*(120-110) = 250
	assert.Equal(t, "250.00", RealizedPnL(fills).StringFixed(2))
}

func TestRealizedPnLPerSymbolQueues(t *testing.T) {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	fills := []orders.UserFill{
		buyFill("ABC", 10, "100", base),
		buyFill("XYZ", 5, "50", base.Add(time.Minute)),
		sellFill("ABC", 10, "90", base.Add(2*time.Minute)), // -100
		sellFill("XYZ", 5, "60", base.Add(3*time.Minute)),  // +50
	}
	assert.Equal(t, "-50.00", RealizedPnL(fills).StringFixed(2))
}

func TestRealizedPnLExcessSellIsZeroBasis(t *testing.T) {
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	fills := []orders.UserFill{
		buyFill("ABC", 5, "100", base),
		sellFill("ABC", 8, "110", base.Add(time.Minute)),
	}
	// 5*(110-100) matched + 3*110 at zero basis = 50 + 330
	assert.Equal(t, "380.00", RealizedPnL(fills).StringFixed(2))
}

func TestRealizedPnLEmpty(t *testing.T) {
	assert.True(t, RealizedPnL(nil).IsZero())
}

func setupService(t *testing.T) (*Service, *accounts.Repository, *holdings.Service, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	log := zerolog.Nop()
	accountsRepo := accounts.NewRepository(db, log)
	holdingsRepo := holdings.NewRepository(db, log)
	holdingsSvc := holdings.NewService(holdingsRepo, accountsRepo, log)
	fillsRepo := orders.NewFillRepository(db, log)
	repo := NewRepository(db, log)
	svc := NewService(db, repo, holdingsRepo, accountsRepo, fillsRepo, log)
	return svc, accountsRepo, holdingsSvc, db
}

func TestCreateDailyIsWrittenOncePerDate(t *testing.T) {
	svc, accountsRepo, holdingsSvc, db := setupService(t)

	u := &domain.User{Email: "snap@example.com", Role: domain.RoleClient, CashAvailable: dec("1000.00")}
	_, err := accountsRepo.CreateUser(db, u)
	require.NoError(t, err)
	_, err = holdingsSvc.ApplyBuy(db, u.ID, "ABC", 10, dec("50"))
	require.NoError(t, err)

	snap, created, err := svc.CreateDaily(u.ID, "2026-08-24")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "1000.00", snap.CashAvailable.StringFixed(2))
	require.Len(t, snap.Holdings, 1)
	assert.Equal(t, "ABC", snap.Holdings[0].Symbol)

	again, created, err := svc.CreateDaily(u.ID, "2026-08-24")
	require.NoError(t, err)
	assert.False(t, created, "at most one snapshot per (user, date)")
	assert.Equal(t, snap.SnapshotDate, again.SnapshotDate)
}

func TestPortfolioValuesPositionsAtLastFillPrice(t *testing.T) {
	svc, accountsRepo, holdingsSvc, db := setupService(t)

	u := &domain.User{Email: "pf@example.com", Role: domain.RoleClient, CashAvailable: dec("500.00")}
	_, err := accountsRepo.CreateUser(db, u)
	require.NoError(t, err)
	_, err = holdingsSvc.ApplyBuy(db, u.ID, "ABC", 10, dec("40"))
	require.NoError(t, err)

	// A buy order with one fill at 42 sets the mark price.
	ordersRepo := orders.NewRepository(db, zerolog.Nop())
	fillsRepo := orders.NewFillRepository(db, zerolog.Nop())
	o := &domain.Order{
		UserID: u.ID, PlacedBy: u.ID, Symbol: "ABC",
		Side: domain.SideBuy, Product: domain.ProductEquity, OrderType: domain.OrderTypeMarket,
		Quantity: 10, Status: domain.StatusFilled, FilledQty: 10, AvgFillPrice: dec("42"),
	}
	_, err = ordersRepo.Create(db, o)
	require.NoError(t, err)
	_, err = fillsRepo.Create(db, &domain.OrderFill{OrderID: o.ID, Quantity: 10, Price: dec("42")})
	require.NoError(t, err)

	p, err := svc.Portfolio(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "420.00", p.HoldingsValue.StringFixed(2))
	assert.Equal(t, "920.00", p.TotalValue.StringFixed(2))
	require.Len(t, p.Holdings, 1)
	assert.Equal(t, "42.0000", p.Holdings[0].MktPrice.StringFixed(4))
	assert.Equal(t, "20.00", p.Holdings[0].Unrealized.StringFixed(2))
}
