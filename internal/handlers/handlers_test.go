package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dabrowne/ledgerfs/config"
	"github.com/dabrowne/ledgerfs/internal/ledger"
	"github.com/dabrowne/ledgerfs/internal/route"
	"github.com/dabrowne/ledgerfs/internal/vfs"
)

type fakeAPI struct {
	accounts []ledger.Account
	balance  ledger.Balance
	txns     []ledger.Transaction
	details  map[string]ledger.Transaction

	accountsCalls int
	balanceCalls  int
	listCalls     int
	detailCalls   []string
}

func (f *fakeAPI) Accounts(ctx context.Context) ([]ledger.Account, error) {
	f.accountsCalls++
	return f.accounts, nil
}

func (f *fakeAPI) Balance(ctx context.Context, accountID string) (ledger.Balance, error) {
	f.balanceCalls++
	return f.balance, nil
}

func (f *fakeAPI) Transactions(ctx context.Context, accountID string, from, to time.Time) ([]ledger.Transaction, error) {
	f.listCalls++
	var in []ledger.Transaction
	for _, txn := range f.txns {
		if ts, ok := txn.Created(); ok && !ts.Before(from) && ts.Before(to) {
			in = append(in, txn)
		}
	}
	return in, nil
}

func (f *fakeAPI) Transaction(ctx context.Context, id string, expandMerchant bool) (ledger.Transaction, error) {
	f.detailCalls = append(f.detailCalls, fmt.Sprintf("%s/%t", id, expandMerchant))
	txn, ok := f.details[id]
	if !ok {
		return nil, fmt.Errorf("no transaction %s", id)
	}
	txn = txn.Clone()
	if expandMerchant {
		txn["merchant"] = map[string]any{"id": "merch_1", "name": "Coffee Shop"}
	}
	return txn, nil
}

func newTestService(t *testing.T) (*fakeAPI, *route.Router) {
	t.Helper()

	detail := ledger.Transaction{
		"id":       "tx_1",
		"created":  "2016-05-10T12:00:00Z",
		"amount":   float64(-250),
		"currency": "GBP",
		"merchant": "merch_1",
		"metadata": map[string]any{"notes": "flat white"},
	}
	api := &fakeAPI{
		accounts: []ledger.Account{{ID: "acc_1"}, {ID: "acc_2"}},
		balance:  ledger.Balance{Balance: 5000, Currency: "GBP", SpendToday: -220},
		txns: []ledger.Transaction{
			detail.Clone(),
			{"id": "tx_2", "created": "2016-05-20T08:00:00Z", "amount": float64(1000)},
		},
		details: map[string]ledger.Transaction{"tx_1": detail},
	}

	svc := NewService(api, config.NewConfig(nil))
	svc.now = func() time.Time { return time.Date(2016, 8, 15, 0, 0, 0, 0, time.UTC) }

	r := route.NewRouter()
	require.NoError(t, svc.Register(r))
	return api, r
}

func readDir(t *testing.T, r *route.Router, path string) []string {
	t.Helper()
	n, err := r.Dispatch(route.OpReadDir, path)
	require.NoError(t, err)
	require.Equal(t, route.Dir, n.Kind)
	return n.Entries
}

func readLink(t *testing.T, r *route.Router, path string) string {
	t.Helper()
	n, err := r.Dispatch(route.OpReadLink, path)
	require.NoError(t, err)
	return string(n.Data)
}

func TestRootListsAccountsOnce(t *testing.T) {
	t.Parallel()

	api, r := newTestService(t)

	assert.Equal(t, []string{"acc_1", "acc_2"}, readDir(t, r, "/"))
	assert.Equal(t, []string{"acc_1", "acc_2"}, readDir(t, r, "/"))
	assert.Equal(t, 1, api.accountsCalls, "second listing should come from cache")
}

func TestAccountDir(t *testing.T) {
	t.Parallel()

	_, r := newTestService(t)
	assert.Equal(t, []string{"transactions", "balance"}, readDir(t, r, "/acc_1"))
}

func TestYearsRunFromFirstYearToNow(t *testing.T) {
	t.Parallel()

	_, r := newTestService(t)
	assert.Equal(t, []string{"2015", "2016"}, readDir(t, r, "/acc_1/transactions"))
}

func TestMonthsClipToCurrentMonth(t *testing.T) {
	t.Parallel()

	_, r := newTestService(t)

	assert.Len(t, readDir(t, r, "/acc_1/transactions/2015"), 12)
	// August of the simulated clock.
	months := readDir(t, r, "/acc_1/transactions/2016")
	assert.Len(t, months, 8)
	assert.Equal(t, "01", months[0])
	assert.Equal(t, "08", months[7])
}

func TestMonthListingAndWindow(t *testing.T) {
	t.Parallel()

	_, r := newTestService(t)

	assert.Equal(t, []string{"tx_1", "tx_2"}, readDir(t, r, "/acc_1/transactions/2016/05"))
	assert.Empty(t, readDir(t, r, "/acc_1/transactions/2016/06"))
}

func TestBadYearOrMonthIsNotRouted(t *testing.T) {
	t.Parallel()

	_, r := newTestService(t)

	for _, path := range []string{
		"/acc_1/transactions/not-a-year",
		"/acc_1/transactions/not-a-year/05",
		"/acc_1/transactions/2016/13",
	} {
		_, err := r.Dispatch(route.OpReadDir, path)
		assert.ErrorIs(t, err, route.ErrNotRouted, path)
	}
}

func TestMonthListingSeedsDetailCache(t *testing.T) {
	t.Parallel()

	api, r := newTestService(t)

	readDir(t, r, "/acc_1/transactions/2016/05")
	fields := readDir(t, r, "/acc_1/transactions/2016/05/tx_1")

	assert.Equal(t, []string{"amount", "created", "currency", "id", "merchant", "metadata", "json"}, fields)
	assert.Empty(t, api.detailCalls, "seeded entry should answer the detail lookup")
}

func TestUnlistedTransactionFetchesDetail(t *testing.T) {
	t.Parallel()

	api, r := newTestService(t)

	readDir(t, r, "/acc_1/transactions/2016/05/tx_1")
	readDir(t, r, "/acc_1/transactions/2016/05/tx_1")
	assert.Equal(t, []string{"tx_1/false"}, api.detailCalls, "detail fetched once, then cached")
}

func TestTransactionFieldRendering(t *testing.T) {
	t.Parallel()

	_, r := newTestService(t)
	base := "/acc_1/transactions/2016/05/tx_1"

	assert.Equal(t, "GBP\n", readLink(t, r, base+"/currency"))
	assert.Equal(t, "-2.50\n", readLink(t, r, base+"/amount"))

	assert.Equal(t, []string{"notes"}, readDir(t, r, base+"/metadata"))
	assert.Equal(t, "flat white\n", readLink(t, r, base+"/metadata/notes"))
}

func TestMerchantTraversalExpands(t *testing.T) {
	t.Parallel()

	api, r := newTestService(t)
	base := "/acc_1/transactions/2016/05/tx_1"

	// Seed the plain detail first; merchant browsing still requires the
	// expanded object.
	readDir(t, r, "/acc_1/transactions/2016/05")

	assert.Equal(t, []string{"id", "name"}, readDir(t, r, base+"/merchant"))
	assert.Equal(t, "Coffee Shop\n", readLink(t, r, base+"/merchant/name"))
	assert.Equal(t, "merch_1\n", readLink(t, r, base+"/merchant/id"))

	assert.Equal(t, []string{"tx_1/true"}, api.detailCalls,
		"one expanded fetch serves the whole merchant subtree; seeded entries never do")
}

func TestNonExpandedMerchantIsBlanked(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		txns: []ledger.Transaction{
			{"id": "tx_1", "created": "2016-05-10T12:00:00Z", "merchant": "merch_1"},
		},
		details: map[string]ledger.Transaction{
			"tx_1": {"id": "tx_1", "merchant": "merch_1"},
		},
	}

	// Seeded through the month listing.
	svc := NewService(api, config.NewConfig(nil))
	_, err := svc.listMonth("acc_1", "2016", "05")
	require.NoError(t, err)
	seeded, ok := svc.details.Get(detailKey("tx_1", false))
	require.True(t, ok)
	assert.Equal(t, map[string]any{}, seeded["merchant"])

	// Fetched directly without listing first: identical shape.
	svc = NewService(api, config.NewConfig(nil))
	fetched, err := svc.getTransaction("tx_1", false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, fetched["merchant"])
}

func TestBlankMerchant(t *testing.T) {
	t.Parallel()

	txn := ledger.Transaction{"id": "tx_1", "merchant": "merch_1"}
	blanked := blankMerchant(txn)
	assert.Equal(t, map[string]any{}, blanked["merchant"])
	assert.Equal(t, "merch_1", txn["merchant"], "input is not mutated")

	assert.NotContains(t, blankMerchant(ledger.Transaction{"id": "tx_2"}), "merchant")
}

func TestUnknownFieldIsNotRouted(t *testing.T) {
	t.Parallel()

	_, r := newTestService(t)

	_, err := r.Dispatch(route.OpReadLink, "/acc_1/transactions/2016/05/tx_1/no_such_field")
	assert.ErrorIs(t, err, route.ErrNotRouted)

	fsys := vfs.New(r)
	_, err = fsys.GetAttr("/acc_1/transactions/2016/05/tx_1/no_such_field")
	assert.ErrorIs(t, err, vfs.ErrNotExist)
}

func TestTransactionJSONExpandsMerchant(t *testing.T) {
	t.Parallel()

	api, r := newTestService(t)

	// Seed the plain detail first; json must still go upstream for the
	// merchant expansion.
	readDir(t, r, "/acc_1/transactions/2016/05")
	out := readLink(t, r, "/acc_1/transactions/2016/05/tx_1/json")

	assert.Equal(t, []string{"tx_1/true"}, api.detailCalls)
	assert.Equal(t, byte('\n'), out[len(out)-1])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, map[string]any{"id": "merch_1", "name": "Coffee Shop"}, decoded["merchant"])
}

func TestJSONShadowsFieldTemplates(t *testing.T) {
	t.Parallel()

	_, r := newTestService(t)

	// getattr resolution: the readdir field route declines "json", the
	// readlink json route answers with a file.
	fsys := vfs.New(r)
	attr, err := fsys.GetAttr("/acc_1/transactions/2016/05/tx_1/json")
	require.NoError(t, err)
	assert.NotZero(t, attr.Size)
}

func TestBalanceSubtree(t *testing.T) {
	t.Parallel()

	api, r := newTestService(t)

	assert.Equal(t, []string{"balance", "currency", "spend_today"}, readDir(t, r, "/acc_1/balance"))
	assert.Equal(t, "50.00\n", readLink(t, r, "/acc_1/balance/balance"))
	assert.Equal(t, "GBP\n", readLink(t, r, "/acc_1/balance/currency"))
	assert.Equal(t, "-2.20\n", readLink(t, r, "/acc_1/balance/spend_today"))

	assert.Equal(t, 1, api.balanceCalls, "one fetch serves the whole subtree within the TTL")
}
