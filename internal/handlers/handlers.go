// Package handlers builds the route table that projects the ledger API as
// a directory tree: accounts at the root, year/month transaction listings
// beneath them, per-transaction field traversal and a balance subtree.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dabrowne/ledgerfs/config"
	"github.com/dabrowne/ledgerfs/internal/ledger"
	"github.com/dabrowne/ledgerfs/internal/memo"
	"github.com/dabrowne/ledgerfs/internal/route"
	"github.com/dabrowne/ledgerfs/internal/util"
)

// API is the slice of the ledger client the handlers consume.
type API interface {
	Accounts(ctx context.Context) ([]ledger.Account, error)
	Balance(ctx context.Context, accountID string) (ledger.Balance, error)
	Transactions(ctx context.Context, accountID string, from, to time.Time) ([]ledger.Transaction, error)
	Transaction(ctx context.Context, id string, expandMerchant bool) (ledger.Transaction, error)
}

// penceFields are top-level transaction fields holding minor-unit amounts,
// rendered as two-decimal-place pounds.
var penceFields = map[string]bool{
	"amount":          true,
	"local_amount":    true,
	"account_balance": true,
}

// Service owns the handlers and their caches. Month listings seed the
// per-transaction detail cache, so browsing into a just-listed transaction
// normally costs no extra upstream call; merchant-expanded lookups are
// cached under a separate key and never served from seeded entries.
type Service struct {
	api API
	cfg *config.Config
	log zerolog.Logger
	now func() time.Time

	details  *memo.Cache[ledger.Transaction]
	balances *memo.Cache[ledger.Balance]
}

func NewService(api API, cfg *config.Config) *Service {
	return &Service{
		api:      api,
		cfg:      cfg,
		log:      util.GetLogger("handlers"),
		now:      time.Now,
		details:  memo.New[ledger.Transaction](cfg.TransactionTTL),
		balances: memo.New[ledger.Balance](cfg.BalanceTTL),
	}
}

// Register installs the full route table. Within each operation table the
// first matching route wins, so ordering here is load-bearing: the json
// route must precede the generic field templates or "json" would be
// captured as a field name.
func (s *Service) Register(r *route.Router) error {
	const txnBase = "/<account>/transactions/<year>/<month>/<txn>"

	regs := []struct {
		op       route.Op
		template string
		handler  route.Handler
	}{
		{route.OpReadDir, "/", memo.Wrap(route.Func0(s.listAccounts), s.cfg.AccountsTTL)},
		{route.OpReadDir, "/<account>", memo.Wrap(route.Func1(s.listAccount), s.cfg.AccountsTTL)},
		{route.OpReadDir, "/<account>/transactions", route.Func1(s.listYears)},
		{route.OpReadDir, "/<account>/transactions/<year>", route.Func2(s.listMonths)},
		{route.OpReadDir, "/<account>/transactions/<year>/<month>",
			memo.Wrap(route.Func3(s.listMonth), s.cfg.TransactionsTTL)},
		{route.OpReadDir, txnBase, route.Func4(s.listTransaction)},
		{route.OpReadLink, txnBase + "/json", route.AppendNewline(route.Func4(s.transactionJSON))},
		{route.OpReadDir, "/<account>/balance", route.Func1(s.listBalance)},
		{route.OpReadLink, "/<account>/balance/balance",
			route.AppendNewline(route.FormatPence(route.Func1(s.balanceAmount)))},
		{route.OpReadLink, "/<account>/balance/currency", route.AppendNewline(route.Func1(s.balanceCurrency))},
		{route.OpReadLink, "/<account>/balance/spend_today",
			route.AppendNewline(route.FormatPence(route.Func1(s.balanceSpendToday)))},
	}
	for _, reg := range regs {
		if err := r.Handle(reg.op, reg.template, reg.handler); err != nil {
			return err
		}
	}

	field := route.AppendNewline(route.Variadic(s.transactionField))
	return r.HandleAll(
		[]route.Op{route.OpReadDir, route.OpReadLink},
		[]string{
			txnBase + "/<f1>",
			txnBase + "/<f1>/<f2>",
			txnBase + "/<f1>/<f2>/<f3>",
		},
		field,
	)
}

// notRouted wraps route.ErrNotRouted so a matched route can still resolve
// to "no such entry" instead of an I/O failure. The attribute fallback
// between operation tables depends on this.
func notRouted(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, route.ErrNotRouted)...)
}

func (s *Service) listAccounts() (any, error) {
	accounts, err := s.api.Accounts(context.Background())
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	ids := make([]string, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	return ids, nil
}

func (s *Service) listAccount(account string) (any, error) {
	return []string{"transactions", "balance"}, nil
}

func (s *Service) listYears(account string) (any, error) {
	years := make([]string, 0, 8)
	for y := s.cfg.FirstYear; y <= s.now().Year(); y++ {
		years = append(years, strconv.Itoa(y))
	}
	return years, nil
}

// listMonths lists "01".."12", clipped to the current month when year is
// the current year.
func (s *Service) listMonths(account, year string) (any, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return nil, notRouted("year %q", year)
	}
	last := 12
	if now := s.now(); y == now.Year() {
		last = int(now.Month())
	}
	months := make([]string, 0, last)
	for m := 1; m <= last; m++ {
		months = append(months, fmt.Sprintf("%02d", m))
	}
	return months, nil
}

// listMonth lists the transaction ids created within the month and seeds
// the detail cache with the listing objects, which carry every field a
// non-expanded detail fetch would.
func (s *Service) listMonth(account, year, month string) (any, error) {
	from, to, err := monthWindow(year, month)
	if err != nil {
		return nil, err
	}
	txns, err := s.api.Transactions(context.Background(), account, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions %s %s-%s: %w", account, year, month, err)
	}

	ids := make([]string, 0, len(txns))
	for _, txn := range txns {
		id := txn.ID()
		if id == "" {
			continue
		}
		s.details.Put(detailKey(id, false), blankMerchant(txn))
		ids = append(ids, id)
	}
	s.log.Debug().Str("account", account).Str("month", year+"-"+month).
		Int("count", len(ids)).Msg("Listed month transactions")
	return ids, nil
}

// monthWindow returns the half-open UTC interval [first of month, first of
// next month).
func monthWindow(year, month string) (time.Time, time.Time, error) {
	y, err := strconv.Atoi(year)
	if err != nil || y < 1 {
		return time.Time{}, time.Time{}, notRouted("year %q", year)
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return time.Time{}, time.Time{}, notRouted("month %q", month)
	}
	from := time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

func (s *Service) listTransaction(account, year, month, id string) (any, error) {
	txn, err := s.getTransaction(id, false)
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(txn)+1)
	for k := range txn {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return append(fields, "json"), nil
}

func (s *Service) transactionJSON(account, year, month, id string) (any, error) {
	txn, err := s.getTransaction(id, true)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(txn, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render transaction %s: %w", id, err)
	}
	return data, nil
}

// transactionField walks one to three field names into a transaction
// object. Object values list their sorted keys, the well-known pence
// fields render as pounds and anything else renders as its printed form.
// Entering the merchant field forces the expanded fetch, so the merchant
// browses as a directory of its own fields rather than a bare id.
func (s *Service) transactionField(args ...string) (any, error) {
	id, fields := args[3], args[4:]
	txn, err := s.getTransaction(id, fields[0] == "merchant")
	if err != nil {
		return nil, err
	}

	var v any = map[string]any(txn)
	for _, f := range fields {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, notRouted("field %q", f)
		}
		if v, ok = obj[f]; !ok {
			return nil, notRouted("field %q", f)
		}
	}

	if len(fields) == 1 && penceFields[fields[0]] {
		return route.PenceString(v)
	}
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, nil
	case nil:
		return "", nil
	}
	return v, nil
}

// getTransaction serves transaction details through the two-tier cache.
// Non-expanded lookups share a key with the month-listing seeds; expanded
// lookups use their own key so a seeded entry never answers for merchant
// data it does not hold.
func (s *Service) getTransaction(id string, merchant bool) (ledger.Transaction, error) {
	return s.details.Do(detailKey(id, merchant), func() (ledger.Transaction, error) {
		txn, err := s.api.Transaction(context.Background(), id, merchant)
		if err != nil {
			return nil, err
		}
		if !merchant {
			txn = blankMerchant(txn)
		}
		return txn, nil
	})
}

// blankMerchant clears the merchant field on a copy. Seeded and
// non-expanded entries carry a bare merchant id or nothing depending on
// which endpoint produced them; blanking makes every non-expanded path
// render identically regardless of fetch order.
func blankMerchant(t ledger.Transaction) ledger.Transaction {
	cp := t.Clone()
	if _, ok := cp["merchant"]; ok {
		cp["merchant"] = map[string]any{}
	}
	return cp
}

func detailKey(id string, merchant bool) string {
	if merchant {
		return memo.Key(id, "merchant")
	}
	return memo.Key(id)
}

func (s *Service) listBalance(account string) (any, error) {
	return []string{"balance", "currency", "spend_today"}, nil
}

func (s *Service) balance(account string) (ledger.Balance, error) {
	return s.balances.Do(account, func() (ledger.Balance, error) {
		return s.api.Balance(context.Background(), account)
	})
}

func (s *Service) balanceAmount(account string) (any, error) {
	b, err := s.balance(account)
	if err != nil {
		return nil, err
	}
	return b.Balance, nil
}

func (s *Service) balanceCurrency(account string) (any, error) {
	b, err := s.balance(account)
	if err != nil {
		return nil, err
	}
	return b.Currency, nil
}

func (s *Service) balanceSpendToday(account string) (any, error) {
	b, err := s.balance(account)
	if err != nil {
		return nil, err
	}
	return b.SpendToday, nil
}
