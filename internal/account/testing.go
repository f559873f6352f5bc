package account

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that force-sets balances when using the
// in-memory store.
func SeedBalance(s Store, id string, balance, available decimal.Decimal) {
	if mem, ok := s.(*MemoryStore); ok {
		_ = mem.Mutate([]string{id}, func(accs map[string]*Account) error {
			a := accs[id]
			a.Balance = balance
			a.AvailableBalance = available
			return nil
		})
	}
}

// SeedStatus is a test helper that force-sets the account status when
// using the in-memory store.
func SeedStatus(s Store, id, status string) {
	if mem, ok := s.(*MemoryStore); ok {
		_ = mem.Mutate([]string{id}, func(accs map[string]*Account) error {
			accs[id].Status = status
			return nil
		})
	}
}
