package ledgertest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dispatchly/ledger-api/internal/domain/entity"
	"github.com/dispatchly/ledger-api/internal/domain/paymentmethod"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/domain/wallet"
)

// Fixture wires the fakes to the real ledger, registrar and vault.
type Fixture struct {
	Clock          *Clock
	Wallets        *Wallets
	Transactions   *Transactions
	PaymentMethods *PaymentMethods
	OTPs           *OTPs
	Tx             *Transactor
	Gateway        *Gateway
	Notifier       *Notifier

	Ledger    *wallet.Ledger
	Registrar *transaction.Registrar
	Vault     *paymentmethod.Vault
}

func New() *Fixture {
	f := &Fixture{
		Clock:          NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Wallets:        NewWallets(),
		Transactions:   NewTransactions(),
		PaymentMethods: NewPaymentMethods(),
		OTPs:           NewOTPs(),
		Gateway:        NewGateway(),
		Notifier:       &Notifier{},
	}
	f.Tx = NewTransactor(f.Wallets, f.Transactions, f.PaymentMethods, f.OTPs)
	f.Ledger = wallet.NewLedger(f.Wallets)
	f.Registrar = transaction.NewRegistrar(f.Transactions).WithClock(f.Clock.Now)
	f.Vault = paymentmethod.NewVault(f.Tx, f.PaymentMethods).WithClock(f.Clock.Now)
	return f
}

// NewEntity creates a wallet holder of type typ with balance.
func (f *Fixture) NewEntity(typ entity.Type, balance string) entity.Ref {
	ref := entity.NewRef(uuid.New(), typ)
	f.Wallets.Add(ref, decimal.RequireFromString(balance))
	return ref
}

// Balance returns ref's balance.
func (f *Fixture) Balance(ref entity.Ref) decimal.Decimal {
	return f.Wallets.BalanceOf(ref)
}
