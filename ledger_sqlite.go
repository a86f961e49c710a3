package chainlinks

import (
	"context"
	"database/sql"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/xerrors"
)

// DevAddress is the account the SQLite ledger reports as connected.
const DevAddress = "0x000000000000000000000000000000000000dEaD"

// SQLiteLedger is a Ledger and Wallet backed by a SQLite database. It stands in
// for the contract during local development: setURL overwrites, getURL returns
// "" for unknown codes, and every write gets its own "block".
type SQLiteLedger struct {
	db      *sql.DB
	l       *sync.Mutex // to synchronize DB access from concurrent requests
	chainID int64
}

// compile-time assertions that we implement Ledger and Wallet
var (
	_ Ledger = &SQLiteLedger{}
	_ Wallet = &SQLiteLedger{}
)

// NewSQLiteLedger opens the database at dsn and creates the links table if
// needed. chainID is the chain the ledger claims to live on.
func NewSQLiteLedger(dsn string, chainID int64) (*SQLiteLedger, error) {
	if dsn == "" {
		return nil, xerrors.Errorf("SQLite DSN not set: %w", ErrConfiguration)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, xerrors.Errorf("could not open SQLite database: %w", err)
	}

	_, err = db.Exec(`create table if not exists links (
		block     integer primary key autoincrement,
		shortCode text not null unique,
		longURL   text not null,
		sender    text not null
	)`)
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("could not create links table: %w", err)
	}

	return &SQLiteLedger{
		db:      db,
		l:       new(sync.Mutex),
		chainID: chainID,
	}, nil
}

// Close closes the underlying database.
func (i *SQLiteLedger) Close() error {
	return i.db.Close()
}

// GetURL returns the URL stored under shortCode, or "" if there is none.
func (i *SQLiteLedger) GetURL(ctx context.Context, shortCode string) (longURL string, err error) {
	i.l.Lock()
	defer i.l.Unlock()

	err = i.db.QueryRowContext(ctx, "select longURL from links where shortCode = ?", shortCode).Scan(&longURL)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", xerrors.Errorf("error resolving short code %q in database: %w", shortCode, err)
	}

	return longURL, nil
}

// Connect reports the fixed development account.
func (i *SQLiteLedger) Connect(ctx context.Context) (Account, error) {
	if err := i.db.PingContext(ctx); err != nil {
		return Account{}, xerrors.Errorf("could not reach SQLite database: %w", err)
	}
	return Account{Address: DevAddress, ChainID: i.chainID}, nil
}

// SetURL stores longURL under shortCode, replacing any previous value.
func (i *SQLiteLedger) SetURL(ctx context.Context, from Account, shortCode, longURL string) (Receipt, error) {
	i.l.Lock()
	defer i.l.Unlock()

	// replacing deletes the old row, so the code moves to a new block like a fresh transaction would
	res, err := i.db.ExecContext(ctx, "insert or replace into links (shortCode, longURL, sender) values (?, ?, ?)", shortCode, longURL, from.Address)
	if err != nil {
		return Receipt{}, xerrors.Errorf("error storing short code %q in database: %w", shortCode, err)
	}

	block, err := res.LastInsertId()
	if err != nil {
		return Receipt{}, xerrors.Errorf("error getting block of stored short code: %w", err)
	}

	hash := crypto.Keccak256Hash(
		[]byte(from.Address),
		[]byte(shortCode),
		[]byte(longURL),
		[]byte(strconv.FormatInt(block, 10)),
	)

	return Receipt{TxHash: hash.Hex(), BlockNumber: uint64(block)}, nil
}
