package chainlinks

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// DefaultChainID is Arbitrum Sepolia.
const DefaultChainID int64 = 421614

var (
	ErrNotConnected     = xerrors.New("wallet not connected")
	ErrWrongChain       = xerrors.New("wallet connected to the wrong chain")
	ErrMissingInput     = xerrors.New("both a short code and a long URL are required")
	ErrInvalidShortCode = xerrors.New("invalid short code")
)

var validShortCode = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// reserved short codes would be shadowed by the server's own routes
var reservedShortCodes = map[string]bool{
	"api":     true,
	"healthz": true,
}

// ConnectionStatus is the lifecycle position of a Session.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
)

func (s ConnectionStatus) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ConnectionState is a snapshot of a Session's connection. Account is only
// meaningful when Status is Connected.
type ConnectionState struct {
	Status  ConnectionStatus
	Account Account
}

// Session drives the write path: it connects a Wallet, guards the chain, and
// submits setURL transactions. A Session is not safe for concurrent use.
type Session struct {
	wallet          Wallet
	requiredChainID int64
	state           ConnectionState
}

// NewSession returns a disconnected session that only writes on requiredChainID.
func NewSession(w Wallet, requiredChainID int64) *Session {
	return &Session{
		wallet:          w,
		requiredChainID: requiredChainID,
	}
}

// State returns the current connection state.
func (s *Session) State() ConnectionState {
	return s.state
}

// Connect moves the session from Disconnected through Connecting to Connected.
// On failure the session is Disconnected again.
func (s *Session) Connect(ctx context.Context) (ConnectionState, error) {
	s.state = ConnectionState{Status: Connecting}

	account, err := s.wallet.Connect(ctx)
	if err != nil {
		s.state = ConnectionState{Status: Disconnected}
		return s.state, xerrors.Errorf("connecting wallet: %w", err)
	}

	s.state = ConnectionState{Status: Connected, Account: account}
	return s.state, nil
}

// Disconnect forgets the connected account.
func (s *Session) Disconnect() {
	s.state = ConnectionState{Status: Disconnected}
}

// Shorten stores longURL under shortCode through the connected wallet and
// waits for the transaction to be mined.
func (s *Session) Shorten(ctx context.Context, shortCode, longURL string) (Receipt, error) {
	if s.state.Status != Connected {
		return Receipt{}, ErrNotConnected
	}
	if s.state.Account.ChainID != s.requiredChainID {
		return Receipt{}, xerrors.Errorf("connected to chain %d, need %d: %w", s.state.Account.ChainID, s.requiredChainID, ErrWrongChain)
	}
	if shortCode == "" || strings.TrimSpace(longURL) == "" {
		return Receipt{}, ErrMissingInput
	}
	if err := ValidateShortCode(shortCode); err != nil {
		return Receipt{}, err
	}

	receipt, err := s.wallet.SetURL(ctx, s.state.Account, shortCode, strings.TrimSpace(longURL))
	if err != nil {
		return Receipt{}, xerrors.Errorf("storing %q: %w", shortCode, err)
	}
	return receipt, nil
}

// ValidateShortCode checks a short code before it is written. Reads never
// validate, so codes written by other clients stay resolvable.
func ValidateShortCode(shortCode string) error {
	if !validShortCode.MatchString(shortCode) {
		return xerrors.Errorf("%s must be 1-64 letters, digits, '-' or '_': %w", strconv.Quote(shortCode), ErrInvalidShortCode)
	}
	if reservedShortCodes[strings.ToLower(shortCode)] {
		return xerrors.Errorf("%s is reserved: %w", strconv.Quote(shortCode), ErrInvalidShortCode)
	}
	return nil
}

// Link returns the public short link for shortCode under baseURL.
func Link(baseURL, shortCode string) string {
	return strings.TrimRight(baseURL, "/") + "/" + shortCode
}
