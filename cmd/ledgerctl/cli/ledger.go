package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/textile-erp/ledger/internal/accounting"
	"github.com/textile-erp/ledger/internal/accounting/journals"
)

// Exit codes shared by the ledger commands.
const (
	ExitOK    = 0
	ExitError = 1
	ExitDrift = 10
)

// Opener hands out the accounting service of a company.
type Opener interface {
	Open(ctx context.Context, company string) (*accounting.Service, error)
}

// LedgerCLI runs maintenance commands against company ledgers.
type LedgerCLI struct {
	ledgers Opener
}

// NewLedgerCLI builds the ledger commands on top of a registry.
func NewLedgerCLI(ledgers Opener) (*LedgerCLI, error) {
	if ledgers == nil {
		return nil, errors.New("ledger cli: registry required")
	}
	return &LedgerCLI{ledgers: ledgers}, nil
}

// Output selects where and how a command prints.
type Output struct {
	JSON   bool
	Stdout io.Writer
	Stderr io.Writer
}

func (o Output) withDefaults() Output {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	return o
}

func (o Output) fail(command string, err error) int {
	_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", command, err)
	return ExitError
}

// Encode writes v to Stdout as indented JSON.
func (o Output) Encode(v any) error {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	enc := json.NewEncoder(o.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o Output) encode(command string, v any) int {
	if err := o.Encode(v); err != nil {
		return o.fail(command, fmt.Errorf("encode json: %w", err))
	}
	return ExitOK
}

// SetupCommand installs the default chart of accounts for company.
func (c *LedgerCLI) SetupCommand(ctx context.Context, company string, out Output) int {
	out = out.withDefaults()
	svc, err := c.ledgers.Open(ctx, company)
	if err != nil {
		return out.fail("setup", err)
	}
	created, err := svc.Setup(ctx)
	if err != nil {
		return out.fail("setup", err)
	}
	if out.JSON {
		return out.encode("setup", map[string]any{"company": company, "created": len(created)})
	}
	_, _ = fmt.Fprintf(out.Stdout, "%s: %d account(s) created\n", company, len(created))
	for _, acc := range created {
		_, _ = fmt.Fprintf(out.Stdout, "  %-6s %-32s %s\n", acc.Code, acc.Name, acc.Type)
	}
	return ExitOK
}

// VerifySummary is the JSON form of the verify command.
type VerifySummary struct {
	Company    string        `json:"company"`
	Consistent bool          `json:"consistent"`
	Repaired   bool          `json:"repaired"`
	Drifts     []DriftOutput `json:"drifts"`
}

// DriftOutput describes one account whose cached balance disagrees with the
// replayed entry log.
type DriftOutput struct {
	AccountID int64  `json:"account_id"`
	Cached    string `json:"cached"`
	Replayed  string `json:"replayed"`
}

// VerifyCommand replays the company's entry log and reports drifted
// balances. With repair set the cached balances are rebuilt afterwards.
// It exits with ExitDrift when drift was found and not repaired.
func (c *LedgerCLI) VerifyCommand(ctx context.Context, company string, repair bool, out Output) int {
	out = out.withDefaults()
	svc, err := c.ledgers.Open(ctx, company)
	if err != nil {
		return out.fail("verify", err)
	}
	drifts, err := svc.Verify(ctx)
	if err != nil {
		return out.fail("verify", err)
	}
	summary := VerifySummary{Company: company, Consistent: len(drifts) == 0, Drifts: make([]DriftOutput, 0, len(drifts))}
	for _, d := range drifts {
		summary.Drifts = append(summary.Drifts, DriftOutput{
			AccountID: d.AccountID,
			Cached:    d.Cached.Balance.StringFixed(2),
			Replayed:  d.Replayed.Balance.StringFixed(2),
		})
	}
	if repair && len(drifts) > 0 {
		if _, err := svc.Rebuild(ctx); err != nil {
			return out.fail("verify", fmt.Errorf("rebuild: %w", err))
		}
		summary.Repaired = true
	}

	code := ExitOK
	if out.JSON {
		code = out.encode("verify", summary)
	} else {
		renderVerifyHuman(out.Stdout, summary)
	}
	if code == ExitOK && !summary.Consistent && !summary.Repaired {
		return ExitDrift
	}
	return code
}

func renderVerifyHuman(w io.Writer, s VerifySummary) {
	if s.Consistent {
		_, _ = fmt.Fprintf(w, "%s: all balances match the entry log\n", s.Company)
		return
	}
	_, _ = fmt.Fprintf(w, "%s: %d drifted account(s)\n", s.Company, len(s.Drifts))
	for _, d := range s.Drifts {
		_, _ = fmt.Fprintf(w, "  account %d cached %s replayed %s\n", d.AccountID, d.Cached, d.Replayed)
	}
	if s.Repaired {
		_, _ = fmt.Fprintln(w, "cached balances rebuilt")
	}
}

// BalanceCommand prints the balance of an account given by name or code.
func (c *LedgerCLI) BalanceCommand(ctx context.Context, company, account string, out Output) int {
	out = out.withDefaults()
	svc, err := c.ledgers.Open(ctx, company)
	if err != nil {
		return out.fail("balance", err)
	}
	bal, err := svc.GetAccountBalance(ctx, account)
	if err != nil {
		return out.fail("balance", err)
	}
	if out.JSON {
		return out.encode("balance", map[string]string{
			"account": bal.Account.Name,
			"code":    bal.Account.Code,
			"debit":   bal.Balance.Debit.StringFixed(2),
			"credit":  bal.Balance.Credit.StringFixed(2),
			"balance": bal.Balance.Balance.StringFixed(2),
		})
	}
	_, _ = fmt.Fprintf(out.Stdout, "%s %s: %s (debit %s, credit %s)\n",
		bal.Account.Code, bal.Account.Name,
		bal.Balance.Balance.StringFixed(2), bal.Balance.Debit.StringFixed(2), bal.Balance.Credit.StringFixed(2))
	return ExitOK
}

// LedgerOptions selects an entity ledger or, without an ID, the summaries of
// every entity of the type.
type LedgerOptions struct {
	Company    string
	EntityType string
	EntityID   string
	AsOf       string
}

// LedgerCommand prints a sub-ledger statement.
func (c *LedgerCLI) LedgerCommand(ctx context.Context, opts LedgerOptions, out Output) int {
	out = out.withDefaults()
	entityType := journals.EntityType(strings.ToLower(strings.TrimSpace(opts.EntityType)))
	switch entityType {
	case journals.EntityCustomer, journals.EntitySupplier, journals.EntityWorker:
	default:
		return out.fail("ledger", fmt.Errorf("unknown entity type %q", opts.EntityType))
	}
	asOf := time.Now().UTC()
	if strings.TrimSpace(opts.AsOf) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(opts.AsOf))
		if err != nil {
			return out.fail("ledger", fmt.Errorf("invalid --as-of %q (expected YYYY-MM-DD)", opts.AsOf))
		}
		asOf = parsed
	}
	svc, err := c.ledgers.Open(ctx, opts.Company)
	if err != nil {
		return out.fail("ledger", err)
	}

	if opts.EntityID == "" {
		summaries, err := svc.EntitySummaries(ctx, entityType, asOf)
		if err != nil {
			return out.fail("ledger", err)
		}
		if out.JSON {
			return out.encode("ledger", summaries)
		}
		for _, s := range summaries {
			_, _ = fmt.Fprintf(out.Stdout, "%-20s %-24s balance %s outstanding %s\n",
				s.Entity.ID, s.Entity.Name, s.Balance.StringFixed(2), s.Outstanding.StringFixed(2))
		}
		return ExitOK
	}

	ledger, err := svc.EntityLedger(ctx, journals.EntityRef{Type: entityType, ID: opts.EntityID}, asOf)
	if err != nil {
		return out.fail("ledger", err)
	}
	if out.JSON {
		return out.encode("ledger", ledger)
	}
	_, _ = fmt.Fprintf(out.Stdout, "%s %s as of %s\n", entityType, opts.EntityID, asOf.Format("2006-01-02"))
	for _, row := range ledger.Rows {
		_, _ = fmt.Fprintf(out.Stdout, "  %s %-12s %-6s %12s outstanding %s\n",
			row.Date.Format("2006-01-02"), row.ReferenceNo, row.Direction, row.Amount.StringFixed(2), row.Outstanding.StringFixed(2))
	}
	_, _ = fmt.Fprintf(out.Stdout, "balance %s outstanding %s\n", ledger.Balance.StringFixed(2), ledger.Outstanding.StringFixed(2))
	return ExitOK
}
