package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/textile-erp/ledger/internal/accounting"
	jobmetrics "github.com/textile-erp/ledger/internal/jobs"
	"github.com/textile-erp/ledger/internal/shared"
)

const integrityLockTTL = 10 * time.Minute

// Opener hands out the accounting service of a company.
type Opener interface {
	Open(ctx context.Context, company string) (*accounting.Service, error)
}

// IntegrityReport summarises one company's check.
type IntegrityReport struct {
	Company  string
	Drifts   int
	Repaired bool
	Skipped  bool
}

// IntegrityJob replays the entry log of each company and reports accounts
// whose cached balance drifted.
type IntegrityJob struct {
	Ledgers   Opener
	Companies []string
	Redis     *redis.Client
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIntegrityJob initialises the integrity handler. redis may be nil, in
// which case runs are not guarded by a lock.
func NewIntegrityJob(ledgers Opener, companies []string, redisClient *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Ledgers: ledgers, Companies: companies, Redis: redisClient, Logger: logger, Metrics: metrics}
}

// Handle executes TaskLedgerIntegrity.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Ledgers == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run checks every requested company and returns one report each. A failing
// company does not stop the others; the first error is returned.
func (j *IntegrityJob) Run(ctx context.Context, payload IntegrityPayload) (reports []IntegrityReport, err error) {
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() {
		err = tracker.End(err)
	}()

	companies := payload.Companies
	if len(companies) == 0 {
		companies = j.Companies
	}
	start := time.Now()
	logger := j.logger().With(slog.String("job", TaskLedgerIntegrity))
	logger.Info("starting ledger integrity check", slog.Int("companies", len(companies)), slog.Bool("repair", payload.Repair))

	for _, company := range companies {
		report, checkErr := j.check(ctx, company, payload.Repair)
		if checkErr != nil {
			logger.Error("integrity check failed", slog.String("company", company), slog.Any("error", checkErr))
			if err == nil {
				err = checkErr
			}
			continue
		}
		reports = append(reports, report)
	}
	logger.Info("completed ledger integrity check",
		slog.Int("checked", len(reports)),
		slog.Duration("duration", time.Since(start)),
	)
	return reports, err
}

func (j *IntegrityJob) check(ctx context.Context, company string, repair bool) (IntegrityReport, error) {
	report := IntegrityReport{Company: company}
	release, err := j.lock(ctx, company)
	if errors.Is(err, shared.ErrLocked) {
		j.logger().Info("integrity check already running", slog.String("company", company))
		report.Skipped = true
		return report, nil
	}
	if err != nil {
		return report, err
	}
	defer release()

	svc, err := j.Ledgers.Open(ctx, company)
	if err != nil {
		return report, err
	}
	drifts, err := svc.Verify(ctx)
	if err != nil {
		return report, err
	}
	report.Drifts = len(drifts)
	for _, d := range drifts {
		j.logger().Warn("ledger balance drift",
			slog.String("company", company),
			slog.Int64("account_id", d.AccountID),
			slog.String("cached", d.Cached.Balance.StringFixed(2)),
			slog.String("replayed", d.Replayed.Balance.StringFixed(2)),
		)
	}
	j.Metrics.AddDrifts(company, len(drifts))
	if len(drifts) > 0 && repair {
		if _, err := svc.Rebuild(ctx); err != nil {
			return report, err
		}
		report.Repaired = true
	}
	return report, nil
}

func (j *IntegrityJob) lock(ctx context.Context, company string) (func(), error) {
	if j.Redis == nil {
		return func() {}, nil
	}
	key := shared.IntegrityLockKey(company)
	ok, err := j.Redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), integrityLockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrLocked
	}
	return func() {
		if err := j.Redis.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			j.logger().Warn("release integrity lock", slog.String("company", company), slog.Any("error", err))
		}
	}, nil
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
