package async_collector

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	xrate "golang.org/x/time/rate"

	"github.com/easycoin-labs/agent-server/pkg/agent/async"
	"github.com/easycoin-labs/agent-server/pkg/agent/common"
	agent_data "github.com/easycoin-labs/agent-server/pkg/agent/data"
	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger"
	"github.com/easycoin-labs/agent-server/pkg/agent/server"
	"github.com/easycoin-labs/agent-server/pkg/database/query"
	"github.com/easycoin-labs/agent-server/pkg/metrics"
	"github.com/easycoin-labs/agent-server/pkg/rate"
	"github.com/easycoin-labs/agent-server/pkg/retry"
	"github.com/easycoin-labs/agent-server/pkg/retry/backoff"
)

const collectionRateLimitKey = "collect_due_fee"

// service periodically sweeps owner ledgers carrying accrued due fees and
// settles them through fee collection. Transaction fee reimbursement is left
// to the operator submitting the swaps, so sweeps move the trade fee only.
type service struct {
	log  *logrus.Entry
	conf *conf

	data  agent_data.DatabaseData
	agent *server.Server

	operator                *common.Account
	transactionFeeCollector *common.Account
	tradeFeeCollector       *common.Account

	limiter rate.Limiter
}

func NewCollectorService(
	data agent_data.DatabaseData,
	agent *server.Server,
	operator *common.Account,
	transactionFeeCollector *common.Account,
	tradeFeeCollector *common.Account,
	configProvider ConfigProvider,
) async.Service {
	conf := configProvider()

	return &service{
		log:  logrus.StandardLogger().WithField("service", "collector"),
		conf: conf,

		data:  data,
		agent: agent,

		operator:                operator,
		transactionFeeCollector: transactionFeeCollector,
		tradeFeeCollector:       tradeFeeCollector,

		limiter: rate.NewLocalRateLimiter(xrate.Limit(conf.collectionsPerSecond.Get(context.Background()))),
	}
}

func (p *service) Start(serviceCtx context.Context, interval time.Duration) error {
	for {
		_, err := retry.Retry(
			func() error {
				p.log.Trace("sweeping due fees")

				nr := serviceCtx.Value(metrics.NewRelicContextKey).(*newrelic.Application)
				m := nr.StartTransaction("async__collector_service")
				defer m.End()
				tracedCtx := newrelic.NewContext(serviceCtx, m)

				err := p.collectDueFees(tracedCtx)
				if err != nil {
					m.NoticeError(err)
					p.log.WithError(err).Warn("failed to sweep due fees")
				}

				return err
			},
			retry.NonRetriableErrors(context.Canceled),
			retry.BackoffWithJitter(backoff.BinaryExponential(time.Second), interval, 0.1),
		)
		if err != nil {
			if err != context.Canceled {
				// Should not happen since only non-retriable error is context.Canceled
				p.log.WithError(err).Warn("unexpected error when sweeping due fees")
			}

			return err
		}

		select {
		case <-serviceCtx.Done():
			return serviceCtx.Err()
		case <-time.After(interval):
		}
	}
}

// collectDueFees pages through owner ledgers owing at least the configured
// threshold and collects from each indebted sub-account. Collection failures
// are logged and skipped; the debt stays on the ledger for the next sweep.
func (p *service) collectDueFees(ctx context.Context) error {
	batchSize := p.conf.batchSize.Get(ctx)
	minDueFee := p.conf.minDueFee.Get(ctx)

	cursor := query.EmptyCursor
	for {
		records, err := p.data.GetOwnerLedgersWithDueFee(ctx, minDueFee, cursor, batchSize, query.Ascending)
		if err == ledger.ErrNotFound {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "failed to get owner ledgers with due fee")
		}

		for _, record := range records {
			done, err := p.collectFromOwner(ctx, record, minDueFee)
			if err != nil {
				return err
			}
			if done {
				// The rate budget for this sweep is spent
				return nil
			}
		}

		cursor = query.ToCursor(records[len(records)-1].Id)
	}
}

func (p *service) collectFromOwner(ctx context.Context, record *ledger.Record, minDueFee uint64) (bool, error) {
	log := p.log.WithField("owner", record.Owner)

	for _, subAccount := range record.SubAccounts {
		if subAccount.DueFee < minDueFee {
			continue
		}

		allowed, err := p.limiter.Allow(collectionRateLimitKey)
		if err != nil {
			return false, errors.Wrap(err, "failed to check rate limit")
		}
		if !allowed {
			return true, nil
		}

		err = p.agent.CollectFee(ctx, p.operator, &server.CollectFeeArgs{
			OwnerAccount:            record.Owner,
			Nonce:                   subAccount.Nonce,
			OnlyTradeFee:            true,
			TransactionFeeCollector: p.transactionFeeCollector,
			TradeFeeCollector:       p.tradeFeeCollector,
		})
		if err != nil {
			log.WithError(err).WithField("nonce", subAccount.Nonce).Warn("failed to collect due fee")
		}
	}

	return false, nil
}
