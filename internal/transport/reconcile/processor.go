// Package reconcile доводит зависшие заказы до согласованного состояния в фоне.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/service"
	"github.com/fsdevblog/groph-market/internal/transport/gateway"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultServiceTimeout         = 3 * time.Second
	defaultReconcileTimeout       = 30 * time.Second
	defaultInterval               = 10 * time.Second
	defaultLimitPerIteration uint = 50
	defaultWorkers           uint = 5
	defaultRPS                    = 10
)

// Processor периодически запрашивает зависшие заказы и сверяет их параллельными воркерами.
type Processor struct {
	svs               Servicer
	l                 *logrus.Entry
	limiter           *rate.Limiter
	interval          time.Duration
	limitPerIteration uint
	workers           uint

	mu       sync.Mutex
	resumeAt time.Time
}

func New(svs Servicer, l *logrus.Logger) *Processor {
	loggerEntry := l.WithFields(logrus.Fields{
		"component": "reconcile",
		"module":    "processor",
	})

	return &Processor{
		svs:               svs,
		l:                 loggerEntry,
		limiter:           rate.NewLimiter(rate.Limit(defaultRPS), 1),
		interval:          defaultInterval,
		limitPerIteration: defaultLimitPerIteration,
		workers:           defaultWorkers,
	}
}

// SetLimitPerIteration устанавливает кол-во заказов, обрабатываемых в одной итерации.
func (p *Processor) SetLimitPerIteration(limit uint) *Processor {
	if limit > 0 {
		p.limitPerIteration = limit
	}
	return p
}

// SetWorkers устанавливает кол-во воркеров, сверяющих заказы.
func (p *Processor) SetWorkers(workers uint) *Processor {
	if workers > 0 {
		p.workers = workers
	}
	return p
}

// SetInterval устанавливает паузу между итерациями.
func (p *Processor) SetInterval(interval time.Duration) *Processor {
	if interval > 0 {
		p.interval = interval
	}
	return p
}

// SetRateLimit ограничивает кол-во сверок в секунду (каждая может обращаться к платежному шлюзу).
func (p *Processor) SetRateLimit(rps float64) *Processor {
	if rps > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return p
}

// Run запускает сверку в цикле до отмены контекста.
//
// Каждая итерация запрашивает через сервисный слой не более limitPerIteration зависших заказов и раздает их
// воркерам. Между итерациями выдерживается interval со случайной добавкой до 10%, чтобы несколько экземпляров
// не опрашивали БД синхронно.
func (p *Processor) Run(ctx context.Context) {
	p.l.WithFields(logrus.Fields{
		"limitPerIteration": p.limitPerIteration,
		"workers":           p.workers,
		"interval":          p.interval,
	}).Info("Starting")

	for {
		if _, err := p.process(ctx); err != nil && !errors.Is(err, ErrNoOrders) && ctx.Err() == nil {
			p.l.WithError(err).Error("process error")
		}

		select {
		case <-ctx.Done():
			p.l.Info("Got stop signal, exiting...")
			return
		case <-time.After(p.nextDelay()):
		}
	}
}

func (p *Processor) nextDelay() time.Duration {
	jitter := time.Duration(rand.Int64N(int64(p.interval)/10 + 1)) //nolint:gosec
	return p.interval + jitter
}

// process выполняет одну итерацию сверки и возвращает кол-во заказов по итогам.
// Возвращает ErrNoOrders если сверять нечего.
func (p *Processor) process(ctx context.Context) (map[string]int, error) {
	orders, ordersErr := p.produce(ctx)
	if ordersErr != nil {
		return nil, fmt.Errorf("process: %w", ordersErr)
	}

	results := p.runWorkers(ctx, orders)

	summary := make(map[string]int)
	for _, result := range results {
		summary[result.Outcome]++
	}
	p.l.WithField("outcomes", summary).Info("Iteration done")
	return summary, nil
}

// workerResult результат сверки одного заказа.
type workerResult struct {
	WorkerID uint
	Order    *domain.Order
	Outcome  string
	Error    error
}

// runWorkers раздает заказы воркерам и ожидает конца их работы (fan-out/fan-in).
func (p *Processor) runWorkers(ctx context.Context, orders []domain.Order) []workerResult {
	var taskCh = make(chan *domain.Order, len(orders))
	for _, order := range orders {
		taskCh <- &order
	}
	close(taskCh)

	workers := min(p.workers, uint(len(orders)))
	wg := new(sync.WaitGroup)
	wg.Add(int(workers)) // nolint:gosec

	var resultCh = make(chan *workerResult, len(orders))
	for i := range workers {
		go p.worker(ctx, wg, i+1, taskCh, resultCh)
	}
	wg.Wait()
	close(resultCh)

	var results = make([]workerResult, 0, len(orders))
	for result := range resultCh {
		l := p.l.WithFields(logrus.Fields{
			"worker":      result.WorkerID,
			"orderID":     result.Order.ID,
			"orderNumber": result.Order.OrderNumber,
			"outcome":     result.Outcome,
		})
		switch {
		case result.Error != nil:
			l.WithError(result.Error).Error("reconcile order")
		case result.Outcome == service.ReconcileSkipped || result.Outcome == service.ReconcilePending:
			l.Debug("Reconciled")
		default:
			l.Info("Reconciled")
		}
		results = append(results, *result)
	}
	return results
}

func (p *Processor) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	workerID uint,
	taskCh <-chan *domain.Order,
	resultCh chan<- *workerResult,
) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-taskCh:
			if !ok {
				return
			}
			resultCh <- p.processWorkerTask(ctx, workerID, task)
		}
	}
}

// processWorkerTask сверяет заказ. Если шлюз ответил 429, все воркеры приостанавливаются на время из
// заголовка Retry-After, после чего сверка повторяется.
func (p *Processor) processWorkerTask(ctx context.Context, workerID uint, task *domain.Order) *workerResult {
	result := workerResult{WorkerID: workerID, Order: task}

	for {
		if err := p.wait(ctx); err != nil {
			result.Outcome = service.ReconcileError
			result.Error = err
			return &result
		}

		reqCtx, cancel := context.WithTimeout(ctx, defaultReconcileTimeout)
		outcome, err := p.svs.ReconcileOrder(reqCtx, *task)
		cancel()

		var tooManyReq *gateway.TooManyRequestError
		if errors.As(err, &tooManyReq) {
			p.pause(tooManyReq.RetryAfter)
			p.l.WithFields(logrus.Fields{
				"worker":     workerID,
				"retryAfter": tooManyReq.RetryAfter,
			}).Warn("gateway rate limit hit, pausing")
			continue
		}

		result.Outcome = outcome
		result.Error = err
		return &result
	}
}

// pause откладывает все последующие обращения к сервису на d.
func (p *Processor) pause(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if until := time.Now().Add(d); until.After(p.resumeAt) {
		p.resumeAt = until
	}
}

// wait блокирует до конца паузы и получения разрешения от лимитера.
func (p *Processor) wait(ctx context.Context) error {
	p.mu.Lock()
	delay := time.Until(p.resumeAt)
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// produce получает список зависших заказов. Возвращает ErrNoOrders, если заказы отсутствуют.
func (p *Processor) produce(ctx context.Context) ([]domain.Order, error) {
	produceCtx, cancel := context.WithTimeout(ctx, defaultServiceTimeout)
	defer cancel()

	orders, ordersErr := p.svs.StaleOrders(produceCtx, p.limitPerIteration)
	if ordersErr != nil {
		return nil, fmt.Errorf("produce: %w", ordersErr)
	}

	if len(orders) == 0 {
		return nil, ErrNoOrders
	}
	return orders, nil
}
