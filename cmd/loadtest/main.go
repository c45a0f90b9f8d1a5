package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/creditmarket/internal/auth"
	appconfig "github.com/vladislavdragonenkov/creditmarket/internal/config"
	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
	cmv1 "github.com/vladislavdragonenkov/creditmarket/proto/creditmarket/v1"
)

const (
	idempotencyHeader = "idempotency-key"
	tokenTTL          = 24 * time.Hour
)

type loadMode string

const (
	modeCart     loadMode = "cart"
	modeQuote    loadMode = "quote"
	modeCheckout loadMode = "checkout"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	customers   []string
	productID   string
	qty         int
	authSecret  string
	outputPath  string
}

// parseConfig читает флаги; секрет JWT по умолчанию берётся из окружения сервиса.
func parseConfig(getenv func(string) string) (config, error) {
	defaults := appconfig.Default()
	if err := appconfig.ApplyEnv(getenv, &defaults); err != nil {
		return config{}, err
	}

	var (
		cfg           config
		modeValue     string
		customersRaw  string
		timeoutValue  string
		durationValue string
	)

	flag.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	flag.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-RPC timeout")
	flag.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: cart | quote | checkout")
	flag.StringVar(&customersRaw, "customers", "cust-1", "approved customer ids as comma-separated list")
	flag.StringVar(&cfg.productID, "product", "p-rice", "product id added to the cart")
	flag.IntVar(&cfg.qty, "qty", 1, "quantity per add")
	flag.StringVar(&cfg.authSecret, "auth-secret", defaults.AuthSecret, "JWT secret to mint customer tokens (fallback: CREDITMARKET_AUTH_SECRET)")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if cfg.mode, err = parseMode(modeValue); err != nil {
		return cfg, err
	}
	for _, id := range strings.Split(customersRaw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.customers = append(cfg.customers, id)
		}
	}

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case len(cfg.customers) == 0:
		return cfg, errors.New("at least one customer is required")
	case strings.TrimSpace(cfg.productID) == "":
		return cfg, errors.New("product is required")
	case cfg.qty <= 0:
		return cfg, errors.New("qty must be > 0")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case modeCart, modeQuote, modeCheckout:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

// customerTokens выпускает токен на каждого клиента. Без секрета сервер работает
// от локального админа, и клиент передаётся только полем customer_id.
func customerTokens(cfg config) (map[string]string, error) {
	tokens := make(map[string]string, len(cfg.customers))
	if cfg.authSecret == "" {
		return tokens, nil
	}
	for _, id := range cfg.customers {
		token, err := auth.IssueToken(domain.Identity{Role: domain.RoleCustomer, SubjectID: id, Name: id}, []byte(cfg.authSecret), tokenTTL)
		if err != nil {
			return nil, fmt.Errorf("issue token for %s: %w", id, err)
		}
		tokens[id] = token
	}
	return tokens, nil
}

func main() {
	cfg, err := parseConfig(os.Getenv)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	tokens, err := customerTokens(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]cmv1.CreditMarketServiceClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, cmv1.NewCreditMarketServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli cmv1.CreditMarketServiceClient) {
			defer wg.Done()
			for id := range jobs {
				if code := runScenario(cli, cfg, tokens, id, runID, col); code != codes.OK && !isRejection(code) {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario кладёт товар в корзину клиента и, в зависимости от режима, смотрит корзину,
// котировку или оформляет покупку. Итоговый код сценария — первый неуспешный вызов.
func runScenario(
	client cmv1.CreditMarketServiceClient,
	cfg config,
	tokens map[string]string,
	index int,
	runID string,
	col *collector,
) codes.Code {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record(scenarioMethod, time.Since(scenarioStart), scenarioCode)
	}()

	customerID := cfg.customers[index%len(cfg.customers)]
	c := scenarioCaller{client: client, timeout: cfg.timeout, token: tokens[customerID], col: col}
	item := map[string]any{"customer_id": customerID, "product_id": cfg.productID, "qty": cfg.qty}

	if code := c.call("AddCartItem", "", item, client.AddCartItem); code != codes.OK {
		scenarioCode = code
		return scenarioCode
	}

	switch cfg.mode {
	case modeCart:
		scenarioCode = c.call("GetCart", "", map[string]any{"customer_id": customerID}, client.GetCart)
	case modeQuote:
		scenarioCode = c.call("QuoteCart", "", map[string]any{"customer_id": customerID}, client.QuoteCart)
	case modeCheckout:
		key := fmt.Sprintf("lt-checkout-%s-%d", runID, index)
		scenarioCode = c.call("Checkout", key, map[string]any{"customer_id": customerID}, client.Checkout)
		if scenarioCode == codes.OK {
			return scenarioCode
		}
	}

	// корзина не должна расти от сценария к сценарию
	cleanup := c.call("RemoveCartItem", "", map[string]any{"customer_id": customerID, "product_id": cfg.productID}, client.RemoveCartItem)
	if scenarioCode == codes.OK && cleanup != codes.OK && cleanup != codes.NotFound {
		scenarioCode = cleanup
	}
	return scenarioCode
}

type rpcFunc func(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)

type scenarioCaller struct {
	client  cmv1.CreditMarketServiceClient
	timeout time.Duration
	token   string
	col     *collector
}

func (c scenarioCaller) call(method, idempotencyKey string, fields map[string]any, rpc rpcFunc) codes.Code {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		c.col.record(method, 0, codes.Internal)
		return codes.Internal
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, idempotencyKey)
	}

	start := time.Now()
	_, err = rpc(ctx, req)
	code := grpcCode(err)
	c.col.record(method, time.Since(start), code)
	return code
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
